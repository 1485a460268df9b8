package geo

import (
	"math"
	"testing"
)

var seoul = Coordinate{Latitude: 37.5463937599992, Longitude: 127.065889477465}

func TestDistanceZeroForSamePoint(t *testing.T) {
	if d := Distance(seoul, seoul); d != 0 {
		t.Errorf("distance = %v, want 0", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	pairs := [][2]Coordinate{
		{seoul, {Latitude: 37.55, Longitude: 127.07}},
		{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 179.9}},
		{{Latitude: -33.86, Longitude: 151.21}, {Latitude: 51.5, Longitude: -0.12}},
		{{Latitude: 89.9, Longitude: 10}, {Latitude: -89.9, Longitude: -170}},
	}
	for _, p := range pairs {
		ab := Distance(p[0], p[1])
		ba := Distance(p[1], p[0])
		if math.Abs(ab-ba) > 1e-6 {
			t.Errorf("Distance(%v, %v) = %v, reverse = %v", p[0], p[1], ab, ba)
		}
		if ab <= 0 {
			t.Errorf("Distance(%v, %v) = %v, want > 0 for distinct points", p[0], p[1], ab)
		}
	}
}

func TestDistanceKnownValues(t *testing.T) {
	// One degree of latitude on the model sphere.
	oneDegree := Distance(Coordinate{Latitude: 0, Longitude: 0}, Coordinate{Latitude: 1, Longitude: 0})
	want := EarthRadiusMeters * math.Pi / 180
	if math.Abs(oneDegree-want) > 0.01 {
		t.Errorf("one degree = %v, want %v", oneDegree, want)
	}

	// Seoul to Busan is roughly 325 km.
	busan := Coordinate{Latitude: 35.1796, Longitude: 129.0756}
	d := Distance(seoul, busan)
	if d < 315000 || d > 335000 {
		t.Errorf("seoul-busan = %v, want ~325km", d)
	}
}

func TestWithin(t *testing.T) {
	// ~0.0027 degrees of latitude is ~300m.
	far := Coordinate{Latitude: seoul.Latitude + 0.0027, Longitude: seoul.Longitude}
	d, ok := Within(far, seoul, 200)
	if ok {
		t.Errorf("expected %vm to be outside 200m", d)
	}
	if math.Round(d) < 295 || math.Round(d) > 305 {
		t.Errorf("distance = %v, want ~300", d)
	}

	near := Coordinate{Latitude: seoul.Latitude + 0.001, Longitude: seoul.Longitude}
	if _, ok := Within(near, seoul, 200); !ok {
		t.Error("expected ~111m to be inside 200m")
	}
}
