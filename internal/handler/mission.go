package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/missionboard/internal/geo"
	"github.com/dukerupert/missionboard/internal/participation"
	"github.com/dukerupert/missionboard/internal/upload"
)

// Certifier runs the participation flows.
type Certifier interface {
	CertifyQuietTime(ctx context.Context, boardID, missionID string, coord *geo.Coordinate) (participation.Outcome, error)
	CertifyReceiptPurchase(ctx context.Context, boardID, missionID string, coord *geo.Coordinate, imageURL string) (participation.Outcome, error)
	CertifyTreasureHunt(ctx context.Context, boardID, missionID string, coord *geo.Coordinate, imageURL string) (participation.Outcome, error)
	CertifyRepeatVisit(ctx context.Context, boardID, missionID string, coord *geo.Coordinate) (participation.Outcome, error)
	StartStay(ctx context.Context, boardID, missionID string, coord *geo.Coordinate) (participation.Outcome, error)
	CompleteStay(ctx context.Context, activityID string, coord *geo.Coordinate) (participation.Outcome, error)
}

// ImageStore holds photos attached to certifications.
type ImageStore interface {
	Enabled() bool
	Upload(ctx context.Context, prefix string, r io.Reader, contentType string) (upload.Object, error)
	Delete(ctx context.Context, key string) error
}

const (
	imagePrefix     = "attempts"
	maxJSONBody     = 64 << 10
	multipartMemory = 1 << 20
)

type MissionHandler struct {
	certifier Certifier
	images    ImageStore
	maxBytes  int64
	logger    *slog.Logger
}

// NewMissionHandler builds the certification endpoints. images may be nil,
// in which case photo missions accept only an imageUrl.
func NewMissionHandler(c Certifier, images ImageStore, maxImageBytes int64, logger *slog.Logger) *MissionHandler {
	if maxImageBytes <= 0 {
		maxImageBytes = upload.DefaultMaxBytes
	}
	return &MissionHandler{certifier: c, images: images, maxBytes: maxImageBytes, logger: logger}
}

type certifyRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	ImageURL  string   `json:"imageUrl"`

	coord       *geo.Coordinate
	uploadedKey string
}

// parseCertify reads a JSON body of latitude, longitude and imageUrl or, for photo missions, a multipart form
// with latitude, longitude and an "image" file. An attached file is uploaded
// and its URL replaces imageUrl.
func (h *MissionHandler) parseCertify(w http.ResponseWriter, r *http.Request, allowImage bool) (certifyRequest, bool) {
	var req certifyRequest

	ct := r.Header.Get("Content-Type")
	if allowImage && strings.HasPrefix(ct, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartMemory)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form")
			return req, false
		}
		coord, err := formCoordinate(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return req, false
		}
		req.coord = coord
		req.ImageURL = strings.TrimSpace(r.FormValue("imageUrl"))

		file, header, err := r.FormFile("image")
		if errors.Is(err, http.ErrMissingFile) {
			return req, true
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid image")
			return req, false
		}
		defer file.Close()

		if h.images == nil || !h.images.Enabled() {
			writeError(w, http.StatusServiceUnavailable, "image upload is not configured")
			return req, false
		}
		obj, err := h.images.Upload(r.Context(), imagePrefix, file, header.Header.Get("Content-Type"))
		switch {
		case errors.Is(err, upload.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "image is too large")
			return req, false
		case errors.Is(err, upload.ErrUnsupportedType):
			writeError(w, http.StatusUnsupportedMediaType, "unsupported image type")
			return req, false
		case err != nil:
			h.logger.Error("upload image", "error", err)
			writeError(w, http.StatusBadGateway, "failed to upload image")
			return req, false
		}
		req.ImageURL = obj.URL
		req.uploadedKey = obj.Key
		return req, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return req, false
	}
	if req.Latitude != nil && req.Longitude != nil {
		req.coord = &geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	return req, true
}

func formCoordinate(r *http.Request) (*geo.Coordinate, error) {
	lat, lng := r.FormValue("latitude"), r.FormValue("longitude")
	if lat == "" && lng == "" {
		return nil, nil
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, errors.New("invalid latitude")
	}
	lo, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return nil, errors.New("invalid longitude")
	}
	return &geo.Coordinate{Latitude: la, Longitude: lo}, nil
}

// discard removes an image uploaded for a certification that failed.
func (h *MissionHandler) discard(ctx context.Context, req certifyRequest) {
	if req.uploadedKey == "" {
		return
	}
	if err := h.images.Delete(context.WithoutCancel(ctx), req.uploadedKey); err != nil {
		h.logger.Warn("delete unused image", "key", req.uploadedKey, "error", err)
	}
}

func (h *MissionHandler) respond(w http.ResponseWriter, r *http.Request, op string, req certifyRequest, out participation.Outcome, err error) {
	if err != nil {
		h.discard(r.Context(), req)
		writeOperationError(w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func pathIDs(r *http.Request) (string, string) {
	return chi.URLParam(r, "boardID"), chi.URLParam(r, "missionID")
}

func (h *MissionHandler) QuietTime(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseCertify(w, r, false)
	if !ok {
		return
	}
	boardID, missionID := pathIDs(r)
	out, err := h.certifier.CertifyQuietTime(r.Context(), boardID, missionID, req.coord)
	h.respond(w, r, "certify quiet time", req, out, err)
}

func (h *MissionHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseCertify(w, r, true)
	if !ok {
		return
	}
	boardID, missionID := pathIDs(r)
	out, err := h.certifier.CertifyReceiptPurchase(r.Context(), boardID, missionID, req.coord, req.ImageURL)
	h.respond(w, r, "certify receipt", req, out, err)
}

func (h *MissionHandler) TreasureHunt(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseCertify(w, r, true)
	if !ok {
		return
	}
	boardID, missionID := pathIDs(r)
	out, err := h.certifier.CertifyTreasureHunt(r.Context(), boardID, missionID, req.coord, req.ImageURL)
	h.respond(w, r, "certify treasure hunt", req, out, err)
}

func (h *MissionHandler) Stamp(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseCertify(w, r, false)
	if !ok {
		return
	}
	boardID, missionID := pathIDs(r)
	out, err := h.certifier.CertifyRepeatVisit(r.Context(), boardID, missionID, req.coord)
	h.respond(w, r, "certify repeat visit", req, out, err)
}

func (h *MissionHandler) StartStay(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseCertify(w, r, false)
	if !ok {
		return
	}
	boardID, missionID := pathIDs(r)
	out, err := h.certifier.StartStay(r.Context(), boardID, missionID, req.coord)
	h.respond(w, r, "start stay", req, out, err)
}

func (h *MissionHandler) CompleteStay(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseCertify(w, r, false)
	if !ok {
		return
	}
	out, err := h.certifier.CompleteStay(r.Context(), chi.URLParam(r, "activityID"), req.coord)
	h.respond(w, r, "complete stay", req, out, err)
}
