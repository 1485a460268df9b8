// Package upload stores captured mission photos in S3-compatible storage and
// returns the image reference sent to the attempt ledger.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var (
	ErrDisabled        = errors.New("image upload is not configured")
	ErrTooLarge        = errors.New("image is too large")
	ErrUnsupportedType = errors.New("unsupported image type")
)

// DefaultMaxBytes caps a single image.
const DefaultMaxBytes = 10 << 20

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds S3-compatible storage configuration.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// PublicURL is the base URL objects are served from. When empty, URLs
	// are built path-style from Endpoint and Bucket.
	PublicURL string
	MaxBytes  int64
}

func (c Config) configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Object is a stored image.
type Object struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Uploader writes images to the bucket.
type Uploader struct {
	cfg    Config
	client s3Client
	now    func() time.Time
	logger *slog.Logger
}

// New creates an uploader. Without bucket credentials it is disabled and every
// upload returns ErrDisabled.
func New(cfg Config, logger *slog.Logger) *Uploader {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	u := &Uploader{cfg: cfg, now: time.Now, logger: logger}
	if cfg.configured() {
		u.client = newS3Client(cfg)
	}
	return u
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether uploads are configured.
func (u *Uploader) Enabled() bool {
	return u.client != nil
}

// Upload stores one image under prefix and returns its key and public URL.
func (u *Uploader) Upload(ctx context.Context, prefix string, r io.Reader, contentType string) (Object, error) {
	if u.client == nil {
		return Object{}, ErrDisabled
	}
	ext, ok := extensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return Object{}, ErrUnsupportedType
	}

	data, err := io.ReadAll(io.LimitReader(r, u.cfg.MaxBytes+1))
	if err != nil {
		return Object{}, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > u.cfg.MaxBytes {
		return Object{}, ErrTooLarge
	}

	key := fmt.Sprintf("%s/%s/%s%s", prefix, u.now().UTC().Format("2006/01/02"), uuid.NewString(), ext)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload to s3: %w", err)
	}

	u.logger.Info("image uploaded", "key", key, "bytes", len(data))
	return Object{Key: key, URL: u.PublicURL(key)}, nil
}

// Delete removes an uploaded image, used when the certification it was
// attached to did not succeed.
func (u *Uploader) Delete(ctx context.Context, key string) error {
	if u.client == nil {
		return ErrDisabled
	}
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete from s3: %w", err)
	}
	return nil
}

// PublicURL returns the URL an object is served from.
func (u *Uploader) PublicURL(key string) string {
	if u.cfg.PublicURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(u.cfg.PublicURL, "/"), key)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(u.cfg.Endpoint, "/"), u.cfg.Bucket, key)
}
