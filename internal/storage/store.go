// Package storage persists generated images in S3-compatible object storage
// (MinIO) and serves them back through presigned GET URLs. Keys are
// namespaced per user and persona: chat/{user}/{persona}/{uuid}.{ext}.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/chani337/selfstar/internal/config"
)

// ErrNotDataURI is returned by PutDataURI for payloads that are not
// base64 data URIs.
var ErrNotDataURI = errors.New("payload is not a base64 data uri")

// Store writes and presigns objects in one bucket.
type Store struct {
	client     *minio.Client
	bucket     string
	presignTTL time.Duration
}

// New connects to the configured endpoint and verifies the bucket exists,
// creating it when missing.
func New(ctx context.Context, cfg config.S3Config) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("storage endpoint not configured")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &Store{client: client, bucket: cfg.Bucket, presignTTL: cfg.PresignTTL}, nil
}

// ObjectKey builds a fresh namespaced key for a generated image.
func ObjectKey(userID uint, personaNum int, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("chat/%d/%d/%s.%s", userID, personaNum, uuid.NewString(), ext)
}

// PutDataURI decodes a data:<mime>;base64,<payload> string and stores it
// under a fresh ObjectKey for (userID, personaNum). It returns the key.
func (s *Store) PutDataURI(ctx context.Context, userID uint, personaNum int, dataURI string) (string, error) {
	mime, raw, err := decodeDataURI(dataURI)
	if err != nil {
		return "", err
	}
	key := ObjectKey(userID, personaNum, extForMime(mime))
	_, err = s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(raw), int64(len(raw)),
		minio.PutObjectOptions{ContentType: mime})
	if err != nil {
		return "", err
	}
	return key, nil
}

// PresignGet returns a time-limited GET URL for key.
func (s *Store) PresignGet(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// decodeDataURI splits and decodes a base64 data URI into mime type and raw
// bytes.
func decodeDataURI(s string) (mime string, raw []byte, err error) {
	if !strings.HasPrefix(s, "data:") {
		return "", nil, ErrNotDataURI
	}
	meta, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", nil, ErrNotDataURI
	}
	mime = strings.TrimSuffix(meta, ";base64")
	if mime == "" {
		mime = "application/octet-stream"
	}
	raw, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNotDataURI, err)
	}
	return mime, raw, nil
}

func extForMime(mime string) string {
	switch mime {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
