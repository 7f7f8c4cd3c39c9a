package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	cos "github.com/tencentyun/cos-go-sdk-v5"

	"github.com/sparkacademy/portal-service/internal/config"
)

var fileNamePattern = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ObjectStore persists generated media and returns public URLs
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// NewFromConfig picks the COS store when a bucket is configured and falls
// back to the in-memory store otherwise (local runs and tests).
func NewFromConfig(cfg config.StorageConfig) (ObjectStore, error) {
	if strings.TrimSpace(cfg.BucketURL) == "" {
		return NewMemoryStore(), nil
	}
	return NewCOSStore(cfg)
}

// COSStore stores objects in a Tencent COS bucket
type COSStore struct {
	client    *cos.Client
	publicURL string
}

// NewCOSStore builds a store for the configured bucket
func NewCOSStore(cfg config.StorageConfig) (*COSStore, error) {
	if strings.TrimSpace(cfg.SecretID) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("cos credentials are required")
	}

	bucketURL, err := url.Parse(strings.TrimSpace(cfg.BucketURL))
	if err != nil {
		return nil, fmt.Errorf("parse bucket url: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  strings.TrimSpace(cfg.SecretID),
			SecretKey: strings.TrimSpace(cfg.SecretKey),
		},
	})

	return &COSStore{
		client:    client,
		publicURL: strings.TrimRight(strings.TrimSpace(cfg.BucketURL), "/"),
	}, nil
}

// Put uploads the object and returns its public URL
func (s *COSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("object data is empty")
	}

	opts := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType: contentType,
		},
	}
	if _, err := s.client.Object.Put(ctx, key, bytes.NewReader(data), opts); err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	return s.publicURL + "/" + key, nil
}

// Delete removes the object from the bucket
func (s *COSStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.Object.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// BuildObjectKey makes a collision-resistant key under the given folder
func BuildObjectKey(folder string, fileName string) string {
	clean := sanitizeFileName(fileName)
	suffix := randomHex(4)
	key := fmt.Sprintf("%d_%s_%s", time.Now().Unix(), suffix, clean)
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		return key
	}
	return folder + "/" + key
}

func sanitizeFileName(fileName string) string {
	base := strings.TrimSpace(filepath.Base(fileName))
	if base == "" || base == "." || base == "/" {
		base = "media.bin"
	}
	base = fileNamePattern.ReplaceAllString(base, "_")
	if base == "" {
		base = "media.bin"
	}
	return base
}

func randomHex(bytesLen int) string {
	if bytesLen <= 0 {
		bytesLen = 4
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "r"
	}
	return hex.EncodeToString(buf)
}
