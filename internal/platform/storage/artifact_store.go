package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/phrazzld/revival-api/internal/config"
)

// maxArtifactBytes caps how large a fetched artifact may be. Generation
// results are single images; anything bigger than this is not one.
const maxArtifactBytes = 32 << 20

// ArtifactStore persists generation artifacts in an S3-compatible bucket and
// returns stable public URLs for them. The external service's result URLs
// are short-lived, so artifacts are re-homed here before being recorded.
type ArtifactStore struct {
	bucket        string
	prefix        string
	publicBaseURL string
	client        *s3.Client
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewArtifactStore creates an ArtifactStore from the storage configuration.
func NewArtifactStore(cfg config.StorageConfig, logger *slog.Logger) (*ArtifactStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("storage region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("storage credentials are required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("storage public base URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "artifacts"
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return &ArtifactStore{
		bucket:        cfg.Bucket,
		prefix:        strings.Trim(prefix, "/"),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		client:        s3.New(options),
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		logger:        logger.With(slog.String("component", "artifact_store")),
	}, nil
}

// Store uploads raw artifact bytes and returns the artifact's public URL.
func (s *ArtifactStore) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no artifact data to store")
	}
	if contentType == "" {
		contentType = "image/png"
	}

	key := s.objectKey(contentType)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("uploading artifact: %w", err)
	}

	publicURL := s.publicBaseURL + "/" + key
	s.logger.Debug("artifact stored",
		slog.String("key", key),
		slog.Int("bytes", len(data)))
	return publicURL, nil
}

// Rehome downloads an artifact from a remote URL and re-uploads it to the
// bucket, returning the new stable URL.
func (s *ArtifactStore) Rehome(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("building artifact fetch request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching artifact: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetching artifact: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading artifact body: %w", err)
	}
	if len(data) > maxArtifactBytes {
		return "", fmt.Errorf("artifact exceeds %d byte limit", maxArtifactBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFromURL(sourceURL)
	}

	return s.Store(ctx, data, contentType)
}

func (s *ArtifactStore) objectKey(contentType string) string {
	now := time.Now().UTC()
	datePath := fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day())
	return path.Join(s.prefix, datePath, uuid.NewString()+extensionFor(contentType))
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

func contentTypeFromURL(sourceURL string) string {
	trimmed := sourceURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	switch strings.ToLower(path.Ext(trimmed)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
