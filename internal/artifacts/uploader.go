// Package artifacts uploads terminal run artifacts to S3-compatible storage.
package artifacts

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"dubcast/internal/config"
)

// Uploader pushes files to a configured bucket. A nil Uploader is valid and
// uploads nothing.
type Uploader struct {
	client *minio.Client
	cfg    config.Storage
}

// NewUploader builds an uploader from storage configuration. Returns nil when
// storage is disabled.
func NewUploader(cfg config.Storage) (*Uploader, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &Uploader{client: client, cfg: cfg}, nil
}

// Enabled reports whether uploads will actually happen.
func (u *Uploader) Enabled() bool {
	return u != nil && u.client != nil
}

// Upload stores a local file under jobID/name and returns the object URL.
func (u *Uploader) Upload(ctx context.Context, localPath, jobID, name string) (string, error) {
	if !u.Enabled() {
		return "", nil
	}
	key := path.Join(jobID, name)
	if u.cfg.Prefix != "" {
		key = path.Join(u.cfg.Prefix, key)
	}

	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := u.client.FPutObject(ctx, u.cfg.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	scheme := "http"
	if u.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, strings.TrimSuffix(u.cfg.Endpoint, "/"), u.cfg.Bucket, key), nil
}
