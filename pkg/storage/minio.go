package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ImageStore stores ad images in a MinIO bucket under content-opaque keys.
type ImageStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

func NewImageStore(endpoint, accessKey, secretKey string, useSSL bool, bucket, publicBaseURL string) (*ImageStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minIO client init error: %w", err)
	}

	return &ImageStore{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *ImageStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("error checking bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("error creating bucket: %w", err)
		}
	}

	return nil
}

// Put uploads an image and returns the generated key and its public URL. The
// key is a hash of the upload time and original name, so stored filenames are
// opaque to clients and collisions between identical names are avoided.
func (s *ImageStore) Put(ctx context.Context, originalName string, data []byte, contentType string) (string, string, error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("image payload must not be empty")
	}

	key := hashKey(originalName, time.Now())

	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", "", fmt.Errorf("upload object error: %w", err)
	}

	return key, s.publicBaseURL + "/" + key, nil
}

// Delete removes a stored image.
func (s *ImageStore) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("error deleting object: %w", err)
	}
	return nil
}

// Exists reports whether a stored image is still retrievable.
func (s *ImageStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("error checking object: %w", err)
	}
	return true, nil
}

// hashKey derives an opaque object key, preserving the file extension.
func hashKey(originalName string, now time.Time) string {
	ext := path.Ext(originalName)
	base := strings.TrimSuffix(path.Base(originalName), ext)

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%s", now.UTC().Format(time.RFC3339Nano), base)))
	return hex.EncodeToString(sum[:]) + ext
}
