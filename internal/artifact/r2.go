package artifact

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/you/snapsize/internal/domain"
)

// R2 reads archives from an S3-compatible bucket (Cloudflare R2 in prod).
type R2 struct {
	client *minio.Client
	bucket string
}

func NewR2(endpoint, accessKeyID, secretAccessKey, bucket string) (*R2, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init object store client")
	}
	return &R2{client: client, bucket: bucket}, nil
}

func (s *R2) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "get object")
	}
	// GetObject is lazy; Stat forces the lookup so a missing key surfaces
	// here instead of on first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(err, "stat object")
	}
	return obj, nil
}
