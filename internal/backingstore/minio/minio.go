// Package minio wires internal/backingstore to MinIO and other
// S3-compatible self-hosted object stores, parsing a
// "minio://endpoint/bucket/prefix" storage URL into a minio-go client and
// handing the resulting blobstore.BlobStore to backingstore.New. This is
// the air-gap-friendly alternative to backingstore/s3 for a placement
// deployment that has no AWS credentials to offer.
package minio

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	minioblob "github.com/evoplace/placer/blobstore/minio"
	"github.com/evoplace/placer/internal/backingstore"
	"github.com/evoplace/placer/internal/resource"
)

// Credential environment variables, read when the storage URL carries none.
const (
	AccessKeyEnv = "MINIO_ACCESS_KEY_ID"
	SecretKeyEnv = "MINIO_SECRET_ACCESS_KEY"
)

// ParseURL splits a "minio://endpoint/bucket/prefix" storage URL (optionally
// "?secure=true" to use HTTPS) into the minio client's endpoint, bucket, and
// key-prefix parts.
func ParseURL(rawURL string) (endpoint, bucket, prefix string, secure bool, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", false, fmt.Errorf("backingstore/minio: parse %q: %w", rawURL, err)
	}
	if u.Scheme != "minio" {
		return "", "", "", false, fmt.Errorf("backingstore/minio: %q is not a minio:// URL", rawURL)
	}
	if u.Host == "" {
		return "", "", "", false, fmt.Errorf("backingstore/minio: %q has no endpoint", rawURL)
	}
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if parts[0] == "" {
		return "", "", "", false, fmt.Errorf("backingstore/minio: %q has no bucket", rawURL)
	}
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = parts[1]
	}
	secure = u.Query().Get("secure") == "true"
	return u.Host, bucket, prefix, secure, nil
}

// Open builds a minio.Client for rawURL, taking credentials from
// AccessKeyEnv/SecretKeyEnv, and returns a backingstore.Store over the
// resulting bucket/prefix.
func Open(ctx context.Context, rawURL string, rc *resource.Controller) (*backingstore.Store, error) {
	endpoint, bucket, prefix, secure, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv(AccessKeyEnv), os.Getenv(SecretKeyEnv), ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("backingstore/minio: new client: %w", err)
	}

	if ok, err := client.BucketExists(ctx, bucket); err != nil {
		return nil, fmt.Errorf("backingstore/minio: check bucket %q: %w", bucket, err)
	} else if !ok {
		return nil, fmt.Errorf("backingstore/minio: bucket %q does not exist", bucket)
	}

	store := minioblob.NewStore(client, bucket, prefix)
	return backingstore.New(store, rc), nil
}
