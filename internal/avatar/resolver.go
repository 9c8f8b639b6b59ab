package avatar

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// ErrEmptyKey is returned when asked to resolve a blank object key.
var ErrEmptyKey = errors.New("avatar key is empty")

// presigner is the subset of *minio.Client used to sign avatar downloads.
type presigner interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

// PresignedResolver turns avatar object keys into time-limited MinIO download URLs.
type PresignedResolver struct {
	client presigner
	bucket string
	ttl    time.Duration
}

// NewPresignedResolver builds a resolver that signs GET URLs for objects in bucket.
func NewPresignedResolver(client *minio.Client, bucket string, ttl time.Duration) *PresignedResolver {
	return &PresignedResolver{client: client, bucket: bucket, ttl: ttl}
}

// AvatarURL returns an absolute presigned URL for key.
func (r *PresignedResolver) AvatarURL(ctx context.Context, key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrEmptyKey
	}

	u, err := r.client.PresignedGetObject(ctx, r.bucket, key, r.ttl, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("presign avatar %q: %w", key, err)
	}

	return u.String(), nil
}

// StaticResolver joins avatar keys onto a public media base URL, e.g. a CDN in front of the bucket.
type StaticResolver struct {
	base *url.URL
}

// NewStaticResolver validates baseURL, which must be absolute.
func NewStaticResolver(baseURL string) (*StaticResolver, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse avatar base url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("avatar base url %q must be absolute", baseURL)
	}
	return &StaticResolver{base: u}, nil
}

// AvatarURL returns base URL + key. Keys that are already absolute URLs pass through.
func (r *StaticResolver) AvatarURL(_ context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	if parsed, err := url.Parse(key); err == nil && parsed.IsAbs() {
		return key, nil
	}

	u := *r.base
	u.Path = path.Join("/", r.base.Path, key)
	return u.String(), nil
}
