package upload

import (
	"context"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Sink stores uploaded stream objects.
type Sink interface {
	// Upload writes r under key and returns the object's URL.
	Upload(ctx context.Context, key string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// BlobSink writes objects to a gocloud bucket (file://, s3://, mem://).
type BlobSink struct {
	bucket    *blob.Bucket
	prefix    string
	publicURL string
}

var _ Sink = (*BlobSink)(nil)

// OpenBlobSink opens bucketURL. Object keys live under prefix when it is set;
// returned URLs are built from publicURL, or from bucketURL without its query.
func OpenBlobSink(ctx context.Context, bucketURL, prefix, publicURL string) (*BlobSink, error) {
	bk, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	if publicURL == "" {
		publicURL = bucketURL
		if u, err := url.Parse(bucketURL); err == nil {
			u.RawQuery = ""
			publicURL = u.String()
		}
	}
	return NewBlobSink(bk, prefix, publicURL), nil
}

func NewBlobSink(bk *blob.Bucket, prefix, publicURL string) *BlobSink {
	return &BlobSink{
		bucket:    bk,
		prefix:    sanitizeKey(prefix),
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *BlobSink) Upload(ctx context.Context, key string, r io.Reader) (string, error) {
	key = s.objectKey(key)
	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return s.publicURL + "/" + key, nil
}

func (s *BlobSink) Delete(ctx context.Context, key string) error {
	return s.bucket.Delete(ctx, s.objectKey(key))
}

func (s *BlobSink) Close() error {
	return s.bucket.Close()
}

func (s *BlobSink) objectKey(key string) string {
	key = sanitizeKey(key)
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// sanitizeKey prevents path traversal.
func sanitizeKey(key string) string {
	key = filepath.ToSlash(key)
	parts := strings.Split(key, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, "/")
}
