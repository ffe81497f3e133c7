package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

const (
	uploadsPrefix    = "uploads/"
	aclPrefix        = "acl/"
	defaultUploadTTL = 15 * time.Minute
	sidecarMediaType = "application/json"
)

// s3API is the part of *s3.Client the remote store calls.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type presignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// RemoteConfig configures a RemoteFileStore.
type RemoteConfig struct {
	Client *s3.Client
	Bucket string
	// KeyPrefix is prepended to every key, e.g. "mediator/" gives
	// "mediator/uploads/<id>" and "mediator/acl/<id>.json".
	KeyPrefix    string
	UploadURLTTL time.Duration
}

// RemoteFileStore keeps blobs in an S3 bucket under uploads/ and their ACL
// sidecars as JSON objects under acl/. Clients upload through presigned PUT URLs.
type RemoteFileStore struct {
	objects
	client    s3API
	presign   presignAPI
	bucket    string
	keyPrefix string
	uploadTTL time.Duration
}

func NewRemoteFileStore(cfg RemoteConfig, log zerolog.Logger) (*RemoteFileStore, error) {
	if cfg.Client == nil {
		return nil, errors.New("s3 client is required")
	}
	return newRemoteFileStore(cfg.Client, s3.NewPresignClient(cfg.Client), cfg, log)
}

func newRemoteFileStore(client s3API, presign presignAPI, cfg RemoteConfig, log zerolog.Logger) (*RemoteFileStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	ttl := cfg.UploadURLTTL
	if ttl <= 0 {
		ttl = defaultUploadTTL
	}
	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	s := &RemoteFileStore{
		client:    client,
		presign:   presign,
		bucket:    cfg.Bucket,
		keyPrefix: prefix,
		uploadTTL: ttl,
	}
	s.objects = newObjects(s, log.With().Str("store", "s3").Str("bucket", cfg.Bucket).Logger())
	return s, nil
}

// UploadURL presigns a PUT for a fresh object key.
func (s *RemoteFileStore) UploadURL(ctx context.Context) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.blobKey(newObjectID(""))),
	}, s3.WithPresignExpires(s.uploadTTL))
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}
	return req.URL, nil
}

// NormalizeObjectPath also maps bucket URLs (virtual-hosted or path style,
// presigned or not) that point into the uploads prefix.
func (s *RemoteFileStore) NormalizeObjectPath(raw string) string {
	if p := normalizeObjectPath(raw); p != raw {
		return p
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	key := strings.TrimPrefix(u.Path, "/")
	key = strings.TrimPrefix(key, s.bucket+"/")
	uploads := s.keyPrefix + uploadsPrefix
	if !strings.HasPrefix(key, uploads) || len(key) == len(uploads) {
		return raw
	}
	return logicalPath(strings.TrimPrefix(key, uploads))
}

func (s *RemoteFileStore) blobKey(id string) string {
	return s.keyPrefix + uploadsPrefix + id
}

func (s *RemoteFileStore) sidecarKey(id string) string {
	return s.keyPrefix + aclPrefix + id + sidecarExt
}

func (s *RemoteFileStore) putBlob(ctx context.Context, id string, body io.Reader, contentType string) (int64, error) {
	// The SDK needs a seekable body to compute the payload checksum.
	rs, ok := body.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(body)
		if err != nil {
			return 0, fmt.Errorf("read body: %w", err)
		}
		rs = bytes.NewReader(data)
	}
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seek body: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek body: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.blobKey(id)),
		Body:          rs,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return 0, fmt.Errorf("s3 put %s: %w", id, err)
	}
	return size, nil
}

func (s *RemoteFileStore) openBlob(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.blobKey(id)),
	})
	if err != nil {
		return nil, 0, s.notFound(id, "get", err)
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

func (s *RemoteFileStore) statBlob(ctx context.Context, id string) (*ObjectMeta, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.blobKey(id)),
	})
	if err != nil {
		return nil, s.notFound(id, "head", err)
	}
	meta := &ObjectMeta{
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
		UploadedAt:  aws.ToTime(out.LastModified).UTC(),
	}
	if meta.ContentType == "" {
		meta.ContentType = defaultContentType
	}
	return meta, nil
}

// removeBlob checks existence first; DeleteObject alone succeeds on missing keys.
func (s *RemoteFileStore) removeBlob(ctx context.Context, id string) error {
	if _, err := s.statBlob(ctx, id); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.blobKey(id)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", id, err)
	}
	return nil
}

func (s *RemoteFileStore) readSidecar(ctx context.Context, id string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.sidecarKey(id)),
	})
	if err != nil {
		return nil, s.notFound(id, "get metadata", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *RemoteFileStore) writeSidecar(ctx context.Context, id string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.sidecarKey(id)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(sidecarMediaType),
	})
	if err != nil {
		return fmt.Errorf("s3 put metadata %s: %w", id, err)
	}
	return nil
}

func (s *RemoteFileStore) removeSidecar(ctx context.Context, id string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.sidecarKey(id)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete metadata %s: %w", id, err)
	}
	return nil
}

func (s *RemoteFileStore) listSidecars(ctx context.Context) ([]sidecarEntry, error) {
	prefix := s.keyPrefix + aclPrefix
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}

	var entries []sidecarEntry
	for {
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("s3 list: %w", err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, sidecarExt) {
				continue
			}
			entries = append(entries, sidecarEntry{
				ID:      strings.TrimSuffix(strings.TrimPrefix(key, prefix), sidecarExt),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	return entries, nil
}

func (s *RemoteFileStore) notFound(id, op string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w", id, ErrObjectNotFound)
	}
	return fmt.Errorf("s3 %s %s: %w", op, id, err)
}

var _ FileStore = (*RemoteFileStore)(nil)
