package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// fakeS3 is an in-memory bucket answering the calls RemoteFileStore makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]fakeObject{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.objects[aws.ToString(in.Key)] = fakeObject{data: data, contentType: aws.ToString(in.ContentType), modified: time.Now()}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			LastModified: aws.Time(f.objects[k].modified),
			Size:         aws.Int64(int64(len(f.objects[k].data))),
		})
	}
	return out, nil
}

func (f *fakeS3) put(key, contentType string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{data: data, contentType: contentType, modified: time.Now()}
}

func (f *fakeS3) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

type fakePresigner struct {
	bucket  string
	expires time.Duration
}

func (p *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	p.expires = opts.Expires
	return &v4.PresignedHTTPRequest{
		Method: http.MethodPut,
		URL: fmt.Sprintf("https://%s.s3.us-east-1.amazonaws.com/%s?X-Amz-Expires=%d&X-Amz-Signature=abc",
			p.bucket, aws.ToString(in.Key), int(opts.Expires.Seconds())),
	}, nil
}

func newTestRemoteStore(t *testing.T) (*RemoteFileStore, *fakeS3, *fakePresigner) {
	t.Helper()
	client := newFakeS3()
	presign := &fakePresigner{bucket: "case-docs"}
	s, err := newRemoteFileStore(client, presign, RemoteConfig{
		Bucket:       "case-docs",
		KeyPrefix:    "mediator",
		UploadURLTTL: 10 * time.Minute,
	}, zerolog.Nop())
	require.NoError(t, err)
	return s, client, presign
}

func TestRemote_RequiresBucket(t *testing.T) {
	_, err := newRemoteFileStore(newFakeS3(), &fakePresigner{}, RemoteConfig{}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewRemoteFileStore(RemoteConfig{Bucket: "b"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRemote_SaveScenario(t *testing.T) {
	s, client, _ := newTestRemoteStore(t)
	ctx := context.Background()

	p := saveText(t, s, "0123456789", "u1")
	id, err := objectID(p)
	require.NoError(t, err)
	assert.True(t, client.has("mediator/uploads/"+id))
	assert.True(t, client.has("mediator/acl/"+id+".json"))

	assert.True(t, s.CanAccessFile(ctx, p, "u1", PermissionRead))
	assert.False(t, s.CanAccessFile(ctx, p, "u2", PermissionRead))

	resp, body := download(t, s, p)
	assert.Equal(t, "0123456789", string(body))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "private, max-age=3600", resp.Header.Get("Cache-Control"))
}

func TestRemote_StreamingBodyIsBuffered(t *testing.T) {
	s, _, _ := newTestRemoteStore(t)
	p, err := s.SaveFile(context.Background(), io.MultiReader(strings.NewReader("ab"), strings.NewReader("cd")),
		ObjectInfo{ContentType: "text/plain"}, "u1")
	require.NoError(t, err)

	meta, err := s.Metadata(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(4), meta.Size)
}

func TestRemote_AclRules(t *testing.T) {
	s, _, _ := newTestRemoteStore(t)
	ctx := context.Background()
	p := saveText(t, s, "shared", "u1")

	require.NoError(t, s.SetAclPolicy(ctx, p, AclPatch{AllowedUsers: &[]string{"u2"}}))
	assert.True(t, s.CanAccessFile(ctx, p, "u2", PermissionRead))
	assert.False(t, s.CanAccessFile(ctx, p, "u3", PermissionRead))
	assert.False(t, s.CanAccessFile(ctx, p, "", PermissionRead))

	require.NoError(t, s.SetAclPolicy(ctx, p, AclPatch{Visibility: ptr(VisibilityPublic)}))
	assert.True(t, s.CanAccessFile(ctx, p, "", PermissionRead))
	assert.False(t, s.CanAccessFile(ctx, p, "u2", PermissionWrite))

	resp, _ := download(t, s, p)
	assert.Equal(t, "public, max-age=3600", resp.Header.Get("Cache-Control"))
}

func TestRemote_SignedUploadThenRegister(t *testing.T) {
	s, client, presign := newTestRemoteStore(t)
	ctx := context.Background()

	uploadURL, err := s.UploadURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, presign.expires)
	assert.Contains(t, uploadURL, "https://case-docs.s3.us-east-1.amazonaws.com/mediator/uploads/")

	p := s.NormalizeObjectPath(uploadURL)
	require.True(t, strings.HasPrefix(p, ObjectPrefix), p)
	id, err := objectID(p)
	require.NoError(t, err)

	// Nothing uploaded yet: registering must not invent a record.
	assert.ErrorIs(t, s.SetAclPolicy(ctx, p, AclPatch{Owner: "u1"}), ErrObjectNotFound)
	assert.False(t, client.has("mediator/acl/"+id+".json"))

	// The client PUTs to the signed URL.
	client.put("mediator/uploads/"+id, "image/png", []byte("png-bytes"))
	require.NoError(t, s.SetAclPolicy(ctx, p, AclPatch{Owner: "u1"}))

	meta, err := s.Metadata(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "u1", meta.Owner)
	assert.Equal(t, "image/png", meta.ContentType)
	assert.Equal(t, int64(9), meta.Size)
	assert.Equal(t, VisibilityPrivate, meta.Visibility)
	assert.True(t, s.CanAccessFile(ctx, p, "u1", PermissionRead))
}

func TestRemote_NormalizeObjectPath(t *testing.T) {
	s, _, _ := newTestRemoteStore(t)

	cases := map[string]string{
		"/objects/abc":                                                      "/objects/abc",
		"https://example.com/objects/f1":                                    "/objects/f1",
		"https://case-docs.s3.amazonaws.com/mediator/uploads/abc?X=1":       "/objects/abc",
		"https://s3.us-east-1.amazonaws.com/case-docs/mediator/uploads/abc": "/objects/abc",
		"https://case-docs.s3.amazonaws.com/other/uploads/abc":              "https://case-docs.s3.amazonaws.com/other/uploads/abc",
		"https://case-docs.s3.amazonaws.com/mediator/uploads/":              "https://case-docs.s3.amazonaws.com/mediator/uploads/",
		"opaque-id":                                                         "opaque-id",
	}
	for in, want := range cases {
		assert.Equal(t, want, s.NormalizeObjectPath(in), "input %q", in)
	}
}

func TestRemote_Delete(t *testing.T) {
	s, client, _ := newTestRemoteStore(t)
	ctx := context.Background()
	p := saveText(t, s, "bye", "u1")
	id, _ := objectID(p)

	require.NoError(t, s.DeleteFile(ctx, p))
	assert.False(t, client.has("mediator/uploads/"+id))
	assert.False(t, client.has("mediator/acl/"+id+".json"))
	assert.ErrorIs(t, s.DeleteFile(ctx, p), ErrObjectNotFound)

	resp, _ := download(t, s, p)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRemote_PurgePending(t *testing.T) {
	s, client, _ := newTestRemoteStore(t)
	ctx := context.Background()

	require.NoError(t, s.writeMeta(ctx, "stale", &ObjectMeta{Visibility: VisibilityPrivate, Pending: true}))
	client.put("mediator/uploads/stale", "text/plain", []byte("partial"))
	require.NoError(t, s.writeMeta(ctx, "no-blob", &ObjectMeta{Visibility: VisibilityPrivate, Pending: true}))
	kept := saveText(t, s, "kept", "u1")

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err := s.PurgePending(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.False(t, client.has("mediator/uploads/stale"))
	assert.False(t, client.has("mediator/acl/stale.json"))
	assert.False(t, client.has("mediator/acl/no-blob.json"))
	assert.True(t, s.CanAccessFile(ctx, kept, "u1", PermissionRead))
}
