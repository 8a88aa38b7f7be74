package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "https://vista-resources.s3.ap-southeast-2.amazonaws.com/"

func TestNewKey(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	tests := []struct {
		folder, contentType string
		pattern             string
	}{
		{"staging/vs_1/0", "image/png", `^staging/vs_1/0/20260304_050607_[0-9a-f]{8}\.png$`},
		{"/staging/vs_1/", "image/jpeg", `^staging/vs_1/20260304_050607_[0-9a-f]{8}\.jpg$`},
		{"", "application/octet-stream", `^20260304_050607_[0-9a-f]{8}\.bin$`},
	}
	for _, tt := range tests {
		key := NewKey(tt.folder, tt.contentType, now)
		assert.Regexp(t, regexp.MustCompile(tt.pattern), key)
	}
}

func TestKeyspace_KeyFromURL(t *testing.T) {
	k := Keyspace{BaseURL: testBase, Bucket: "vista-resources"}
	tests := []struct {
		name   string
		url    string
		want   string
		wantOK bool
	}{
		{"public url", testBase + "staging/vs_1/a.png", "staging/vs_1/a.png", true},
		{"presigned", testBase + "staging/a.png?X-Amz-Signature=abc", "staging/a.png", true},
		{"escaped", testBase + "properties/room%201.jpg", "properties/room 1.jpg", true},
		{"s3 uri", "s3://vista-resources/staging/b.png", "staging/b.png", true},
		{"foreign host", "https://example.com/a.png", "", false},
		{"base only", testBase, "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := k.KeyFromURL(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, testBase+"x/y.png", k.URL("x/y.png"))
}

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(testBase)

	obj, err := m.Put(ctx, []byte("png-bytes"), "staging/vs_1/0", "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.Key, "staging/vs_1/0/"))
	assert.Equal(t, testBase+obj.Key, obj.URL)
	assert.Equal(t, 9, obj.Size)

	ok, err := m.Exists(ctx, obj.Key)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := m.Get(ctx, obj.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	key, ok := m.KeyFromURL(obj.URL)
	require.True(t, ok)
	assert.Equal(t, obj.Key, key)

	deleted, err := m.Delete(ctx, obj.Key)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = m.Delete(ctx, obj.Key)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = m.Get(ctx, obj.Key)
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeS3 struct {
	put     *s3.PutObjectInput
	body    []byte
	getErr  error
	headErr error
	deleted []string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3Store_Put(t *testing.T) {
	fake := &fakeS3{}
	s := NewS3Store(fake, "vista-resources", testBase)

	obj, err := s.Put(context.Background(), []byte("img"), "staging/vs_1/2", "image/png")
	require.NoError(t, err)

	assert.Equal(t, "vista-resources", aws.ToString(fake.put.Bucket))
	assert.Equal(t, obj.Key, aws.ToString(fake.put.Key))
	assert.Equal(t, "image/png", aws.ToString(fake.put.ContentType))
	assert.Equal(t, projectTag, aws.ToString(fake.put.Tagging))
	assert.Equal(t, []byte("img"), fake.body)
	assert.True(t, strings.HasPrefix(obj.Key, "staging/vs_1/2/"))
	assert.Equal(t, testBase+obj.Key, obj.URL)
}

func TestS3Store_GetNotFound(t *testing.T) {
	fake := &fakeS3{getErr: &s3types.NoSuchKey{}}
	s := NewS3Store(fake, "vista-resources", testBase)

	_, err := s.Get(context.Background(), "missing.png")
	assert.ErrorIs(t, err, ErrNotFound)

	fake.getErr = errors.New("access denied")
	_, err = s.Get(context.Background(), "x.png")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestS3Store_Exists(t *testing.T) {
	fake := &fakeS3{}
	s := NewS3Store(fake, "vista-resources", testBase)

	ok, err := s.Exists(context.Background(), "a.png")
	require.NoError(t, err)
	assert.True(t, ok)

	fake.headErr = &s3types.NotFound{}
	ok, err = s.Exists(context.Background(), "a.png")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3Store_Delete(t *testing.T) {
	fake := &fakeS3{}
	s := NewS3Store(fake, "vista-resources", testBase)

	ok, err := s.Delete(context.Background(), "staging/vs_1/a.png")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"staging/vs_1/a.png"}, fake.deleted)
}
