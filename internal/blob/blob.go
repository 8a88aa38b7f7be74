// Package blob stores image bytes in object storage and maps between
// object keys and their public URLs.
//
// Keys are generated as {folder}/{YYYYmmdd_HHMMSS}_{uuid8}{ext}, so every
// object written for a staging session sits under that session's folder.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fpang/vista-staging/internal/ids"
)

// ErrNotFound is returned by Get when no object exists for the key.
var ErrNotFound = errors.New("blob: object not found")

// Object describes a stored blob.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Store is the object storage contract used by the staging service.
type Store interface {
	Put(ctx context.Context, data []byte, folder, contentType string) (Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	URL(key string) string
	KeyFromURL(rawURL string) (string, bool)
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// NewKey builds an object key under folder for the given content type.
func NewKey(folder, contentType string, now time.Time) string {
	ext, ok := extensions[contentType]
	if !ok {
		ext = ".bin"
	}
	name := fmt.Sprintf("%s_%s%s", now.UTC().Format("20060102_150405"), ids.Short(8), ext)
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// Keyspace maps keys to URLs under a public base URL, and back.
type Keyspace struct {
	BaseURL string
	Bucket  string
}

// URL returns the public URL of key.
func (k Keyspace) URL(key string) string {
	return k.BaseURL + key
}

// KeyFromURL extracts the object key from a URL produced by URL, or from
// an s3://bucket/key reference. Query strings (presigned URLs) are ignored.
func (k Keyspace) KeyFromURL(rawURL string) (string, bool) {
	if rawURL == "" {
		return "", false
	}
	if k.Bucket != "" {
		if rest, ok := strings.CutPrefix(rawURL, "s3://"+k.Bucket+"/"); ok && rest != "" {
			return rest, true
		}
	}
	if k.BaseURL == "" {
		return "", false
	}
	rest, ok := strings.CutPrefix(rawURL, k.BaseURL)
	if !ok {
		return "", false
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	key, err := url.PathUnescape(rest)
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}
