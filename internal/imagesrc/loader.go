// Package imagesrc loads source and mask images for generation. Images
// held in the service's own bucket are read through the blob store; any
// other http(s) URL is fetched directly with a bounded timeout.
package imagesrc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/vista-staging/internal/blob"
)

// DefaultFetchTimeout bounds remote image downloads.
const DefaultFetchTimeout = 30 * time.Second

// maxFetchBytes caps remote downloads.
const maxFetchBytes = 40 << 20

// ErrUnsupportedType is returned for payloads that are not a supported image format.
var ErrUnsupportedType = errors.New("imagesrc: unsupported image type")

var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Image is an in-memory image ready to send to the generator.
type Image struct {
	Data     []byte
	MIMEType string
}

// Loader resolves image URLs to bytes.
type Loader struct {
	blobs        blob.Store
	httpClient   *http.Client
	maxDimension int
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient overrides the client used for remote URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.httpClient = c }
}

// WithMaxDimension downscales images whose longest side exceeds n pixels.
// Zero disables downscaling.
func WithMaxDimension(n int) Option {
	return func(l *Loader) { l.maxDimension = n }
}

// NewLoader creates a Loader. Remote fetches time out after fetchTimeout
// (DefaultFetchTimeout when zero).
func NewLoader(blobs blob.Store, fetchTimeout time.Duration, opts ...Option) *Loader {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	l := &Loader{
		blobs:      blobs,
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches the image at rawURL, checks its type, and downscales it if
// configured to.
func (l *Loader) Load(ctx context.Context, rawURL string) (*Image, error) {
	start := time.Now()
	data, source, err := l.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	mimeType := DetectMIME(data)
	if !supportedTypes[mimeType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	img := &Image{Data: data, MIMEType: mimeType}

	if l.maxDimension > 0 {
		resized, err := Downscale(img, l.maxDimension)
		if err != nil {
			log.Warn().Err(err).Str("url", rawURL).Msg("Downscale failed, using original image")
		} else {
			img = resized
		}
	}

	log.Debug().
		Str("url", rawURL).
		Str("source", source).
		Str("mime", img.MIMEType).
		Int("bytes", len(img.Data)).
		Dur("duration", time.Since(start)).
		Msg("Image loaded")
	return img, nil
}

func (l *Loader) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if l.blobs != nil {
		if key, ok := l.blobs.KeyFromURL(rawURL); ok {
			data, err := l.blobs.Get(ctx, key)
			if err != nil {
				return nil, "", fmt.Errorf("load %s from blob store: %w", key, err)
			}
			return data, "blob", nil
		}
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, "", fmt.Errorf("unsupported image url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("download image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image body: %w", err)
	}
	if len(data) > maxFetchBytes {
		return nil, "", fmt.Errorf("download image: larger than %d bytes", maxFetchBytes)
	}
	return data, "http", nil
}

// DetectMIME sniffs the content type of data.
func DetectMIME(data []byte) string {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}
