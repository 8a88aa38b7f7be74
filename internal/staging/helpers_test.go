package staging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fpang/vista-staging/internal/blob"
	"github.com/fpang/vista-staging/internal/events"
	"github.com/fpang/vista-staging/internal/imagegen"
	"github.com/fpang/vista-staging/internal/imagesrc"
	"github.com/fpang/vista-staging/internal/lock"
	"github.com/fpang/vista-staging/internal/property"
	"github.com/fpang/vista-staging/internal/store"
)

const testBaseURL = "https://cdn.example.com/"

func testPNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for x := 0; x < 4; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeGenerator records requests and returns a fixed PNG. When block is
// set, Edit signals on started and waits for block to close.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   []imagegen.Request
	out     []byte
	err     error
	started chan struct{}
	block   chan struct{}
}

func (g *fakeGenerator) Edit(ctx context.Context, req imagegen.Request) (*imagegen.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	if g.started != nil {
		g.started <- struct{}{}
	}
	if g.block != nil {
		<-g.block
	}
	if g.err != nil {
		return nil, g.err
	}
	return &imagegen.Result{Data: g.out, MIMEType: "image/png"}, nil
}

func (g *fakeGenerator) Calls() []imagegen.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]imagegen.Request(nil), g.calls...)
}

// flakyBlobs fails Put or Delete on demand and otherwise delegates to the
// wrapped memory store.
type flakyBlobs struct {
	*blob.Memory
	putErr    error
	deleteErr error
}

func (b *flakyBlobs) Put(ctx context.Context, data []byte, folder, contentType string) (blob.Object, error) {
	if b.putErr != nil {
		return blob.Object{}, b.putErr
	}
	return b.Memory.Put(ctx, data, folder, contentType)
}

func (b *flakyBlobs) Delete(ctx context.Context, key string) (bool, error) {
	if b.deleteErr != nil {
		return false, b.deleteErr
	}
	return b.Memory.Delete(ctx, key)
}

// countingLocker counts lock attempts.
type countingLocker struct {
	lock.Locker
	mu       sync.Mutex
	attempts int
}

func (l *countingLocker) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	l.attempts++
	l.mu.Unlock()
	return l.Locker.TryAcquire(ctx, key)
}

func (l *countingLocker) Attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

type testEnv struct {
	svc    *Service
	docs   *store.MemoryStore
	blobs  *blob.Memory
	gen    *fakeGenerator
	events *events.Recorder
	panos  []string
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	ctx := context.Background()

	docs := store.NewMemoryStore()
	blobs := blob.NewMemory(testBaseURL)
	a := blobs.Seed("properties/prop-1/living.png", testPNG(t, 10))
	b := blobs.Seed("properties/prop-1/kitchen.png", testPNG(t, 20))

	props := property.NewRepository(docs)
	require.NoError(t, props.Put(ctx, &property.Property{
		PropertyID: "prop-1",
		Title:      "Harbour View Loft",
		Images: []property.Image{
			{ID: "img-a", URL: a, Filename: "living.png", ImageType: property.ImageTypePanoramic},
			{ID: "img-x", URL: testBaseURL + "properties/prop-1/front.jpg", Filename: "front.jpg", ImageType: "exterior"},
			{ID: "img-b", URL: b, Filename: "kitchen.png", ImageType: property.ImageTypePanoramic},
		},
	}))
	require.NoError(t, props.Put(ctx, &property.Property{PropertyID: "prop-empty"}))

	gen := &fakeGenerator{out: testPNG(t, 200)}
	rec := &events.Recorder{}
	svc := NewService(Deps{
		Docs:       docs,
		Blobs:      blobs,
		Images:     imagesrc.NewLoader(blobs, time.Second),
		Generator:  gen,
		Properties: props,
		Events:     rec,
	}, opts)

	clock := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	return &testEnv{svc: svc, docs: docs, blobs: blobs, gen: gen, events: rec, panos: []string{a, b}}
}

func (e *testEnv) newSession(t *testing.T) *Session {
	t.Helper()
	sess, err := e.svc.CreateForProperty(context.Background(), "prop-1", "user-7", Parameters{})
	require.NoError(t, err)
	return sess
}

// useFlakyBlobs routes the service's blob writes and deletes through a
// flakyBlobs wrapper. Reads still go to the memory store.
func (e *testEnv) useFlakyBlobs() *flakyBlobs {
	fb := &flakyBlobs{Memory: e.blobs}
	e.svc.blobs = fb
	return fb
}

func (e *testEnv) reload(t *testing.T, id string) *Session {
	t.Helper()
	sess, err := e.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return sess
}
