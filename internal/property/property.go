// Package property reads and writes property documents. Properties are
// owned by the listing side of the product; staging only needs their
// panorama images.
package property

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fpang/vista-staging/internal/store"
)

// Collection is the document collection holding properties.
const Collection = "properties"

// ImageTypePanoramic marks images that can be staged.
const ImageTypePanoramic = "panoramic"

type Image struct {
	ID        string `json:"id" dynamodbav:"id"`
	URL       string `json:"url" dynamodbav:"url"`
	Filename  string `json:"filename,omitempty" dynamodbav:"filename,omitempty"`
	ImageType string `json:"image_type" dynamodbav:"image_type"`
}

type Property struct {
	PropertyID string    `json:"property_id" dynamodbav:"property_id"`
	Title      string    `json:"title,omitempty" dynamodbav:"title,omitempty"`
	Address    string    `json:"address,omitempty" dynamodbav:"address,omitempty"`
	Images     []Image   `json:"images" dynamodbav:"images"`
	CreatedAt  time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// Panoramas returns the panoramic images in listing order.
func (p *Property) Panoramas() []Image {
	var out []Image
	for _, img := range p.Images {
		if img.ImageType == ImageTypePanoramic {
			out = append(out, img)
		}
	}
	return out
}

// PanoramaURLs returns the URLs of Panoramas.
func (p *Property) PanoramaURLs() []string {
	pans := p.Panoramas()
	urls := make([]string, len(pans))
	for i, img := range pans {
		urls[i] = img.URL
	}
	return urls
}

// Lookup resolves a property by id. It returns (nil, nil) when the property
// does not exist.
type Lookup interface {
	Get(ctx context.Context, propertyID string) (*Property, error)
}

// Repository stores properties in a DocumentStore.
type Repository struct {
	docs store.DocumentStore
	now  func() time.Time
}

var _ Lookup = (*Repository)(nil)

func NewRepository(docs store.DocumentStore) *Repository {
	return &Repository{docs: docs, now: time.Now}
}

func (r *Repository) Get(ctx context.Context, propertyID string) (*Property, error) {
	var p Property
	found, err := r.docs.Get(ctx, Collection, propertyID, &p)
	if err != nil {
		return nil, fmt.Errorf("get property %s: %w", propertyID, err)
	}
	if !found {
		return nil, nil
	}
	return &p, nil
}

// Put upserts p, stamping CreatedAt on first write and UpdatedAt always.
func (r *Repository) Put(ctx context.Context, p *Property) error {
	if p.PropertyID == "" {
		return errors.New("property id is required")
	}
	now := r.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := r.docs.Put(ctx, Collection, p.PropertyID, p); err != nil {
		return fmt.Errorf("put property %s: %w", p.PropertyID, err)
	}
	return nil
}
