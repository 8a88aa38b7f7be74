// Package imagegen edits staging images with a generative image model.
package imagegen

import (
	"context"

	"github.com/fpang/vista-staging/internal/imagesrc"
)

// Request is one image edit: the source image, an optional mask marking the
// region to change, and the instruction text.
type Request struct {
	Prompt string
	Image  *imagesrc.Image
	Mask   *imagesrc.Image
}

// Result holds the generated image and any text the model returned with it.
type Result struct {
	Data     []byte
	MIMEType string
	Text     string
}

// Generator produces an edited image. Implementations make a single attempt;
// failures are returned as *Error.
type Generator interface {
	Edit(ctx context.Context, req Request) (*Result, error)
}
