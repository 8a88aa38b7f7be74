package main

import (
	"context"
	"errors"

	"github.com/fpang/vista-staging/internal/imagegen"
)

// offlineGenerator stands in for the Gemini client in admin commands that
// never generate images, so they run without an API key.
type offlineGenerator struct{}

func (offlineGenerator) Edit(context.Context, imagegen.Request) (*imagegen.Result, error) {
	return nil, errors.New("image generation is not available in admin commands")
}
