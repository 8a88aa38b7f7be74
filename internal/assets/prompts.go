// Package assets holds the prompt templates sent to the image model.
//
// Templates are stored as text files under prompts/ and embedded at compile time.
package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

//go:embed prompts/staging-base.txt
var stagingBaseTemplate string

//go:embed prompts/format-preservation.txt
var formatPreservation string

//go:embed prompts/format-preservation-refine.txt
var formatPreservationRefine string

//go:embed prompts/mask-custom.txt
var maskCustom string

//go:embed prompts/mask-generate.txt
var maskGenerate string

//go:embed prompts/mask-refine.txt
var maskRefine string

var stagingBaseTmpl = template.Must(template.New("staging-base").Parse(stagingBaseTemplate))

// StagingPromptData holds the dynamic data injected into the staging prompt.
type StagingPromptData struct {
	// Role is the persona the model is asked to adopt.
	Role string
	// StylingLines are rendered as bullets under STYLING PARAMETERS.
	// The section is omitted when empty.
	StylingLines []string
	// AdditionalRequest is free text from the user.
	AdditionalRequest string
}

// RenderStagingPrompt renders the base staging instruction.
func RenderStagingPrompt(data StagingPromptData) string {
	var buf bytes.Buffer
	// Execution errors are not expected with this template; whatever was
	// rendered is returned.
	_ = stagingBaseTmpl.Execute(&buf, data)
	return strings.TrimRight(buf.String(), "\n")
}

// FormatPreservation is appended to generation prompts.
func FormatPreservation() string { return strings.TrimSpace(formatPreservation) }

// FormatPreservationRefine is appended to refinement prompts.
func FormatPreservationRefine() string { return strings.TrimSpace(formatPreservationRefine) }

// MaskCustom is appended to user-written prompts when a mask is supplied.
func MaskCustom() string { return strings.TrimSpace(maskCustom) }

// MaskGenerate is appended to built generation prompts when a mask is supplied.
func MaskGenerate() string { return strings.TrimSpace(maskGenerate) }

// MaskRefine is appended to refinement prompts when a mask is supplied.
func MaskRefine() string { return strings.TrimSpace(maskRefine) }
