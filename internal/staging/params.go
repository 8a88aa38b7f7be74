package staging

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultRole is used when Parameters.Role is empty.
const DefaultRole = "professional interior designer"

const (
	maxRoleLen    = 200
	maxRequestLen = 2000
	maxColorLen   = 64
)

var hexColorRegex = regexp.MustCompile(`^#[0-9A-F]{6}$`)

// Parameters steer a generation. Every field except Role is optional.
type Parameters struct {
	Role             string `json:"role" dynamodbav:"role"`
	Style            string `json:"style,omitempty" dynamodbav:"style,omitempty"`
	FurnitureStyle   string `json:"furniture_style,omitempty" dynamodbav:"furniture_style,omitempty"`
	ColorScheme      string `json:"color_scheme,omitempty" dynamodbav:"color_scheme,omitempty"`
	SpecificRequests string `json:"specific_requests,omitempty" dynamodbav:"specific_requests,omitempty"`
}

// Normalize trims fields, lower-cases catalog keys, upper-cases hex colours
// and fills in the default role.
func (p Parameters) Normalize() Parameters {
	p.Role = strings.TrimSpace(p.Role)
	if p.Role == "" {
		p.Role = DefaultRole
	}
	p.Style = strings.ToLower(strings.TrimSpace(p.Style))
	p.FurnitureStyle = strings.ToLower(strings.TrimSpace(p.FurnitureStyle))
	p.ColorScheme = strings.TrimSpace(p.ColorScheme)
	if strings.HasPrefix(p.ColorScheme, "#") {
		p.ColorScheme = strings.ToUpper(p.ColorScheme)
	}
	p.SpecificRequests = strings.TrimSpace(p.SpecificRequests)
	return p
}

// IsZero reports whether no field carries a value. Generate and Refine
// treat zero parameters as "keep the session's current parameters".
func (p Parameters) IsZero() bool {
	return strings.TrimSpace(p.Role) == "" &&
		strings.TrimSpace(p.Style) == "" &&
		strings.TrimSpace(p.FurnitureStyle) == "" &&
		strings.TrimSpace(p.ColorScheme) == "" &&
		strings.TrimSpace(p.SpecificRequests) == ""
}

// Validate checks a normalized Parameters value.
func (p Parameters) Validate() error {
	var errs []error
	if len(p.Role) > maxRoleLen {
		errs = append(errs, fmt.Errorf("role must be at most %d characters", maxRoleLen))
	}
	if p.Style != "" {
		if _, ok := styleIndex[p.Style]; !ok {
			errs = append(errs, fmt.Errorf("unknown style %q", p.Style))
		}
	}
	if p.FurnitureStyle != "" {
		if _, ok := furnitureIndex[p.FurnitureStyle]; !ok {
			errs = append(errs, fmt.Errorf("unknown furniture style %q", p.FurnitureStyle))
		}
	}
	switch {
	case strings.HasPrefix(p.ColorScheme, "#") && !hexColorRegex.MatchString(p.ColorScheme):
		errs = append(errs, fmt.Errorf("color scheme %q is not a #RRGGBB colour", p.ColorScheme))
	case len(p.ColorScheme) > maxColorLen:
		errs = append(errs, fmt.Errorf("color scheme must be at most %d characters", maxColorLen))
	}
	if len(p.SpecificRequests) > maxRequestLen {
		errs = append(errs, fmt.Errorf("specific requests must be at most %d characters", maxRequestLen))
	}
	return errors.Join(errs...)
}

// ToMap flattens the non-empty fields, for chat metadata.
func (p Parameters) ToMap() map[string]any {
	m := map[string]any{"role": p.Role}
	if p.Style != "" {
		m["style"] = p.Style
	}
	if p.FurnitureStyle != "" {
		m["furniture_style"] = p.FurnitureStyle
	}
	if p.ColorScheme != "" {
		m["color_scheme"] = p.ColorScheme
	}
	if p.SpecificRequests != "" {
		m["specific_requests"] = p.SpecificRequests
	}
	return m
}

// effectiveParameters returns the normalized request parameters, or the
// session's current ones when the request carries none.
func effectiveParameters(requested Parameters, sess *Session) Parameters {
	if requested.IsZero() {
		return sess.CurrentParameters.Normalize()
	}
	return requested.Normalize()
}

func prepareParameters(p Parameters) (Parameters, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return p, newError(KindValidation, err, "invalid staging parameters")
	}
	return p, nil
}
