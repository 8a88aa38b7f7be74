package staging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/vista-staging/internal/assets"
)

func TestParameters_NormalizeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      Parameters
		want    Parameters
		wantErr string
	}{
		{
			name: "defaults role",
			in:   Parameters{},
			want: Parameters{Role: DefaultRole},
		},
		{
			name: "normalizes keys and hex",
			in:   Parameters{Role: " stager ", Style: " Modern", FurnitureStyle: "MID-CENTURY", ColorScheme: "#ff5733"},
			want: Parameters{Role: "stager", Style: "modern", FurnitureStyle: "mid-century", ColorScheme: "#FF5733"},
		},
		{
			name: "free text colour",
			in:   Parameters{ColorScheme: "soft sage green"},
			want: Parameters{Role: DefaultRole, ColorScheme: "soft sage green"},
		},
		{name: "unknown style", in: Parameters{Style: "gothic"}, wantErr: `unknown style "gothic"`},
		{name: "unknown furniture", in: Parameters{FurnitureStyle: "baroque"}, wantErr: `unknown furniture style "baroque"`},
		{name: "short hex", in: Parameters{ColorScheme: "#FFF"}, wantErr: "not a #RRGGBB colour"},
		{name: "long colour", in: Parameters{ColorScheme: strings.Repeat("a", maxColorLen+1)}, wantErr: "at most 64"},
		{name: "long request", in: Parameters{SpecificRequests: strings.Repeat("a", maxRequestLen+1)}, wantErr: "specific requests"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := prepareParameters(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, KindValidation, KindOf(err))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParameters_ToMap(t *testing.T) {
	p := Parameters{Role: DefaultRole, Style: "warm", SpecificRequests: "add plants"}
	assert.Equal(t, map[string]any{
		"role":              DefaultRole,
		"style":             "warm",
		"specific_requests": "add plants",
	}, p.ToMap())
}

func TestBuildStagingPrompt(t *testing.T) {
	got := BuildStagingPrompt(Parameters{
		Style:            "industrial",
		FurnitureStyle:   "vintage",
		ColorScheme:      "#8B4513",
		SpecificRequests: "keep the piano",
	})
	assert.True(t, strings.HasPrefix(got, "You are an expert "+DefaultRole+"."))
	assert.Contains(t, got, "STYLING PARAMETERS:\n- Style: INDUSTRIAL: exposed elements")
	assert.Contains(t, got, "- Furniture Theme: VINTAGE: retro pieces")
	assert.Contains(t, got, "- Color Scheme: Saddle Brown (#8B4513) - warm and earthy")
	assert.Contains(t, got, "Additional Request: keep the piano")

	bare := BuildStagingPrompt(Parameters{Role: "set designer"})
	assert.Contains(t, bare, "You are an expert set designer.")
	assert.NotContains(t, bare, "STYLING PARAMETERS")
	assert.Contains(t, bare, "Additional Request: No additional specific requests")
	assert.Contains(t, BuildStagingPrompt(Parameters{ColorScheme: "dusty rose"}), "- Color Scheme: dusty rose")
}

func TestBuildRefinementContext(t *testing.T) {
	got := BuildRefinementContext(
		Parameters{Style: "modern"},
		Parameters{Style: "warm", ColorScheme: "#FF5733"},
		[]string{"a", "b", "c", "d"},
	)
	want := "REFINEMENT CONTEXT:\n" +
		"Changes made:\n" +
		"- Style changed from modern to warm\n" +
		"- Color scheme changed from None to #FF5733\n" +
		"\nRecent conversation history (4 messages):\n" +
		"1. b\n2. c\n3. d"
	assert.Equal(t, want, got)

	assert.Equal(t, "REFINEMENT CONTEXT:", BuildRefinementContext(Parameters{}, Parameters{}, nil))
}

func TestComposePrompts(t *testing.T) {
	p := Parameters{Role: DefaultRole, Style: "modern"}

	gen := ComposeGeneratePrompt("", p, false)
	assert.Equal(t, BuildStagingPrompt(p)+"\n\n"+assets.FormatPreservation(), gen)

	masked := ComposeGeneratePrompt("  ", p, true)
	assert.True(t, strings.HasSuffix(masked, "\n\n"+assets.MaskGenerate()))

	refine := ComposeRefinePrompt("REFINEMENT CONTEXT:", p, true)
	parts := strings.Split(refine, "\n\n")
	assert.Equal(t, "REFINEMENT CONTEXT:", parts[0])
	assert.True(t, strings.HasSuffix(refine, assets.FormatPreservationRefine()+"\n\n"+assets.MaskRefine()))
}

func TestCatalogCopies(t *testing.T) {
	s := Styles()
	require.Len(t, s, 10)
	s[0].Key = "mutated"
	assert.Equal(t, "modern", Styles()[0].Key)
	assert.Len(t, FurnitureThemes(), 10)
	assert.Len(t, ColorPalettes(), 10)
}
