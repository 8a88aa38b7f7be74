package staging

import (
	"fmt"
	"strings"

	"github.com/fpang/vista-staging/internal/assets"
)

// refinementChatLines is how many conversation lines the refinement
// context quotes.
const refinementChatLines = 3

// BuildStagingPrompt renders the base instruction for p.
func BuildStagingPrompt(p Parameters) string {
	var lines []string
	if p.Style != "" {
		lines = append(lines, fmt.Sprintf("Style: %s: %s", strings.ToUpper(p.Style), describe(styleIndex, p.Style)))
	}
	if p.FurnitureStyle != "" {
		lines = append(lines, fmt.Sprintf("Furniture Theme: %s: %s", strings.ToUpper(p.FurnitureStyle), describe(furnitureIndex, p.FurnitureStyle)))
	}
	if p.ColorScheme != "" {
		lines = append(lines, "Color Scheme: "+describeColor(p.ColorScheme))
	}
	role := p.Role
	if role == "" {
		role = DefaultRole
	}
	return assets.RenderStagingPrompt(assets.StagingPromptData{
		Role:              role,
		StylingLines:      lines,
		AdditionalRequest: p.SpecificRequests,
	})
}

func describe(index map[string]string, key string) string {
	if d, ok := index[key]; ok {
		return d
	}
	return key
}

func describeColor(c string) string {
	if p, ok := paletteIndex[c]; ok {
		return fmt.Sprintf("%s (%s) - %s", p.Name, c, p.Description)
	}
	return c
}

// ParameterChanges lists the human-readable differences between prev and next.
func ParameterChanges(prev, next Parameters) []string {
	var changes []string
	if prev.Style != next.Style {
		changes = append(changes, fmt.Sprintf("Style changed from %s to %s", orNone(prev.Style), orNone(next.Style)))
	}
	if prev.FurnitureStyle != next.FurnitureStyle {
		changes = append(changes, fmt.Sprintf("Furniture theme changed from %s to %s", orNone(prev.FurnitureStyle), orNone(next.FurnitureStyle)))
	}
	if prev.ColorScheme != next.ColorScheme {
		changes = append(changes, fmt.Sprintf("Color scheme changed from %s to %s", orNone(prev.ColorScheme), orNone(next.ColorScheme)))
	}
	return changes
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

// BuildRefinementContext explains to the model what changed since the last
// generation and quotes the tail of the conversation.
func BuildRefinementContext(prev, next Parameters, chatLines []string) string {
	var b strings.Builder
	b.WriteString("REFINEMENT CONTEXT:\n")
	if changes := ParameterChanges(prev, next); len(changes) > 0 {
		b.WriteString("Changes made:\n")
		for _, c := range changes {
			b.WriteString("- " + c + "\n")
		}
	}
	if len(chatLines) > 0 {
		fmt.Fprintf(&b, "\nRecent conversation history (%d messages):\n", len(chatLines))
		tail := chatLines
		if len(tail) > refinementChatLines {
			tail = tail[len(tail)-refinementChatLines:]
		}
		for i, line := range tail {
			fmt.Fprintf(&b, "%d. %s\n", i+1, line)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ComposeGeneratePrompt returns the prompt for a generation: the caller's
// custom prompt if given, else one built from p, followed by the format
// preservation clause and, when masked, the mask clause.
func ComposeGeneratePrompt(custom string, p Parameters, masked bool) string {
	custom = strings.TrimSpace(custom)
	if custom != "" {
		parts := []string{custom, assets.FormatPreservation()}
		if masked {
			parts = append(parts, assets.MaskCustom())
		}
		return strings.Join(parts, "\n\n")
	}
	parts := []string{BuildStagingPrompt(p), assets.FormatPreservation()}
	if masked {
		parts = append(parts, assets.MaskGenerate())
	}
	return strings.Join(parts, "\n\n")
}

// ComposeRefinePrompt prefixes the refinement context to the staging prompt
// for p.
func ComposeRefinePrompt(context string, p Parameters, masked bool) string {
	parts := []string{context, BuildStagingPrompt(p), assets.FormatPreservationRefine()}
	if masked {
		parts = append(parts, assets.MaskRefine())
	}
	return strings.Join(parts, "\n\n")
}

// contextSummary condenses the preferences in force after a refinement,
// for the chat history's context summary.
func contextSummary(p Parameters, changes []string, userMessage string) string {
	var prefs []string
	if p.Style != "" {
		prefs = append(prefs, "style "+p.Style)
	}
	if p.FurnitureStyle != "" {
		prefs = append(prefs, "furniture "+p.FurnitureStyle)
	}
	if p.ColorScheme != "" {
		prefs = append(prefs, "colors "+p.ColorScheme)
	}
	if p.SpecificRequests != "" {
		prefs = append(prefs, "requests: "+p.SpecificRequests)
	}
	if len(prefs) == 0 {
		prefs = append(prefs, "none specified")
	}

	lines := []string{"Current preferences: " + strings.Join(prefs, "; ")}
	if len(changes) > 0 {
		lines = append(lines, "Latest changes: "+strings.Join(changes, "; "))
	}
	if msg := strings.TrimSpace(userMessage); msg != "" {
		lines = append(lines, "Latest request: "+msg)
	}
	return strings.Join(lines, "\n")
}
