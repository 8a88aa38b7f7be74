package staging

// CatalogEntry is a named option with the description used in prompts.
type CatalogEntry struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// Palette describes a preset primary colour.
type Palette struct {
	Hex         string `json:"hex"`
	Name        string `json:"name"`
	Complement  string `json:"complement"`
	Description string `json:"description"`
}

var styles = []CatalogEntry{
	{"modern", "clean lines, contemporary furniture, neutral tones with accent colors, minimalist accessories"},
	{"contemporary", "sleek and current design, mixed materials, statement pieces, artistic elements"},
	{"minimalist", "clutter-free, essential pieces only, monochromatic palettes, abundant white space"},
	{"warm", "cozy atmosphere, warm color palettes (oranges, browns, warm yellows), soft lighting, comfortable seating"},
	{"colorful", "vibrant and bold colors, eclectic mix, artistic wall art, diverse textures and patterns"},
	{"industrial", "exposed elements, metal and wood, raw finishes, utilitarian aesthetic, vintage accessories"},
	{"farmhouse", "rustic charm, natural materials, vintage finds, barn doors, warm wood tones"},
	{"scandinavian", "light, airy, functional design, natural light, minimalist with warmth, pale wood"},
	{"bohemian", "eclectic, layered textures, global influences, plants, artistic wall hangings, colorful textiles"},
	{"traditional", "classic furniture, formal arrangement, rich colors, ornate details, timeless elegance"},
}

var furnitureThemes = []CatalogEntry{
	{"minimal", "only essential furniture pieces, clean lines, space-focused"},
	{"eclectic", "mix of different styles and periods, artistic collection, unique pieces"},
	{"luxury", "high-end materials, elegant pieces, premium finishes, sophisticated arrangements"},
	{"rustic", "natural wood, distressed finishes, handcrafted elements, warm earthiness"},
	{"contemporary", "modern pieces, sleek designs, functional furniture, current trends"},
	{"vintage", "retro pieces, nostalgic items, antique finds, classic design elements"},
	{"scandinavian", "light woods, simple forms, functional beauty, Scandinavian-inspired pieces"},
	{"maximalist", "abundance of pieces, layered decor, bold arrangements, full use of space"},
	{"mid-century", "retro-modern furniture, iconic mid-century designs, tapered legs, organic curves"},
	{"bohemian", "artistic pieces, global finds, textured furniture, relaxed arrangement"},
}

var palettes = []Palette{
	{"#FF5733", "Warm Red-Orange", "#33FFE6", "energetic and warm"},
	{"#33FF57", "Fresh Green", "#FF33F0", "natural and vibrant"},
	{"#3357FF", "Ocean Blue", "#FFCC33", "calm and professional"},
	{"#FF33F0", "Vibrant Magenta", "#33FF57", "bold and artistic"},
	{"#FFCC33", "Sunny Yellow", "#3357FF", "warm and optimistic"},
	{"#33FFE6", "Turquoise", "#FF5733", "refreshing and modern"},
	{"#8B4513", "Saddle Brown", "#74ACED", "warm and earthy"},
	{"#D3D3D3", "Light Gray", "#404040", "neutral and elegant"},
	{"#404040", "Charcoal", "#D3D3D3", "sophisticated and bold"},
	{"#F0E68C", "Khaki", "#6495ED", "soft and warm"},
}

var (
	styleIndex     = indexEntries(styles)
	furnitureIndex = indexEntries(furnitureThemes)
	paletteIndex   = map[string]Palette{}
)

func init() {
	for _, p := range palettes {
		paletteIndex[p.Hex] = p
	}
}

func indexEntries(entries []CatalogEntry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Description
	}
	return m
}

// Styles returns the staging styles in display order.
func Styles() []CatalogEntry { return append([]CatalogEntry(nil), styles...) }

// FurnitureThemes returns the furniture themes in display order.
func FurnitureThemes() []CatalogEntry { return append([]CatalogEntry(nil), furnitureThemes...) }

// ColorPalettes returns the preset colours in display order.
func ColorPalettes() []Palette { return append([]Palette(nil), palettes...) }
