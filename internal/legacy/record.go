package legacy

import (
	"encoding/json"
	"fmt"

	"storedesign/internal/domain"
)

// ── Legacy layout records ───────────────────────────────────
// The hosted backend persists a store layout as a map of stringified row
// indexes to flat objects carrying a layout_type discriminant plus
// type-specific flat fields. Record is that flat object as a tagged union:
// typed known fields per layout_type, with every unrecognized key preserved
// in Extra so schema fields this core does not interpret round-trip
// unchanged.

// Record is one row of the persisted layout map.
type Record struct {
	LayoutType      string
	Spacing         string
	BackgroundColor string
	TextAlignment   string

	// Exactly one payload is set, matching LayoutType. Unknown layout
	// types carry everything in Extra.
	Text     *TextFields
	Grid     *GridFields
	Featured *FeaturedFields
	Banner   *BannerFields
	List     *ListFields
	Masonry  *MasonryFields

	// Extra holds fields the adapter does not interpret, pass-through only.
	Extra map[string]any
}

type TextFields struct {
	Content string `json:"text_content"`
	Size    string `json:"text_size"`
	Color   string `json:"text_color"`
}

type GridFields struct {
	Columns     float64 `json:"columns"`
	CardStyle   string  `json:"card_style"`
	AspectRatio string  `json:"aspect_ratio"`
}

type FeaturedFields struct {
	ProductIDs []string `json:"product_ids"`
	CardStyle  string   `json:"card_style"`
	ShowPrice  bool     `json:"show_price"`
}

type BannerFields struct {
	Style    string `json:"banner_style"`
	Gradient string `json:"gradient"`
	ImageURL string `json:"image_url"`
	CTAText  string `json:"cta_text"`
	CTALink  string `json:"cta_link"`
}

type ListFields struct {
	ItemCount      float64 `json:"item_count"`
	ShowThumbnails bool    `json:"show_thumbnails"`
}

type MasonryFields struct {
	Columns float64 `json:"columns"`
	Gap     string  `json:"gap"`
}

// payloadPtr returns a pointer to the record's payload slot for a layout
// type, allocating it when needed. Nil for unknown types.
func (r *Record) payloadPtr(layoutType string) any {
	switch domain.BlockType(layoutType) {
	case domain.BlockTypeText:
		if r.Text == nil {
			r.Text = &TextFields{}
		}
		return r.Text
	case domain.BlockTypeGrid:
		if r.Grid == nil {
			r.Grid = &GridFields{}
		}
		return r.Grid
	case domain.BlockTypeFeatured:
		if r.Featured == nil {
			r.Featured = &FeaturedFields{}
		}
		return r.Featured
	case domain.BlockTypeBanner:
		if r.Banner == nil {
			r.Banner = &BannerFields{}
		}
		return r.Banner
	case domain.BlockTypeList:
		if r.List == nil {
			r.List = &ListFields{}
		}
		return r.List
	case domain.BlockTypeMasonry:
		if r.Masonry == nil {
			r.Masonry = &MasonryFields{}
		}
		return r.Masonry
	default:
		return nil
	}
}

// knownKeys returns the flat field names the adapter interprets for a
// layout type. The default payload is the single source of schema truth.
func knownKeys(layoutType string) map[string]bool {
	defaults := domain.DefaultData(domain.BlockType(layoutType))
	keys := make(map[string]bool, len(defaults))
	for k := range defaults {
		keys[k] = true
	}
	return keys
}

// baseKeys are flat fields shared by every layout type.
var baseKeys = map[string]bool{
	"layout_type":      true,
	"spacing":          true,
	"background_color": true,
	"text_alignment":   true,
}

// UnmarshalJSON decodes a flat legacy object. Known fields omitted by the
// source are filled with type-appropriate defaults; everything the adapter
// does not interpret lands in Extra untouched.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode legacy record: %w", err)
	}

	layoutType, _ := raw["layout_type"].(string)
	if layoutType == "" {
		return fmt.Errorf("legacy record missing layout_type")
	}
	*r = Record{LayoutType: layoutType}
	r.Spacing, _ = raw["spacing"].(string)
	r.BackgroundColor, _ = raw["background_color"].(string)
	r.TextAlignment, _ = raw["text_alignment"].(string)

	known := knownKeys(layoutType)
	payloadMap := domain.DefaultData(domain.BlockType(layoutType))
	for k, v := range raw {
		switch {
		case baseKeys[k]:
			// already handled
		case known[k]:
			payloadMap[k] = v
		default:
			if r.Extra == nil {
				r.Extra = map[string]any{}
			}
			r.Extra[k] = domain.CloneValue(v)
		}
	}

	payload := r.payloadPtr(layoutType)
	if payload == nil {
		// Unknown layout type: nothing is interpreted, all fields ride in
		// Extra and round-trip as-is.
		return nil
	}
	encoded, err := json.Marshal(payloadMap)
	if err != nil {
		return fmt.Errorf("legacy record %s: %w", layoutType, err)
	}
	if err := json.Unmarshal(encoded, payload); err != nil {
		return fmt.Errorf("legacy record %s: malformed field: %w", layoutType, err)
	}
	return nil
}

// MarshalJSON folds the base fields, the typed payload, and Extra back into
// one flat object. Unset presentation overrides are omitted, not written as
// empty strings.
func (r Record) MarshalJSON() ([]byte, error) {
	out := map[string]any{"layout_type": r.LayoutType}
	if r.Spacing != "" {
		out["spacing"] = r.Spacing
	}
	if r.BackgroundColor != "" {
		out["background_color"] = r.BackgroundColor
	}
	if r.TextAlignment != "" {
		out["text_alignment"] = r.TextAlignment
	}
	for k, v := range r.payloadMap() {
		out[k] = v
	}
	for k, v := range r.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}

// payloadMap renders the typed payload as a flat map. Unknown layout types
// have no typed payload.
func (r Record) payloadMap() map[string]any {
	var payload any
	switch {
	case r.Text != nil:
		payload = r.Text
	case r.Grid != nil:
		payload = r.Grid
	case r.Featured != nil:
		payload = r.Featured
	case r.Banner != nil:
		payload = r.Banner
	case r.List != nil:
		payload = r.List
	case r.Masonry != nil:
		payload = r.Masonry
	default:
		return nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil
	}
	return out
}

// DataMap returns the record's content fields as a block data payload:
// typed fields plus pass-through extras.
func (r Record) DataMap() map[string]any {
	out := r.payloadMap()
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range r.Extra {
		out[k] = domain.CloneValue(v)
	}
	return out
}
