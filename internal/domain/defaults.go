package domain

// DefaultData returns a complete, render-safe payload for a block type, so
// a brand-new block can be inserted without the caller knowing the schema.
// Numbers are float64 to match what the payload becomes after any JSON
// round-trip.
func DefaultData(t BlockType) map[string]any {
	switch t {
	case BlockTypeText:
		return map[string]any{
			"text_content": "",
			"text_size":    "medium",
			"text_color":   "#111827",
		}
	case BlockTypeGrid:
		return map[string]any{
			"columns":      float64(4),
			"card_style":   "default",
			"aspect_ratio": "square",
		}
	case BlockTypeFeatured:
		return map[string]any{
			"product_ids": []any{},
			"card_style":  "large",
			"show_price":  true,
		}
	case BlockTypeBanner:
		return map[string]any{
			"banner_style": "gradient",
			"gradient":     "sunset",
			"image_url":    "",
			"cta_text":     "",
			"cta_link":     "",
		}
	case BlockTypeList:
		return map[string]any{
			"item_count":      float64(6),
			"show_thumbnails": true,
		}
	case BlockTypeMasonry:
		return map[string]any{
			"columns": float64(3),
			"gap":     "medium",
		}
	default:
		return map[string]any{}
	}
}
