package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type BlockType string

const (
	BlockTypeText     BlockType = "text"
	BlockTypeGrid     BlockType = "grid"
	BlockTypeFeatured BlockType = "featured"
	BlockTypeBanner   BlockType = "banner"
	BlockTypeList     BlockType = "list"
	BlockTypeMasonry  BlockType = "masonry"
)

// KnownTypes lists every block type the editor understands.
var KnownTypes = []BlockType{
	BlockTypeText, BlockTypeGrid, BlockTypeFeatured,
	BlockTypeBanner, BlockTypeList, BlockTypeMasonry,
}

// Block is one positioned, typed content unit within a store page layout.
// Position defines render order among siblings; after a normalizing
// operation positions are dense (0..N-1), though transient gaps or
// duplicates can exist mid-edit.
type Block struct {
	ID              string         `json:"id"`
	Type            BlockType      `json:"type"`
	Position        int            `json:"position"`
	Data            map[string]any `json:"data"`
	Spacing         string         `json:"spacing,omitempty"`
	BackgroundColor string         `json:"backgroundColor,omitempty"`
	TextAlignment   string         `json:"textAlignment,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Validate reports why a block is structurally unusable. Type-specific
// range checks apply on top of the id/type/position basics.
func (b *Block) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("block missing id")
	}
	if b.Type == "" {
		return fmt.Errorf("block %s missing type", b.ID)
	}
	if b.Position < 0 {
		return fmt.Errorf("block %s has negative position %d", b.ID, b.Position)
	}
	if b.Type == BlockTypeGrid {
		if cols, ok := numberField(b.Data, "columns"); ok && (cols < 1 || cols > 8) {
			return fmt.Errorf("block %s: grid columns %v out of range [1,8]", b.ID, cols)
		}
	}
	return nil
}

// Filled reports whether the block carries renderable content. Text blocks
// with empty content are valid (the editor allows them while typing) but
// not filled.
func (b *Block) Filled() bool {
	if b.Type != BlockTypeText {
		return true
	}
	content, _ := b.Data["text_content"].(string)
	return content != ""
}

// CloneBlock returns a deep copy; the Data map shares nothing with the
// original.
func CloneBlock(b Block) Block {
	out := b
	out.Data = cloneMap(b.Data)
	return out
}

// CloneBlocks deep-copies a whole layout.
func CloneBlocks(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = CloneBlock(b)
	}
	return out
}

// ContentEqual compares two blocks structurally over {id, type, position,
// data}. Timestamps and presentation overrides are deliberately excluded so
// a touch-without-change never reads as a conflict.
func ContentEqual(a, b Block) bool {
	if a.ID != b.ID || a.Type != b.Type || a.Position != b.Position {
		return false
	}
	return ValueEqual(a.Data, b.Data)
}

// ValueEqual compares two JSON-shaped values by canonical encoding, so an
// int 4 and a float64 4 read as equal regardless of how the value entered
// the process.
func ValueEqual(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a JSON-shaped value (maps, slices, scalars).
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

// numberField reads a numeric data field regardless of whether it was
// stored as int or float64.
func numberField(data map[string]any, key string) (float64, bool) {
	switch n := data[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
