package domain

import (
	"testing"
	"time"
)

func TestDefaultData_RenderSafe(t *testing.T) {
	for _, bt := range KnownTypes {
		data := DefaultData(bt)
		if len(data) == 0 {
			t.Errorf("DefaultData(%s) returned empty payload", bt)
		}
	}
}

func TestDefaultData_Grid(t *testing.T) {
	data := DefaultData(BlockTypeGrid)
	if cols, _ := data["columns"].(float64); cols != 4 {
		t.Errorf("expected 4 default columns, got %v", data["columns"])
	}
	if data["aspect_ratio"] != "square" {
		t.Errorf("expected square aspect ratio, got %v", data["aspect_ratio"])
	}
}

func TestDefaultData_UnknownType(t *testing.T) {
	data := DefaultData(BlockType("video"))
	if data == nil || len(data) != 0 {
		t.Errorf("expected empty payload for unknown type, got %v", data)
	}
}

func TestValidate(t *testing.T) {
	valid := Block{ID: "b1", Type: BlockTypeText, Position: 0, Data: DefaultData(BlockTypeText)}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid block rejected: %v", err)
	}

	missingID := Block{Type: BlockTypeText}
	if err := missingID.Validate(); err == nil {
		t.Error("expected error for missing id")
	}

	missingType := Block{ID: "b1"}
	if err := missingType.Validate(); err == nil {
		t.Error("expected error for missing type")
	}

	negative := Block{ID: "b1", Type: BlockTypeText, Position: -1}
	if err := negative.Validate(); err == nil {
		t.Error("expected error for negative position")
	}
}

func TestValidate_GridColumnsBounds(t *testing.T) {
	for cols, wantErr := range map[float64]bool{0: true, 1: false, 8: false, 9: true} {
		b := Block{ID: "g", Type: BlockTypeGrid, Data: map[string]any{"columns": cols}}
		err := b.Validate()
		if wantErr && err == nil {
			t.Errorf("columns=%v: expected error", cols)
		}
		if !wantErr && err != nil {
			t.Errorf("columns=%v: unexpected error %v", cols, err)
		}
	}
}

func TestFilled_TextContent(t *testing.T) {
	empty := Block{ID: "t", Type: BlockTypeText, Data: map[string]any{"text_content": ""}}
	if empty.Filled() {
		t.Error("empty text block reported as filled")
	}
	filled := Block{ID: "t", Type: BlockTypeText, Data: map[string]any{"text_content": "hello"}}
	if !filled.Filled() {
		t.Error("non-empty text block reported as unfilled")
	}
	// Empty content is permitted transiently; only "filled" is affected.
	if err := empty.Validate(); err != nil {
		t.Errorf("empty text block should still validate: %v", err)
	}
}

func TestValueEqual_NumericRepresentations(t *testing.T) {
	// A payload that crossed a JSON round-trip carries float64 where the
	// in-memory original had int; equality must not care.
	a := map[string]any{"columns": 4}
	b := map[string]any{"columns": float64(4)}
	if !ValueEqual(a, b) {
		t.Error("expected 4 and 4.0 payloads to compare equal")
	}
}

func TestContentEqual_IgnoresTimestamps(t *testing.T) {
	a := Block{ID: "b1", Type: BlockTypeText, Position: 0, Data: map[string]any{"text_content": "x"}, CreatedAt: time.Now()}
	b := a
	b.CreatedAt = a.CreatedAt.Add(time.Hour)
	b.UpdatedAt = a.UpdatedAt.Add(time.Hour)
	if !ContentEqual(a, b) {
		t.Error("timestamps must not affect content equality")
	}

	b.Data = map[string]any{"text_content": "y"}
	if ContentEqual(a, b) {
		t.Error("payload difference not detected")
	}
}

func TestCloneBlocks_DeepCopy(t *testing.T) {
	orig := []Block{{ID: "b1", Type: BlockTypeGrid, Data: map[string]any{
		"columns": float64(4),
		"nested":  map[string]any{"k": "v"},
		"tags":    []any{"a", "b"},
	}}}
	clone := CloneBlocks(orig)
	clone[0].Data["columns"] = float64(8)
	clone[0].Data["nested"].(map[string]any)["k"] = "changed"
	clone[0].Data["tags"].([]any)[0] = "changed"

	if orig[0].Data["columns"] != float64(4) {
		t.Error("clone shares top-level map with original")
	}
	if orig[0].Data["nested"].(map[string]any)["k"] != "v" {
		t.Error("clone shares nested map with original")
	}
	if orig[0].Data["tags"].([]any)[0] != "a" {
		t.Error("clone shares slice with original")
	}
}

func TestChangeHash_Stable(t *testing.T) {
	blocks := []Block{{ID: "b1", Type: BlockTypeText, Position: 0, Data: map[string]any{"text_content": "x"}}}
	if ChangeHash(blocks) != ChangeHash(CloneBlocks(blocks)) {
		t.Error("hash differs for identical documents")
	}
	changed := CloneBlocks(blocks)
	changed[0].Data["text_content"] = "y"
	if ChangeHash(blocks) == ChangeHash(changed) {
		t.Error("hash identical for different documents")
	}
}
