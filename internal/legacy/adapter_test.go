package legacy

import (
	"encoding/json"
	"testing"

	"storedesign/internal/domain"
)

func decode(t *testing.T, raw string) PersistedMap {
	t.Helper()
	m, err := DecodePersistedMap([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestToBlocks_PositionFromKey(t *testing.T) {
	m := decode(t, `{
		"1": {"layout_type": "grid", "columns": 6},
		"0": {"layout_type": "text", "text_content": "Welcome"}
	}`)
	blocks, err := ToBlocks(m)
	if err != nil {
		t.Fatalf("ToBlocks: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Type != domain.BlockTypeText || blocks[0].Position != 0 {
		t.Errorf("key 0 not first: %s at %d", blocks[0].Type, blocks[0].Position)
	}
	if blocks[1].Type != domain.BlockTypeGrid || blocks[1].Position != 1 {
		t.Errorf("key 1 not second: %s at %d", blocks[1].Type, blocks[1].Position)
	}
}

func TestToBlocks_FreshUniqueIDs(t *testing.T) {
	m := decode(t, `{"0": {"layout_type": "text"}, "1": {"layout_type": "text"}}`)
	blocks, err := ToBlocks(m)
	if err != nil {
		t.Fatalf("ToBlocks: %v", err)
	}
	if blocks[0].ID == "" || blocks[1].ID == "" {
		t.Fatal("expected generated ids")
	}
	if blocks[0].ID == blocks[1].ID {
		t.Error("ids must be unique")
	}
}

func TestToBlocks_InvalidKey(t *testing.T) {
	for _, raw := range []string{
		`{"header": {"layout_type": "text"}}`,
		`{"-1": {"layout_type": "text"}}`,
	} {
		m := decode(t, raw)
		if _, err := ToBlocks(m); err == nil {
			t.Errorf("expected error for key in %s", raw)
		}
	}
}

func TestToBlocks_DefaultsFillOmittedFields(t *testing.T) {
	m := decode(t, `{"0": {"layout_type": "grid"}}`)
	blocks, err := ToBlocks(m)
	if err != nil {
		t.Fatalf("ToBlocks: %v", err)
	}
	data := blocks[0].Data
	if cols, _ := data["columns"].(float64); cols != 4 {
		t.Errorf("expected default columns 4, got %v", data["columns"])
	}
	if data["card_style"] != "default" {
		t.Errorf("expected default card style, got %v", data["card_style"])
	}
}

func TestRoundTrip_PreservesInputFields(t *testing.T) {
	raw := `{
		"0": {"layout_type": "text", "text_content": "Hello", "text_size": "large", "spacing": "tight"},
		"1": {"layout_type": "banner", "banner_style": "image", "image_url": "https://cdn.example/b.png"}
	}`
	m := decode(t, raw)
	blocks, err := ToBlocks(m)
	if err != nil {
		t.Fatalf("ToBlocks: %v", err)
	}
	out, err := EncodePersistedMap(ToPersistedMap(blocks))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got, want map[string]map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if err := json.Unmarshal([]byte(raw), &want); err != nil {
		t.Fatalf("reparse input: %v", err)
	}

	// Every field present in the input must survive the round trip.
	for key, fields := range want {
		gotFields, ok := got[key]
		if !ok {
			t.Fatalf("key %s lost in round trip", key)
		}
		for name, val := range fields {
			if !domain.ValueEqual(gotFields[name], val) {
				t.Errorf("key %s field %s: got %v, want %v", key, name, gotFields[name], val)
			}
		}
	}
}

func TestRoundTrip_AddsTypeDefaults(t *testing.T) {
	m := decode(t, `{"0": {"layout_type": "list"}}`)
	blocks, _ := ToBlocks(m)
	out, _ := EncodePersistedMap(ToPersistedMap(blocks))

	var got map[string]map[string]any
	json.Unmarshal(out, &got)
	rec := got["0"]
	if rec["item_count"] != float64(6) {
		t.Errorf("expected default item_count 6, got %v", rec["item_count"])
	}
	if rec["show_thumbnails"] != true {
		t.Errorf("expected default show_thumbnails true, got %v", rec["show_thumbnails"])
	}
}

func TestRoundTrip_UnknownFieldsPassThrough(t *testing.T) {
	m := decode(t, `{"0": {"layout_type": "text", "legacy_theme": "aurora", "vendor": {"tier": 2}}}`)
	blocks, err := ToBlocks(m)
	if err != nil {
		t.Fatalf("ToBlocks: %v", err)
	}
	if blocks[0].Data["legacy_theme"] != "aurora" {
		t.Error("unknown field not surfaced in block data")
	}

	out, _ := EncodePersistedMap(ToPersistedMap(blocks))
	var got map[string]map[string]any
	json.Unmarshal(out, &got)
	if got["0"]["legacy_theme"] != "aurora" {
		t.Error("unknown scalar field lost in round trip")
	}
	vendor, _ := got["0"]["vendor"].(map[string]any)
	if vendor["tier"] != float64(2) {
		t.Error("unknown nested field lost in round trip")
	}
}

func TestRoundTrip_UnknownLayoutType(t *testing.T) {
	m := decode(t, `{"0": {"layout_type": "video", "src": "intro.mp4"}}`)
	blocks, err := ToBlocks(m)
	if err != nil {
		t.Fatalf("ToBlocks: %v", err)
	}
	out, _ := EncodePersistedMap(ToPersistedMap(blocks))
	var got map[string]map[string]any
	json.Unmarshal(out, &got)
	if got["0"]["layout_type"] != "video" || got["0"]["src"] != "intro.mp4" {
		t.Errorf("unknown layout type lost fields: %v", got["0"])
	}
}

func TestRecord_MissingLayoutType(t *testing.T) {
	if _, err := DecodePersistedMap([]byte(`{"0": {"text_content": "x"}}`)); err == nil {
		t.Error("expected error for record without layout_type")
	}
}

func TestToPersistedMap_KeyedByPosition(t *testing.T) {
	blocks := []domain.Block{
		{ID: "a", Type: domain.BlockTypeText, Position: 2, Data: domain.DefaultData(domain.BlockTypeText)},
		{ID: "b", Type: domain.BlockTypeGrid, Position: 0, Data: domain.DefaultData(domain.BlockTypeGrid)},
	}
	m := ToPersistedMap(blocks)
	if m["2"].LayoutType != "text" || m["0"].LayoutType != "grid" {
		t.Errorf("positions not used as keys: %v", m)
	}
}

func TestToPersistedMap_OverridesOmittedWhenUnset(t *testing.T) {
	blocks := []domain.Block{{ID: "a", Type: domain.BlockTypeText, Position: 0, Data: domain.DefaultData(domain.BlockTypeText)}}
	out, _ := EncodePersistedMap(ToPersistedMap(blocks))
	var got map[string]map[string]any
	json.Unmarshal(out, &got)
	if _, present := got["0"]["spacing"]; present {
		t.Error("unset spacing override should be omitted")
	}
	if _, present := got["0"]["background_color"]; present {
		t.Error("unset background_color override should be omitted")
	}
}
