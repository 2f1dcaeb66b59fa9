package persist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"storedesign/internal/domain"
)

func layoutBlocks() []domain.Block {
	return []domain.Block{
		{ID: "b-text", Type: domain.BlockTypeText, Position: 0,
			Data: map[string]any{"text_content": "Welcome"}},
		{ID: "b-grid", Type: domain.BlockTypeGrid, Position: 1,
			Data: map[string]any{"columns": float64(4), "product_ids": []any{"p1", "p2"}}},
	}
}

func findBlock(blocks []domain.Block, id string) *domain.Block {
	for i := range blocks {
		if blocks[i].ID == id {
			return &blocks[i]
		}
	}
	return nil
}

// ── Codec ───────────────────────────────────────────────────

func TestCodec_RoundTripKeepsIDs(t *testing.T) {
	data, err := encodeLayout(layoutBlocks())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeLayout(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(decoded))
	}
	text := findBlock(decoded, "b-text")
	if text == nil {
		t.Fatal("block id lost in round trip")
	}
	if text.Position != 0 {
		t.Errorf("position: %d", text.Position)
	}
	if !domain.ValueEqual(text.Data["text_content"], "Welcome") {
		t.Errorf("payload: %v", text.Data)
	}
	if _, ok := text.Data["id"]; ok {
		t.Error("id side-channel must be stripped from the payload")
	}
}

func TestCodec_ForeignLayoutGetsFreshIDs(t *testing.T) {
	// A layout written by another system has no id side-channel.
	foreign := []byte(`{"0":{"layout_type":"text","text_content":"hi"}}`)
	decoded, err := decodeLayout(foreign)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0].ID == "" {
		t.Fatalf("expected generated id: %+v", decoded)
	}
	again, err := decodeLayout(foreign)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded[0].ID == again[0].ID {
		t.Error("foreign layouts must get fresh ids per decode")
	}
}

// ── Placeholder rebinding ───────────────────────────────────

func TestRebind(t *testing.T) {
	pg := &sqlSaver{dialect: "postgres"}
	got := pg.rebind(`UPDATE t SET a = ?, b = ? WHERE c = ?`)
	want := `UPDATE t SET a = $1, b = $2 WHERE c = $3`
	if got != want {
		t.Errorf("rebind:\n got %s\nwant %s", got, want)
	}

	lite := &sqlSaver{dialect: "sqlite"}
	q := `SELECT * FROM t WHERE c = ?`
	if lite.rebind(q) != q {
		t.Error("non-postgres dialects must keep ? placeholders")
	}
}

// ── Compare-and-set over SQLite ─────────────────────────────

func openTestSaver(t *testing.T) *sqlSaver {
	t.Helper()
	s, err := newSQLiteSaver(Endpoint{Path: filepath.Join(t.TempDir(), "layouts.db")})
	if err != nil {
		t.Fatalf("open saver: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSave_FirstSaveCreatesVersionOne(t *testing.T) {
	s := openTestSaver(t)
	ctx := context.Background()

	res, err := s.Save(ctx, SaveRequest{
		StoreID: "s1", Blocks: layoutBlocks(), ExpectedVersion: 0, Author: "alice",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.NewVersion != 1 {
		t.Errorf("first version: %d", res.NewVersion)
	}

	doc, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Version != 1 || doc.Author != "alice" {
		t.Errorf("loaded: version=%d author=%q", doc.Version, doc.Author)
	}
	if findBlock(doc.Blocks, "b-grid") == nil {
		t.Errorf("blocks lost: %+v", doc.Blocks)
	}
	if doc.ChangeHash == "" {
		t.Error("change hash missing")
	}
}

func TestSave_SequentialVersionsAdvance(t *testing.T) {
	s := openTestSaver(t)
	ctx := context.Background()

	s.Save(ctx, SaveRequest{StoreID: "s1", Blocks: layoutBlocks(), ExpectedVersion: 0})
	res, err := s.Save(ctx, SaveRequest{StoreID: "s1", Blocks: layoutBlocks(), ExpectedVersion: 1})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if res.NewVersion != 2 {
		t.Errorf("version: %d", res.NewVersion)
	}
}

func TestSave_StaleVersionConflicts(t *testing.T) {
	s := openTestSaver(t)
	ctx := context.Background()

	s.Save(ctx, SaveRequest{StoreID: "s1", Blocks: layoutBlocks(), ExpectedVersion: 0})

	remoteEdit := layoutBlocks()
	remoteEdit[0].Data["text_content"] = "Edited elsewhere"
	s.Save(ctx, SaveRequest{StoreID: "s1", Blocks: remoteEdit, ExpectedVersion: 1})

	// A second editor still holding version 1 now loses the race.
	_, err := s.Save(ctx, SaveRequest{StoreID: "s1", Blocks: layoutBlocks(), ExpectedVersion: 1})
	if err == nil {
		t.Fatal("expected conflict")
	}
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("not a conflict: %v", err)
	}
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("wrong error type: %T", err)
	}
	if ce.Version != 2 {
		t.Errorf("conflict must carry the current version: %d", ce.Version)
	}
	got := findBlock(ce.Blocks, "b-text")
	if got == nil || !domain.ValueEqual(got.Data["text_content"], "Edited elsewhere") {
		t.Errorf("conflict must carry the remote document: %+v", ce.Blocks)
	}
}

func TestSave_MissingRowWithNonzeroExpected(t *testing.T) {
	s := openTestSaver(t)
	_, err := s.Save(context.Background(), SaveRequest{
		StoreID: "ghost", Blocks: layoutBlocks(), ExpectedVersion: 5,
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if ce.Version != 0 || len(ce.Blocks) != 0 {
		t.Errorf("missing row must report version 0 and empty blocks: %+v", ce)
	}
}

func TestLoad_UnknownStoreIsEmptyDocument(t *testing.T) {
	s := openTestSaver(t)
	doc, err := s.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Version != 0 || doc.Blocks == nil || len(doc.Blocks) != 0 {
		t.Errorf("unknown store: %+v", doc)
	}
}

func TestPresence_HeartbeatAndActiveEditors(t *testing.T) {
	s := openTestSaver(t)

	if err := s.Heartbeat("s1", "alice"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := s.Heartbeat("s1", "bob"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	// Repeated heartbeats upsert rather than duplicate.
	if err := s.Heartbeat("s1", "alice"); err != nil {
		t.Fatalf("repeat heartbeat: %v", err)
	}

	editors, err := s.ActiveEditors("s1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("active editors: %v", err)
	}
	if len(editors) != 2 {
		t.Fatalf("expected 2 editors, got %d", len(editors))
	}
	if editors[0].EditorID != "alice" || editors[1].EditorID != "bob" {
		t.Errorf("order: %+v", editors)
	}

	stale, err := s.ActiveEditors("s1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("active editors: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("future cutoff must exclude everyone: %+v", stale)
	}
}
