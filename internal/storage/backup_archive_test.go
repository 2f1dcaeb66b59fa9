package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"storedesign/internal/domain"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := New(filepath.Join(dir, "test.db"), dir)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func entryAt(id, storeID string, at time.Time) domain.BackupEntry {
	return domain.BackupEntry{
		ID:        id,
		StoreID:   storeID,
		Timestamp: at,
		Blocks: []domain.Block{{
			ID: "b1", Type: domain.BlockTypeText, Position: 0,
			Data: map[string]any{"text_content": "content of " + id},
		}},
		Reason:   "manual",
		Metadata: map[string]string{"origin": id},
	}
}

func TestBackupArchive_SaveAndList(t *testing.T) {
	archive := NewBackupArchive(testDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		entry := entryAt(fmt.Sprintf("bk-%d", i), "s1", base.Add(time.Duration(i)*time.Minute))
		if err := archive.SaveBackup(entry); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	entries, err := archive.ListBackups("s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].ID != "bk-2" || entries[2].ID != "bk-0" {
		t.Errorf("not newest first: %s .. %s", entries[0].ID, entries[2].ID)
	}
	if entries[0].Reason != "manual" || entries[0].Metadata["origin"] != "bk-2" {
		t.Errorf("fields lost: %+v", entries[0])
	}
	if got := entries[0].Blocks[0].Data["text_content"]; got != "content of bk-2" {
		t.Errorf("blocks lost: %v", got)
	}
}

func TestBackupArchive_ListIsPerStore(t *testing.T) {
	archive := NewBackupArchive(testDB(t))
	now := time.Now()
	archive.SaveBackup(entryAt("a", "store-a", now))
	archive.SaveBackup(entryAt("b", "store-b", now))

	entries, err := archive.ListBackups("store-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "a" {
		t.Errorf("cross-store leak: %+v", entries)
	}
}

func TestBackupArchive_GetBackup(t *testing.T) {
	archive := NewBackupArchive(testDB(t))
	archive.SaveBackup(entryAt("bk-1", "s1", time.Now()))

	entry, err := archive.GetBackup("bk-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry == nil || entry.StoreID != "s1" {
		t.Fatalf("entry: %+v", entry)
	}

	missing, err := archive.GetBackup("nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("unknown id must be nil, got %+v", missing)
	}
}

func TestBackupArchive_GetBackupSurfacesQueryErrors(t *testing.T) {
	db := testDB(t)
	archive := NewBackupArchive(db)
	archive.SaveBackup(entryAt("bk-1", "s1", time.Now()))
	db.Close()

	if _, err := archive.GetBackup("bk-1"); err == nil {
		t.Error("a failed query must not be reported as backup-not-found")
	}
}

func TestBackupArchive_PrunesOldest(t *testing.T) {
	archive := NewBackupArchive(testDB(t))
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 45; i++ {
		entry := entryAt(fmt.Sprintf("bk-%02d", i), "s1", base.Add(time.Duration(i)*time.Minute))
		if err := archive.SaveBackup(entry); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	entries, err := archive.ListBackups("s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 40 {
		t.Fatalf("expected 40 after pruning, got %d", len(entries))
	}
	if entries[0].ID != "bk-44" {
		t.Errorf("newest lost: %s", entries[0].ID)
	}
	if entries[len(entries)-1].ID != "bk-05" {
		t.Errorf("oldest kept: %s", entries[len(entries)-1].ID)
	}
}
