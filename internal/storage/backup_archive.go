package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"storedesign/internal/domain"
)

// BackupArchive persists backup entries to SQLite so recovery snapshots
// survive restarts. The in-process ring stays authoritative for the
// editing session; the archive is the deeper history behind it.
type BackupArchive struct {
	db *DB
}

func NewBackupArchive(db *DB) *BackupArchive {
	return &BackupArchive{db: db}
}

// SaveBackup inserts the entry and prunes the store's history.
func (a *BackupArchive) SaveBackup(entry domain.BackupEntry) error {
	blocksJSON, err := json.Marshal(entry.Blocks)
	if err != nil {
		return fmt.Errorf("marshal backup blocks: %w", err)
	}
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal backup metadata: %w", err)
	}

	_, err = a.db.Conn().Exec(
		`INSERT INTO layout_backups (id, store_id, reason, blocks_json, metadata_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.StoreID, entry.Reason, string(blocksJSON), string(metaJSON), entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert backup: %w", err)
	}

	a.pruneIfNeeded(entry.StoreID, 40)
	return nil
}

// ListBackups returns the archived entries for a store, newest first.
func (a *BackupArchive) ListBackups(storeID string) ([]domain.BackupEntry, error) {
	rows, err := a.db.Conn().Query(
		`SELECT id, store_id, reason, blocks_json, metadata_json, created_at
		 FROM layout_backups WHERE store_id = ? ORDER BY created_at DESC`, storeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var entries []domain.BackupEntry
	for rows.Next() {
		var e domain.BackupEntry
		var blocksJSON, metaJSON string
		if err := rows.Scan(&e.ID, &e.StoreID, &e.Reason, &blocksJSON, &metaJSON, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		if err := json.Unmarshal([]byte(blocksJSON), &e.Blocks); err != nil {
			return nil, fmt.Errorf("decode backup blocks: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode backup metadata: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetBackup loads a single archived entry, or nil when unknown.
func (a *BackupArchive) GetBackup(id string) (*domain.BackupEntry, error) {
	var e domain.BackupEntry
	var blocksJSON, metaJSON string
	err := a.db.Conn().QueryRow(
		`SELECT id, store_id, reason, blocks_json, metadata_json, created_at
		 FROM layout_backups WHERE id = ?`, id,
	).Scan(&e.ID, &e.StoreID, &e.Reason, &blocksJSON, &metaJSON, &e.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backup: %w", err)
	}
	if err := json.Unmarshal([]byte(blocksJSON), &e.Blocks); err != nil {
		return nil, fmt.Errorf("decode backup blocks: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
		return nil, fmt.Errorf("decode backup metadata: %w", err)
	}
	return &e, nil
}

// pruneIfNeeded removes oldest entries when count exceeds maxEntries.
func (a *BackupArchive) pruneIfNeeded(storeID string, maxEntries int) {
	var count int
	a.db.Conn().QueryRow(`SELECT COUNT(*) FROM layout_backups WHERE store_id = ?`, storeID).Scan(&count)
	if count <= maxEntries {
		return
	}

	toDelete := count - maxEntries

	// Collect IDs to delete FIRST (close rows before doing any writes)
	rows, err := a.db.Conn().Query(
		`SELECT id FROM layout_backups WHERE store_id = ?
		 ORDER BY created_at ASC LIMIT ?`, storeID, toDelete,
	)
	if err != nil {
		return
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		a.db.Conn().Exec(`DELETE FROM layout_backups WHERE id = ?`, id)
	}
}
