package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// DocumentVersion is a logical snapshot of a persisted layout. Version
// numbers strictly increase with each successful save; two documents with
// the same version are assumed identical.
type DocumentVersion struct {
	Version    int       `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
	Blocks     []Block   `json:"blocks"`
	Author     string    `json:"author,omitempty"`
	ChangeHash string    `json:"changeHash,omitempty"`
}

type ConflictType string

const (
	// ConflictConcurrentEdit means local and remote diverged from a common
	// ancestor with at least one block differing in content.
	ConflictConcurrentEdit ConflictType = "concurrent_edit"
)

// Resolution labels recorded on a Conflict after the merge ran.
const (
	ResolutionAutoMerged     = "auto-merged"
	ResolutionLocalPreferred = "merged-local-preferred"
	ResolutionManualLocal    = "manual-local"
	ResolutionManualRemote   = "manual-remote"
)

// Conflict is derived, never persisted: it exists only while a save is
// being reconciled.
type Conflict struct {
	Type                ConflictType `json:"type"`
	LocalVersion        int          `json:"localVersion"`
	RemoteVersion       int          `json:"remoteVersion"`
	ConflictingBlockIDs []string     `json:"conflictingBlockIds"`
	Resolution          string       `json:"resolution,omitempty"`
}

// BackupEntry is an immutable deep-copy snapshot taken before risky
// operations (merges, restores) or on a schedule.
type BackupEntry struct {
	ID        string            `json:"id"`
	StoreID   string            `json:"storeId"`
	Timestamp time.Time         `json:"timestamp"`
	Blocks    []Block           `json:"blocks"`
	Reason    string            `json:"reason"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ChangeHash fingerprints layout content. Only the merge-relevant fields
// participate, so rewriting timestamps does not change the hash.
func ChangeHash(blocks []Block) string {
	type hashed struct {
		ID       string         `json:"id"`
		Type     BlockType      `json:"type"`
		Position int            `json:"position"`
		Data     map[string]any `json:"data"`
	}
	entries := make([]hashed, len(blocks))
	for i, b := range blocks {
		entries[i] = hashed{ID: b.ID, Type: b.Type, Position: b.Position, Data: b.Data}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
