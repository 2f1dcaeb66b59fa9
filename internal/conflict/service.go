package conflict

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storedesign/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Conflict resolution service — divergence detection, merge
// orchestration, backup ring, integrity checks, recovery.
//
// Instances are constructed and injected, never shared through a
// package singleton, so parallel tests get isolated backup rings.
// ─────────────────────────────────────────────────────────────

// maxBackups bounds the in-process ring per store; oldest entries are
// evicted on overflow.
const maxBackups = 10

// Archive is an optional durable sink for backup entries (the SQLite
// backup archive implements it). A nil archive keeps backups in-process
// only.
type Archive interface {
	SaveBackup(entry domain.BackupEntry) error
}

// Service reconciles divergent documents and keeps recovery snapshots.
// It borrows base/local/remote snapshots and never mutates them.
type Service struct {
	mu      sync.Mutex
	backups map[string][]domain.BackupEntry // per store, newest last
	archive Archive
}

func NewService(archive Archive) *Service {
	return &Service{backups: map[string][]domain.BackupEntry{}, archive: archive}
}

// ── Divergence detection ────────────────────────────────────

// DetectVersionConflict compares a local document against the remotely
// persisted one. Nil when the versions match, and also when they differ
// but no block content actually diverges (pure version-counter skew).
func (s *Service) DetectVersionConflict(localVersion int, local []domain.Block, remoteVersion int, remote []domain.Block) *domain.Conflict {
	if localVersion == remoteVersion {
		return nil
	}
	ids := ChangedBlockIDs(local, remote)
	if len(ids) == 0 {
		return nil
	}
	return &domain.Conflict{
		Type:                domain.ConflictConcurrentEdit,
		LocalVersion:        localVersion,
		RemoteVersion:       remoteVersion,
		ConflictingBlockIDs: ids,
	}
}

// Resolve backs up the local document, merges local and remote against
// base, and returns the merged document with the conflict annotated with
// the applied resolution. The conflict is nil when the divergence needed
// no real merge.
func (s *Service) Resolve(storeID string, base, local, remote []domain.Block, localVersion, remoteVersion int) ([]domain.Block, *domain.Conflict) {
	conflict := s.DetectVersionConflict(localVersion, local, remoteVersion, remote)
	if conflict == nil {
		// Counter skew only: adopt local content at the remote version.
		return domain.CloneBlocks(local), nil
	}

	s.CreateBackup(storeID, local, "pre-merge", map[string]string{
		"localVersion":  fmt.Sprintf("%d", localVersion),
		"remoteVersion": fmt.Sprintf("%d", remoteVersion),
	})

	outcome := MergeWithOutcome(base, local, remote)
	if outcome.UsedLocalFallback {
		conflict.Resolution = domain.ResolutionLocalPreferred
	} else {
		conflict.Resolution = domain.ResolutionAutoMerged
	}
	return outcome.Blocks, conflict
}

// ── Backups ─────────────────────────────────────────────────

// CreateBackup deep-copies the document into the ring, tagged with a
// reason. Entries are immutable once created.
func (s *Service) CreateBackup(storeID string, blocks []domain.Block, reason string, metadata map[string]string) domain.BackupEntry {
	entry := domain.BackupEntry{
		ID:        uuid.New().String(),
		StoreID:   storeID,
		Timestamp: time.Now(),
		Blocks:    domain.CloneBlocks(blocks),
		Reason:    reason,
		Metadata:  metadata,
	}

	s.mu.Lock()
	ring := append(s.backups[storeID], entry)
	if len(ring) > maxBackups {
		ring = ring[len(ring)-maxBackups:]
	}
	s.backups[storeID] = ring
	archive := s.archive
	s.mu.Unlock()

	if archive != nil {
		// Durable archive is best-effort; the in-process ring is the
		// authoritative recovery set.
		_ = archive.SaveBackup(entry)
	}
	return entry
}

// GetBackupHistory returns the ring newest-first.
func (s *Service) GetBackupHistory(storeID string) []domain.BackupEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring := s.backups[storeID]
	out := make([]domain.BackupEntry, 0, len(ring))
	for i := len(ring) - 1; i >= 0; i-- {
		entry := ring[i]
		entry.Blocks = domain.CloneBlocks(entry.Blocks)
		out = append(out, entry)
	}
	return out
}

// RestoreFromBackup returns a fresh deep copy of the snapshot, never a
// live reference, or nil for an unknown id.
func (s *Service) RestoreFromBackup(id string) []domain.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ring := range s.backups {
		for _, entry := range ring {
			if entry.ID == id {
				return domain.CloneBlocks(entry.Blocks)
			}
		}
	}
	return nil
}

// ── Integrity ───────────────────────────────────────────────

// IntegrityReport distinguishes errors, which must block persistence,
// from advisory warnings.
type IntegrityReport struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateDataIntegrity checks a document for structural damage:
// duplicate positions, duplicate ids, and blocks missing id or type are
// errors; a non-contiguous position sequence is a warning.
func (s *Service) ValidateDataIntegrity(blocks []domain.Block) IntegrityReport {
	report := IntegrityReport{IsValid: true}

	byPosition := map[int][]string{}
	byID := map[string]int{}
	for i, b := range blocks {
		if b.ID == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("block at index %d missing id", i))
			continue
		}
		if b.Type == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("block %s missing type", b.ID))
		}
		byPosition[b.Position] = append(byPosition[b.Position], b.ID)
		byID[b.ID]++
	}

	positions := make([]int, 0, len(byPosition))
	for pos := range byPosition {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	for _, pos := range positions {
		if ids := byPosition[pos]; len(ids) > 1 {
			report.Errors = append(report.Errors, fmt.Sprintf("duplicate position %d: blocks %v", pos, ids))
		}
	}

	dupIDs := make([]string, 0)
	for id, n := range byID {
		if n > 1 {
			dupIDs = append(dupIDs, id)
		}
	}
	sort.Strings(dupIDs)
	for _, id := range dupIDs {
		report.Errors = append(report.Errors, fmt.Sprintf("duplicate block id %s", id))
	}

	for i, pos := range positions {
		if pos != i {
			report.Warnings = append(report.Warnings, fmt.Sprintf("position sequence not contiguous: expected %d, found %d", i, pos))
			break
		}
	}

	report.IsValid = len(report.Errors) == 0
	return report
}

// ── Emergency recovery ──────────────────────────────────────

// EmergencyRecovery rebuilds a usable document from a corrupted one:
// nil and id-less entries are stripped, positions renumbered by array
// order, and the result re-validated. An empty (non-nil) array signals
// total loss — never a partially trusted document — so callers fall back
// to the last good backup.
func (s *Service) EmergencyRecovery(corrupted []*domain.Block) []domain.Block {
	recovered := make([]domain.Block, 0, len(corrupted))
	for _, b := range corrupted {
		if b == nil || b.ID == "" {
			continue
		}
		clone := domain.CloneBlock(*b)
		clone.Position = len(recovered)
		recovered = append(recovered, clone)
	}

	if report := s.ValidateDataIntegrity(recovered); !report.IsValid {
		return []domain.Block{}
	}
	return recovered
}
