package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"storedesign/internal/autosave"
	"storedesign/internal/conflict"
	"storedesign/internal/domain"
	"storedesign/internal/editor"
	"storedesign/internal/persist"
	"storedesign/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Design Service — owns one store-design editing session: the state
// store, the autosave controller, conflict resolution, presence, and
// the periodic backup job. The presentation layer and the agent tools
// both talk to this.
// ─────────────────────────────────────────────────────────────

const (
	EventSaveStatus       = "design:save-status"
	EventConflictResolved = "design:conflict-resolved"
	EventEditors          = "design:editors"
)

// SaveStatus is the thin status surface shown to the user.
type SaveStatus struct {
	State        autosave.State   `json:"state"`
	SessionState editor.SaveState `json:"sessionState"`
	Pending      int              `json:"pending"`
	Dirty        bool             `json:"dirty"`
	Version      int              `json:"version"`
	LastError    string           `json:"lastError,omitempty"`
}

// Label maps the status to user-facing copy.
func (st SaveStatus) Label() string {
	switch {
	case st.State == autosave.StateSaving || st.State == autosave.StateRetrying:
		return "Saving…"
	case st.State == autosave.StateFailed:
		return "Save failed"
	case st.Pending > 0 || st.State == autosave.StatePendingDebounce:
		return "Unsaved changes"
	default:
		return "All changes saved"
	}
}

// Config holds the per-session knobs.
type Config struct {
	StoreID          string
	EditorID         string
	DraftsDir        string // layout import watch directory; empty disables
	Autosave         autosave.Config
	PresenceInterval time.Duration // 0 disables presence polling
	BackupEvery      time.Duration // 0 disables periodic backups
}

// baseTracker decorates a Saver to remember the last document this
// client successfully persisted or loaded; that snapshot is the base of
// every three-way merge.
type baseTracker struct {
	persist.Saver
	mu   sync.Mutex
	base []domain.Block
}

func (t *baseTracker) Save(ctx context.Context, req persist.SaveRequest) (*persist.SaveResult, error) {
	res, err := t.Saver.Save(ctx, req)
	if err == nil {
		t.SetBase(req.Blocks)
	}
	return res, err
}

func (t *baseTracker) SetBase(blocks []domain.Block) {
	t.mu.Lock()
	t.base = domain.CloneBlocks(blocks)
	t.mu.Unlock()
}

func (t *baseTracker) Base() []domain.Block {
	t.mu.Lock()
	defer t.mu.Unlock()
	return domain.CloneBlocks(t.base)
}

type DesignService struct {
	ctx     context.Context
	cfg     Config
	emitter EventEmitter

	session    *editor.Session
	controller *autosave.Controller
	conflicts  *conflict.Service
	tracker    *baseTracker
	archive    *storage.BackupArchive // optional durable backup sink

	presenceClient conflict.PresenceClient
	poller         *conflict.Poller
	cronSched      *cron.Cron
	watchCancel    context.CancelFunc
}

// NewDesignService wires the session, autosave controller and conflict
// service together. archive may be nil; sched nil means the wall clock.
func NewDesignService(ctx context.Context, cfg Config, saver persist.Saver, conflicts *conflict.Service, archive *storage.BackupArchive, emitter EventEmitter, sched autosave.Scheduler) *DesignService {
	session := editor.NewSession(cfg.StoreID)
	tracker := &baseTracker{Saver: saver}
	ctrl := autosave.NewController(session, tracker, sched, cfg.Autosave, cfg.EditorID)

	s := &DesignService{
		ctx:        ctx,
		cfg:        cfg,
		emitter:    emitter,
		session:    session,
		controller: ctrl,
		conflicts:  conflicts,
		tracker:    tracker,
		archive:    archive,
	}
	session.SetOnMutate(ctrl.NotifyMutation)
	ctrl.SetConflictResolver(s.resolveConflict)
	ctrl.SetOnStateChange(func(autosave.State, error) { s.emitStatus() })
	return s
}

// SetPresenceClient enables concurrent-editor detection. Must be called
// before Open.
func (s *DesignService) SetPresenceClient(pc conflict.PresenceClient) {
	s.presenceClient = pc
}

// Open loads the persisted layout into the session and starts the
// background jobs.
func (s *DesignService) Open(ctx context.Context) error {
	doc, err := s.tracker.Load(ctx, s.cfg.StoreID)
	if err != nil {
		return fmt.Errorf("open store %s: %w", s.cfg.StoreID, err)
	}
	s.session.SetBlocks(doc.Blocks, true)
	s.session.SetVersion(doc.Version)
	s.tracker.SetBase(doc.Blocks)

	if report := s.conflicts.ValidateDataIntegrity(doc.Blocks); !report.IsValid {
		log.Printf("[Design] stored layout for %s failed integrity check: %v", s.cfg.StoreID, report.Errors)
		if recovered := s.recoverCorrupted(doc.Blocks); recovered != nil {
			s.conflicts.CreateBackup(s.cfg.StoreID, doc.Blocks, "pre-recovery", nil)
			// Counts as a mutation so autosave repairs the stored copy.
			s.session.SetBlocks(recovered, false)
			log.Printf("[Design] recovered %d block(s) for %s", len(recovered), s.cfg.StoreID)
		} else {
			log.Printf("[Design] layout for %s unrecoverable and no valid backup; keeping it as loaded", s.cfg.StoreID)
		}
	}

	if s.presenceClient != nil && s.cfg.PresenceInterval > 0 {
		s.poller = conflict.NewPoller(s.presenceClient, s.cfg.StoreID, s.cfg.EditorID, s.cfg.PresenceInterval, func(editors []conflict.EditorPresence) {
			s.emitter.Emit(s.ctx, EventEditors, editors)
		})
		s.poller.Start()
	}

	if s.cfg.BackupEvery > 0 {
		c := cron.New()
		_, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.BackupEvery), func() {
			s.conflicts.CreateBackup(s.cfg.StoreID, s.session.Blocks(), "periodic", nil)
		})
		if err == nil {
			c.Start()
			s.cronSched = c
		}
	}

	if s.cfg.DraftsDir != "" {
		s.startImportWatcher()
	}

	s.emitStatus()
	return nil
}

// Close flushes outstanding changes and stops the background jobs.
func (s *DesignService) Close(ctx context.Context) error {
	if s.poller != nil {
		s.poller.Stop()
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
	}
	if s.watchCancel != nil {
		s.watchCancel()
	}
	err := s.controller.Flush(ctx)
	s.controller.Stop()
	return err
}

// ── Editing operations ──────────────────────────────────────

func (s *DesignService) Blocks() []domain.Block {
	return s.session.Blocks()
}

// AddBlock inserts a new block of the given type with its default
// payload.
func (s *DesignService) AddBlock(blockType string, at int) (domain.Block, error) {
	t := domain.BlockType(blockType)
	known := false
	for _, k := range domain.KnownTypes {
		if k == t {
			known = true
			break
		}
	}
	if !known {
		return domain.Block{}, fmt.Errorf("unknown block type: %s", blockType)
	}
	return s.session.AddBlock(domain.Block{Type: t}, at), nil
}

func (s *DesignService) UpdateBlock(id string, patch editor.BlockPatch) bool {
	return s.session.UpdateBlock(id, patch)
}

func (s *DesignService) DeleteBlock(id string) bool {
	return s.session.DeleteBlock(id)
}

func (s *DesignService) MoveBlock(id string, to int) bool {
	return s.session.MoveBlock(id, to)
}

func (s *DesignService) SelectBlock(id string) { s.session.SelectBlock(id) }
func (s *DesignService) SetEditing(id string)  { s.session.SetEditing(id) }

func (s *DesignService) Undo() bool { return s.session.Undo() }
func (s *DesignService) Redo() bool { return s.session.Redo() }

// SaveNow skips the debounce and saves immediately.
func (s *DesignService) SaveNow(ctx context.Context) error {
	return s.controller.SaveNow(ctx)
}

func (s *DesignService) ShouldWarnOnExit() bool {
	return s.controller.ShouldWarnOnExit()
}

func (s *DesignService) Status() SaveStatus {
	status := SaveStatus{
		State:        s.controller.State(),
		SessionState: s.session.SaveState(),
		Pending:      s.session.PendingChanges(),
		Dirty:        s.session.IsDirty(),
		Version:      s.session.Version(),
	}
	if err := s.controller.LastError(); err != nil {
		status.LastError = err.Error()
	}
	return status
}

// ── Backups & recovery ──────────────────────────────────────

// CreateBackup snapshots the current document on user request.
func (s *DesignService) CreateBackup(reason string) domain.BackupEntry {
	if reason == "" {
		reason = "manual"
	}
	return s.conflicts.CreateBackup(s.cfg.StoreID, s.session.Blocks(), reason, nil)
}

// ListBackups returns the in-process ring, newest first.
func (s *DesignService) ListBackups() []domain.BackupEntry {
	return s.conflicts.GetBackupHistory(s.cfg.StoreID)
}

// ArchivedBackups returns the durable history when an archive is wired.
func (s *DesignService) ArchivedBackups() ([]domain.BackupEntry, error) {
	if s.archive == nil {
		return nil, nil
	}
	return s.archive.ListBackups(s.cfg.StoreID)
}

// RestoreBackup replaces the document with a snapshot. The current
// document is backed up first so the restore itself is reversible.
func (s *DesignService) RestoreBackup(id string) error {
	blocks := s.conflicts.RestoreFromBackup(id)
	if blocks == nil && s.archive != nil {
		entry, err := s.archive.GetBackup(id)
		if err != nil {
			return err
		}
		if entry != nil {
			blocks = domain.CloneBlocks(entry.Blocks)
		}
	}
	if blocks == nil {
		return fmt.Errorf("unknown backup: %s", id)
	}
	s.conflicts.CreateBackup(s.cfg.StoreID, s.session.Blocks(), "pre-restore", map[string]string{"backupId": id})
	s.session.SetBlocks(blocks, false)
	return nil
}

// ValidateIntegrity checks the current document.
func (s *DesignService) ValidateIntegrity() conflict.IntegrityReport {
	return s.conflicts.ValidateDataIntegrity(s.session.Blocks())
}

// RecoverLayout rebuilds the document after a failed integrity check:
// broken blocks are stripped and positions renumbered; on total loss
// the newest valid backup is adopted instead. The damaged document is
// backed up first. A no-op when the document is already valid.
func (s *DesignService) RecoverLayout() ([]domain.Block, error) {
	blocks := s.session.Blocks()
	if s.conflicts.ValidateDataIntegrity(blocks).IsValid {
		return blocks, nil
	}
	recovered := s.recoverCorrupted(blocks)
	if recovered == nil {
		return nil, fmt.Errorf("layout unrecoverable: no valid backup available")
	}
	s.conflicts.CreateBackup(s.cfg.StoreID, blocks, "pre-recovery", nil)
	s.session.SetBlocks(recovered, false)
	return recovered, nil
}

// recoverCorrupted runs emergency recovery and, when the document is a
// total loss, walks the backup ring and then the durable archive for
// the newest snapshot that still validates. Nil when nothing usable
// remains.
func (s *DesignService) recoverCorrupted(blocks []domain.Block) []domain.Block {
	ptrs := make([]*domain.Block, len(blocks))
	for i := range blocks {
		ptrs[i] = &blocks[i]
	}
	if recovered := s.conflicts.EmergencyRecovery(ptrs); len(recovered) > 0 {
		return recovered
	}
	for _, entry := range s.conflicts.GetBackupHistory(s.cfg.StoreID) {
		if s.conflicts.ValidateDataIntegrity(entry.Blocks).IsValid {
			return entry.Blocks
		}
	}
	if s.archive != nil {
		entries, err := s.archive.ListBackups(s.cfg.StoreID)
		if err != nil {
			return nil
		}
		for _, entry := range entries {
			if s.conflicts.ValidateDataIntegrity(entry.Blocks).IsValid {
				return domain.CloneBlocks(entry.Blocks)
			}
		}
	}
	return nil
}

// ── Conflict handling ───────────────────────────────────────

// resolveConflict is called by the autosave controller when a save hits
// a version conflict.
func (s *DesignService) resolveConflict(local []domain.Block, localVersion int, remote *persist.ConflictError) ([]domain.Block, bool) {
	merged, c := s.conflicts.Resolve(s.cfg.StoreID, s.tracker.Base(), local, remote.Blocks, localVersion, remote.Version)
	normalizePositions(merged)
	if c != nil {
		s.emitter.Emit(s.ctx, EventConflictResolved, c)
	}
	return merged, true
}

// normalizePositions renumbers a merged document densely. The merge
// keeps concurrently added blocks side by side at the same position,
// and the positional persisted format keys records by position, so a
// non-dense document would lose blocks on save.
func normalizePositions(blocks []domain.Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Position < blocks[j].Position
	})
	for i := range blocks {
		blocks[i].Position = i
	}
}

// KeepLocal force-saves the local document over the remote one, the
// user's explicit override after reviewing an automatic merge.
func (s *DesignService) KeepLocal(ctx context.Context) error {
	doc, err := s.tracker.Load(ctx, s.cfg.StoreID)
	if err != nil {
		return err
	}
	blocks := s.session.Blocks()
	pending := s.session.PendingChanges()
	s.conflicts.CreateBackup(s.cfg.StoreID, blocks, "manual-keep-local", nil)

	res, err := s.tracker.Save(ctx, persist.SaveRequest{
		StoreID:         s.cfg.StoreID,
		Blocks:          blocks,
		ExpectedVersion: doc.Version,
		Author:          s.cfg.EditorID,
	})
	if err != nil {
		return fmt.Errorf("keep local: %w", err)
	}
	s.session.CompleteSave(res.NewVersion, pending)
	s.emitter.Emit(s.ctx, EventConflictResolved, &domain.Conflict{
		Type:          domain.ConflictConcurrentEdit,
		LocalVersion:  doc.Version,
		RemoteVersion: res.NewVersion,
		Resolution:    domain.ResolutionManualLocal,
	})
	s.emitStatus()
	return nil
}

// Remerge re-runs the automatic merge against the current remote
// document, for the user retrying after reviewing a conflict.
func (s *DesignService) Remerge(ctx context.Context) error {
	doc, err := s.tracker.Load(ctx, s.cfg.StoreID)
	if err != nil {
		return err
	}
	pending := s.session.PendingChanges()
	merged, c := s.conflicts.Resolve(s.cfg.StoreID, s.tracker.Base(), s.session.Blocks(), doc.Blocks, s.session.Version(), doc.Version)
	normalizePositions(merged)

	res, err := s.tracker.Save(ctx, persist.SaveRequest{
		StoreID:         s.cfg.StoreID,
		Blocks:          merged,
		ExpectedVersion: doc.Version,
		Author:          s.cfg.EditorID,
	})
	if err != nil {
		return fmt.Errorf("remerge: %w", err)
	}
	s.session.AdoptResolved(merged, res.NewVersion, pending)
	if c != nil {
		s.emitter.Emit(s.ctx, EventConflictResolved, c)
	}
	s.emitStatus()
	return nil
}

// KeepRemote discards local changes in favor of the remote document.
func (s *DesignService) KeepRemote(ctx context.Context) error {
	doc, err := s.tracker.Load(ctx, s.cfg.StoreID)
	if err != nil {
		return err
	}
	localVersion := s.session.Version()
	s.conflicts.CreateBackup(s.cfg.StoreID, s.session.Blocks(), "manual-keep-remote", nil)
	s.session.SetBlocks(doc.Blocks, true)
	s.session.SetVersion(doc.Version)
	s.tracker.SetBase(doc.Blocks)
	s.emitter.Emit(s.ctx, EventConflictResolved, &domain.Conflict{
		Type:          domain.ConflictConcurrentEdit,
		LocalVersion:  localVersion,
		RemoteVersion: doc.Version,
		Resolution:    domain.ResolutionManualRemote,
	})
	s.emitStatus()
	return nil
}

func (s *DesignService) emitStatus() {
	s.emitter.Emit(s.ctx, EventSaveStatus, s.Status())
}
