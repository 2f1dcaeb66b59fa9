package editor

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storedesign/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Session — authoritative in-memory state for one editing session
// ─────────────────────────────────────────────────────────────

type SaveState string

const (
	SaveStateSaved   SaveState = "saved"
	SaveStateUnsaved SaveState = "unsaved"
	SaveStateSaving  SaveState = "saving"
	SaveStateError   SaveState = "error"
)

// maxHistory bounds the undo/redo stacks; oldest snapshots fall off.
const maxHistory = 40

// Session owns the live block array for one store while it is being
// edited. Collaborators only ever receive deep copies; merges and saves
// hand replacement arrays back through SetBlocks/CompleteSave.
type Session struct {
	mu             sync.Mutex
	storeID        string
	blocks         []domain.Block
	selectedID     string
	editingID      string
	dirty          bool
	pendingChanges int
	saveState      SaveState
	currentVersion int
	undoStack      [][]domain.Block
	redoStack      [][]domain.Block
	onMutate       func()
}

func NewSession(storeID string) *Session {
	return &Session{storeID: storeID, saveState: SaveStateSaved}
}

// SetOnMutate installs the hook invoked after every content mutation. The
// autosave controller uses it to (re)arm its debounce timer.
func (s *Session) SetOnMutate(fn func()) {
	s.mu.Lock()
	s.onMutate = fn
	s.mu.Unlock()
}

func (s *Session) StoreID() string { return s.storeID }

// BlockPatch is a partial update merged into an existing block. Nil/zero
// members leave the corresponding field untouched; Data keys are merged
// into the existing payload.
type BlockPatch struct {
	Data            map[string]any
	Position        *int
	Spacing         *string
	BackgroundColor *string
	TextAlignment   *string
}

// SetBlocks replaces the document wholesale. With boundary=true (initial
// load, resolved merge applied as a save boundary) the dirty/pending
// counters and history reset; otherwise the replacement counts as a normal
// mutation.
func (s *Session) SetBlocks(blocks []domain.Block, boundary bool) {
	s.mu.Lock()
	if boundary {
		s.blocks = domain.CloneBlocks(blocks)
		s.dirty = false
		s.pendingChanges = 0
		s.saveState = SaveStateSaved
		s.undoStack = nil
		s.redoStack = nil
		s.mu.Unlock()
		return
	}
	s.snapshotLocked()
	s.blocks = domain.CloneBlocks(blocks)
	s.markMutatedLocked()
	s.unlockAndNotify()
}

// Blocks returns a deep copy of the current document.
func (s *Session) Blocks() []domain.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneBlocks(s.blocks)
}

// AddBlock inserts a block at the given position, shifting subsequent
// positions up by one. A missing id or data payload is filled in. Never
// produces duplicate positions.
func (s *Session) AddBlock(b domain.Block, at int) domain.Block {
	s.mu.Lock()
	s.snapshotLocked()
	if at < 0 {
		at = 0
	}
	if at > len(s.blocks) {
		at = len(s.blocks)
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Data == nil {
		b.Data = domain.DefaultData(b.Type)
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	for i := range s.blocks {
		if s.blocks[i].Position >= at {
			s.blocks[i].Position++
		}
	}
	b.Position = at
	s.blocks = append(s.blocks, domain.CloneBlock(b))
	sortByPosition(s.blocks)
	s.markMutatedLocked()
	s.unlockAndNotify()
	return b
}

// UpdateBlock merges a partial update into the block with the given id and
// refreshes its UpdatedAt. Returns false — leaving state untouched — when
// no block matches; the caller is assumed to hold accurate local state, so
// a miss is a caller bug, not a recoverable condition.
func (s *Session) UpdateBlock(id string, patch BlockPatch) bool {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.snapshotLocked()
	b := &s.blocks[idx]
	if patch.Data != nil {
		if b.Data == nil {
			b.Data = map[string]any{}
		}
		for k, v := range patch.Data {
			b.Data[k] = domain.CloneValue(v)
		}
	}
	if patch.Position != nil {
		b.Position = *patch.Position
	}
	if patch.Spacing != nil {
		b.Spacing = *patch.Spacing
	}
	if patch.BackgroundColor != nil {
		b.BackgroundColor = *patch.BackgroundColor
	}
	if patch.TextAlignment != nil {
		b.TextAlignment = *patch.TextAlignment
	}
	b.UpdatedAt = time.Now()
	if patch.Position != nil {
		sortByPosition(s.blocks)
	}
	s.markMutatedLocked()
	s.unlockAndNotify()
	return true
}

// DeleteBlock removes the block. Remaining positions are not renumbered;
// NormalizePositions is a separate, explicit operation so batch deletes
// can normalize once.
func (s *Session) DeleteBlock(id string) bool {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.snapshotLocked()
	s.blocks = append(s.blocks[:idx], s.blocks[idx+1:]...)
	if s.selectedID == id {
		s.selectedID = ""
	}
	if s.editingID == id {
		s.editingID = ""
	}
	s.markMutatedLocked()
	s.unlockAndNotify()
	return true
}

// NormalizePositions renumbers the document densely (0..N-1) in current
// render order.
func (s *Session) NormalizePositions() {
	s.mu.Lock()
	s.snapshotLocked()
	sortByPosition(s.blocks)
	for i := range s.blocks {
		s.blocks[i].Position = i
	}
	s.markMutatedLocked()
	s.unlockAndNotify()
}

// MoveBlock reorders a block to the given index and renumbers the
// document densely. Returns false when no block matches.
func (s *Session) MoveBlock(id string, to int) bool {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.snapshotLocked()
	sortByPosition(s.blocks)
	idx = s.indexOfLocked(id)
	if to < 0 {
		to = 0
	}
	if to >= len(s.blocks) {
		to = len(s.blocks) - 1
	}
	moved := s.blocks[idx]
	s.blocks = append(s.blocks[:idx], s.blocks[idx+1:]...)
	s.blocks = append(s.blocks[:to], append([]domain.Block{moved}, s.blocks[to:]...)...)
	for i := range s.blocks {
		s.blocks[i].Position = i
	}
	s.blocks[to].UpdatedAt = time.Now()
	s.markMutatedLocked()
	s.unlockAndNotify()
	return true
}

// SelectBlock moves the selection cursor. Selection is not a content
// mutation and does not touch dirty state or history.
func (s *Session) SelectBlock(id string) {
	s.mu.Lock()
	s.selectedID = id
	if s.editingID != "" && s.editingID != id {
		s.editingID = ""
	}
	s.mu.Unlock()
}

// SetEditing moves the editing cursor. A block being edited is implicitly
// selected; clearing editing keeps the selection.
func (s *Session) SetEditing(id string) {
	s.mu.Lock()
	s.editingID = id
	if id != "" {
		s.selectedID = id
	}
	s.mu.Unlock()
}

// Undo restores the previous whole-document snapshot. Returns false when
// the history is empty.
func (s *Session) Undo() bool {
	s.mu.Lock()
	if len(s.undoStack) == 0 {
		s.mu.Unlock()
		return false
	}
	s.redoStack = append(s.redoStack, domain.CloneBlocks(s.blocks))
	s.blocks = s.undoStack[len(s.undoStack)-1]
	s.undoStack = s.undoStack[:len(s.undoStack)-1]
	s.markMutatedLocked()
	s.unlockAndNotify()
	return true
}

// Redo re-applies the most recently undone snapshot. Returns false when
// there is nothing to redo.
func (s *Session) Redo() bool {
	s.mu.Lock()
	if len(s.redoStack) == 0 {
		s.mu.Unlock()
		return false
	}
	s.undoStack = append(s.undoStack, domain.CloneBlocks(s.blocks))
	s.blocks = s.redoStack[len(s.redoStack)-1]
	s.redoStack = s.redoStack[:len(s.redoStack)-1]
	s.markMutatedLocked()
	s.unlockAndNotify()
	return true
}

// ── Save boundaries ─────────────────────────────────────────

// BeginSave snapshots the document for a save attempt: a deep copy of the
// blocks, the version the save expects, and the pending count covered by
// this attempt.
func (s *Session) BeginSave() (blocks []domain.Block, version int, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveState = SaveStateSaving
	return domain.CloneBlocks(s.blocks), s.currentVersion, s.pendingChanges
}

// CompleteSave records a successful save. Only the changes covered by the
// attempt are cleared, so edits made while the save was in flight stay
// pending.
func (s *Session) CompleteSave(newVersion, covered int) {
	s.mu.Lock()
	s.currentVersion = newVersion
	s.pendingChanges -= covered
	if s.pendingChanges < 0 {
		s.pendingChanges = 0
	}
	s.dirty = s.pendingChanges > 0
	if s.dirty {
		s.saveState = SaveStateUnsaved
	} else {
		s.saveState = SaveStateSaved
	}
	s.mu.Unlock()
}

// FailSave flips the visible state to error; pending changes are kept.
func (s *Session) FailSave() {
	s.mu.Lock()
	s.saveState = SaveStateError
	s.mu.Unlock()
}

// AdoptResolved replaces the document with a conflict-merged result that
// has already been persisted at newVersion. The previous document is
// pushed onto the undo stack so the merge can be stepped back locally.
func (s *Session) AdoptResolved(blocks []domain.Block, newVersion, covered int) {
	s.mu.Lock()
	s.snapshotLocked()
	s.blocks = domain.CloneBlocks(blocks)
	s.currentVersion = newVersion
	s.pendingChanges -= covered
	if s.pendingChanges < 0 {
		s.pendingChanges = 0
	}
	s.dirty = s.pendingChanges > 0
	if s.dirty {
		s.saveState = SaveStateUnsaved
	} else {
		s.saveState = SaveStateSaved
	}
	s.mu.Unlock()
}

// SetVersion sets the known persisted version (initial load, resolved
// conflict).
func (s *Session) SetVersion(v int) {
	s.mu.Lock()
	s.currentVersion = v
	s.mu.Unlock()
}

// ── Accessors ───────────────────────────────────────────────

func (s *Session) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentVersion
}

func (s *Session) PendingChanges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingChanges
}

func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Session) SaveState() SaveState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveState
}

func (s *Session) SelectedBlockID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID
}

func (s *Session) EditingBlockID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editingID
}

// ── internals ───────────────────────────────────────────────

func (s *Session) indexOfLocked(id string) int {
	for i := range s.blocks {
		if s.blocks[i].ID == id {
			return i
		}
	}
	return -1
}

// snapshotLocked pushes the current document onto the undo stack and
// clears the redo stack. Called before every mutating operation.
func (s *Session) snapshotLocked() {
	snap := domain.CloneBlocks(s.blocks)
	s.undoStack = append(s.undoStack, snap)
	if len(s.undoStack) > maxHistory {
		s.undoStack = s.undoStack[len(s.undoStack)-maxHistory:]
	}
	s.redoStack = nil
}

func (s *Session) markMutatedLocked() {
	s.dirty = true
	s.pendingChanges++
	if s.saveState == SaveStateSaved {
		s.saveState = SaveStateUnsaved
	}
}

// unlockAndNotify releases the lock, then fires the mutation hook outside
// of it so the hook may call back into the session.
func (s *Session) unlockAndNotify() {
	fn := s.onMutate
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func sortByPosition(blocks []domain.Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Position < blocks[j].Position
	})
}
