package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"storedesign/internal/domain"
	"storedesign/internal/persist"
)

// ─────────────────────────────────────────────────────────────
// Autosave controller — debounces mutations into save attempts,
// retries transient failures with linear backoff, and hands version
// conflicts to a resolver before re-saving against the remote version.
//
// Save attempts run inline on the goroutine that triggered them (timer
// callback, SaveNow, Flush); mutations arriving mid-save are coalesced
// into the next cycle.
// ─────────────────────────────────────────────────────────────

type State string

const (
	StateIdle            State = "idle"
	StatePendingDebounce State = "pendingDebounce"
	StateSaving          State = "saving"
	StateRetrying        State = "retrying"
	StateFailed          State = "failed"
)

type Config struct {
	Debounce    time.Duration // quiet period after the last mutation
	RetryDelay  time.Duration // base delay; attempt N waits N*RetryDelay
	MaxAttempts int           // consecutive failures before giving up
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = 3 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	return c
}

// Document is the editing session surface the controller drives; it is
// satisfied by editor.Session.
type Document interface {
	StoreID() string
	BeginSave() (blocks []domain.Block, version int, pending int)
	CompleteSave(newVersion, covered int)
	FailSave()
	AdoptResolved(blocks []domain.Block, newVersion, covered int)
	PendingChanges() int
}

// ConflictResolver merges the local snapshot against the remote
// document from a failed compare-and-set. ok=false means the conflict
// could not be resolved and the save counts as a failure.
type ConflictResolver func(local []domain.Block, localVersion int, remote *persist.ConflictError) (merged []domain.Block, ok bool)

type Controller struct {
	mu      sync.Mutex
	cfg     Config
	doc     Document
	saver   persist.Saver
	sched   Scheduler
	author  string
	resolve ConflictResolver
	onState func(State, error)

	state     State
	attempt   int
	lastError error
	debounce  Timer
	retry     Timer
	rearm     bool // mutation arrived while saving
	stopped   bool
}

func NewController(doc Document, saver persist.Saver, sched Scheduler, cfg Config, author string) *Controller {
	if sched == nil {
		sched = NewWallScheduler()
	}
	return &Controller{
		cfg:    cfg.withDefaults(),
		doc:    doc,
		saver:  saver,
		sched:  sched,
		author: author,
		state:  StateIdle,
	}
}

// SetConflictResolver wires the conflict service in. Must be called
// before the first save.
func (c *Controller) SetConflictResolver(fn ConflictResolver) {
	c.mu.Lock()
	c.resolve = fn
	c.mu.Unlock()
}

// SetOnStateChange registers a listener fired after every state
// transition, outside the controller lock.
func (c *Controller) SetOnStateChange(fn func(State, error)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// NotifyMutation re-arms the debounce window. Wired to the session's
// mutation hook.
func (c *Controller) NotifyMutation() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	switch c.state {
	case StateSaving:
		c.rearm = true
		c.mu.Unlock()
		return
	case StateRetrying:
		// The retry snapshots the document fresh when it fires.
		c.mu.Unlock()
		return
	}
	if c.state == StateFailed {
		c.attempt = 0
	}
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.state = StatePendingDebounce
	c.debounce = c.sched.AfterFunc(c.cfg.Debounce, c.debounceFire)
	c.mu.Unlock()
	c.emitState()
}

// SaveNow cancels any pending debounce and saves immediately. A no-op
// when nothing is outstanding or a save is already in flight.
func (c *Controller) SaveNow(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped || c.state == StateSaving {
		c.mu.Unlock()
		return nil
	}
	if c.doc.PendingChanges() == 0 && c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.cancelTimersLocked()
	c.attempt = 0
	c.state = StateSaving
	c.mu.Unlock()
	c.emitState()
	return c.runSave(ctx)
}

// Flush is the page-hide analog: one best-effort synchronous save of
// whatever is outstanding. Nil when nothing needed saving or a save is
// already running.
func (c *Controller) Flush(ctx context.Context) error {
	return c.SaveNow(ctx)
}

// ShouldWarnOnExit reports whether closing now would lose work.
func (c *Controller) ShouldWarnOnExit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc.PendingChanges() > 0 {
		return true
	}
	return c.state == StatePendingDebounce || c.state == StateSaving || c.state == StateRetrying
}

// Stop cancels timers; in-flight saves finish on their own goroutine.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.cancelTimersLocked()
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// ── Internal machinery ──────────────────────────────────────

func (c *Controller) debounceFire() {
	c.mu.Lock()
	if c.stopped || c.state != StatePendingDebounce {
		c.mu.Unlock()
		return
	}
	c.state = StateSaving
	c.mu.Unlock()
	c.emitState()
	c.runSave(context.Background())
}

func (c *Controller) retryFire() {
	c.mu.Lock()
	if c.stopped || c.state != StateRetrying {
		c.mu.Unlock()
		return
	}
	c.state = StateSaving
	c.mu.Unlock()
	c.emitState()
	c.runSave(context.Background())
}

func (c *Controller) runSave(ctx context.Context) error {
	blocks, version, pending := c.doc.BeginSave()
	res, err := c.saver.Save(ctx, persist.SaveRequest{
		StoreID:         c.doc.StoreID(),
		Blocks:          blocks,
		ExpectedVersion: version,
		Author:          c.author,
	})
	if err == nil {
		c.doc.CompleteSave(res.NewVersion, pending)
		c.finishCycle()
		return nil
	}

	var ce *persist.ConflictError
	if errors.As(err, &ce) {
		if merged, ok := c.tryResolve(blocks, version, ce); ok {
			res, err2 := c.saver.Save(ctx, persist.SaveRequest{
				StoreID:         c.doc.StoreID(),
				Blocks:          merged,
				ExpectedVersion: ce.Version,
				Author:          c.author,
			})
			if err2 == nil {
				c.doc.AdoptResolved(merged, res.NewVersion, pending)
				c.finishCycle()
				return nil
			}
			err = err2
		}
	}

	c.doc.FailSave()
	c.scheduleRetry(err)
	return err
}

func (c *Controller) tryResolve(local []domain.Block, localVersion int, ce *persist.ConflictError) ([]domain.Block, bool) {
	c.mu.Lock()
	resolve := c.resolve
	c.mu.Unlock()
	if resolve == nil {
		return nil, false
	}
	return resolve(local, localVersion, ce)
}

func (c *Controller) finishCycle() {
	c.mu.Lock()
	c.attempt = 0
	c.lastError = nil
	rearm := (c.rearm || c.doc.PendingChanges() > 0) && !c.stopped
	c.rearm = false
	if rearm {
		c.state = StatePendingDebounce
		c.debounce = c.sched.AfterFunc(c.cfg.Debounce, c.debounceFire)
	} else {
		c.state = StateIdle
	}
	c.mu.Unlock()
	c.emitState()
}

func (c *Controller) scheduleRetry(err error) {
	c.mu.Lock()
	c.attempt++
	c.lastError = err
	if c.stopped || c.attempt >= c.cfg.MaxAttempts {
		c.state = StateFailed
		c.mu.Unlock()
		c.emitState()
		return
	}
	c.state = StateRetrying
	delay := c.cfg.RetryDelay * time.Duration(c.attempt)
	c.retry = c.sched.AfterFunc(delay, c.retryFire)
	c.mu.Unlock()
	c.emitState()
}

func (c *Controller) cancelTimersLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Controller) emitState() {
	c.mu.Lock()
	fn := c.onState
	state := c.state
	lastErr := c.lastError
	c.mu.Unlock()
	if fn != nil {
		fn(state, lastErr)
	}
}
