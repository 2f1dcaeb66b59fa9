package conflict

import (
	"log"
	"sort"
	"time"
)

// ─────────────────────────────────────────────────────────────
// Editor presence — heartbeat publishing and polling so concurrent
// editors of the same store layout can be surfaced in the UI.
// ─────────────────────────────────────────────────────────────

// activityWindow is how recently an editor must have heartbeated to
// count as active.
const activityWindow = 60 * time.Second

type EditorPresence struct {
	EditorID     string    `json:"editorId"`
	LastActivity time.Time `json:"lastActivity"`
}

// PresenceClient is the transport for presence data; SQL and HTTP
// implementations live in the persist package.
type PresenceClient interface {
	Heartbeat(storeID, editorID string) error
	ActiveEditors(storeID string, since time.Time) ([]EditorPresence, error)
}

// Poller periodically heartbeats this editor and reports the other
// active editors through onChange. onChange only fires when the set of
// editors actually changed.
type Poller struct {
	client   PresenceClient
	storeID  string
	editorID string
	interval time.Duration
	onChange func(editors []EditorPresence)

	lastSeen string // fingerprint of the last reported editor set
	stopCh   chan struct{}
}

func NewPoller(client PresenceClient, storeID, editorID string, interval time.Duration, onChange func([]EditorPresence)) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		client:   client,
		storeID:  storeID,
		editorID: editorID,
		interval: interval,
		onChange: onChange,
	}
}

// Start begins the polling loop. Should be called once per session.
func (p *Poller) Start() {
	p.stopCh = make(chan struct{})
	go p.pollLoop()
}

// Stop terminates the polling loop.
func (p *Poller) Stop() {
	if p.stopCh != nil {
		close(p.stopCh)
	}
}

func (p *Poller) pollLoop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check()
	for {
		select {
		case <-ticker.C:
			p.check()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Poller) check() {
	if err := p.client.Heartbeat(p.storeID, p.editorID); err != nil {
		log.Printf("presence heartbeat: %v", err)
		return
	}

	editors, err := p.client.ActiveEditors(p.storeID, time.Now().Add(-activityWindow))
	if err != nil {
		log.Printf("presence poll: %v", err)
		return
	}

	// Skip ourselves; the UI cares about the OTHER editors.
	others := editors[:0:0]
	for _, e := range editors {
		if e.EditorID != p.editorID {
			others = append(others, e)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i].EditorID < others[j].EditorID })

	fp := ""
	for _, e := range others {
		fp += e.EditorID + "|"
	}
	if fp == p.lastSeen {
		return
	}
	p.lastSeen = fp
	if p.onChange != nil {
		p.onChange(others)
	}
}
