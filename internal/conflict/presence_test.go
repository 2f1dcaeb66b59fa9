package conflict

import (
	"testing"
	"time"
)

type fakePresenceClient struct {
	heartbeats []string
	editors    []EditorPresence
}

func (f *fakePresenceClient) Heartbeat(storeID, editorID string) error {
	f.heartbeats = append(f.heartbeats, editorID)
	return nil
}

func (f *fakePresenceClient) ActiveEditors(string, time.Time) ([]EditorPresence, error) {
	return f.editors, nil
}

func TestPoller_ReportsOtherEditorsOnChange(t *testing.T) {
	client := &fakePresenceClient{editors: []EditorPresence{
		{EditorID: "me"},
		{EditorID: "bob"},
		{EditorID: "alice"},
	}}
	var reported [][]EditorPresence
	p := NewPoller(client, "s1", "me", time.Minute, func(editors []EditorPresence) {
		reported = append(reported, editors)
	})

	p.check()
	if len(client.heartbeats) != 1 || client.heartbeats[0] != "me" {
		t.Errorf("heartbeats: %v", client.heartbeats)
	}
	if len(reported) != 1 {
		t.Fatalf("reports: %d", len(reported))
	}
	got := reported[0]
	if len(got) != 2 || got[0].EditorID != "alice" || got[1].EditorID != "bob" {
		t.Errorf("must exclude self and sort: %+v", got)
	}

	// Same set again: no new report.
	p.check()
	if len(reported) != 1 {
		t.Errorf("unchanged set must not re-report: %d", len(reported))
	}

	// Bob leaves: one more report.
	client.editors = []EditorPresence{{EditorID: "me"}, {EditorID: "alice"}}
	p.check()
	if len(reported) != 2 {
		t.Fatalf("change must re-report: %d", len(reported))
	}
	if len(reported[1]) != 1 || reported[1][0].EditorID != "alice" {
		t.Errorf("after change: %+v", reported[1])
	}
}
