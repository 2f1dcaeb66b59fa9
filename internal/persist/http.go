package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storedesign/internal/conflict"
	"storedesign/internal/domain"
)

// httpSaver talks to the hosted backend's layout endpoint. The backend
// performs the compare-and-set itself and answers 409 with the current
// row when the version moved.
type httpSaver struct {
	baseURL string
	token   string
	client  *http.Client
}

func newHTTPSaver(ep Endpoint) *httpSaver {
	return &httpSaver{
		baseURL: strings.TrimRight(ep.BaseURL, "/"),
		token:   ep.Token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (h *httpSaver) Close() error { return nil }

type layoutPayload struct {
	Version         int             `json:"version,omitempty"`
	ExpectedVersion int             `json:"expectedVersion,omitempty"`
	Author          string          `json:"author,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt,omitempty"`
	Layout          json.RawMessage `json:"layout,omitempty"`
}

func (h *httpSaver) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	return h.client.Do(req)
}

func (h *httpSaver) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	layout, err := encodeLayout(req.Blocks)
	if err != nil {
		return nil, fmt.Errorf("encode layout: %w", err)
	}
	body, _ := json.Marshal(layoutPayload{
		ExpectedVersion: req.ExpectedVersion,
		Author:          req.Author,
		Layout:          layout,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut,
		h.baseURL+"/stores/"+url.PathEscape(req.StoreID)+"/layout", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := h.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("save layout: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out layoutPayload
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode save response: %w", err)
		}
		return &SaveResult{NewVersion: out.Version}, nil
	case http.StatusConflict:
		var out layoutPayload
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode conflict response: %w", err)
		}
		remote, err := decodeLayout(out.Layout)
		if err != nil {
			return nil, fmt.Errorf("decode conflict layout: %w", err)
		}
		return nil, &ConflictError{Version: out.Version, Blocks: remote}
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("save layout: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
}

func (h *httpSaver) Load(ctx context.Context, storeID string) (*domain.DocumentVersion, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		h.baseURL+"/stores/"+url.PathEscape(storeID)+"/layout", nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("load layout: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &domain.DocumentVersion{Blocks: []domain.Block{}}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load layout: HTTP %d", resp.StatusCode)
	}

	var out layoutPayload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode layout response: %w", err)
	}
	blocks, err := decodeLayout(out.Layout)
	if err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	return &domain.DocumentVersion{
		Version:    out.Version,
		Timestamp:  out.UpdatedAt,
		Blocks:     blocks,
		Author:     out.Author,
		ChangeHash: domain.ChangeHash(blocks),
	}, nil
}

// ── Presence ────────────────────────────────────────────────

func (h *httpSaver) Heartbeat(storeID, editorID string) error {
	body, _ := json.Marshal(map[string]string{"editorId": editorID})
	req, err := http.NewRequest(http.MethodPost,
		h.baseURL+"/stores/"+url.PathEscape(storeID)+"/presence", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := h.do(req)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("heartbeat: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (h *httpSaver) ActiveEditors(storeID string, since time.Time) ([]conflict.EditorPresence, error) {
	req, err := http.NewRequest(http.MethodGet,
		h.baseURL+"/stores/"+url.PathEscape(storeID)+"/presence?since="+url.QueryEscape(since.Format(time.RFC3339)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.do(req)
	if err != nil {
		return nil, fmt.Errorf("active editors: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("active editors: HTTP %d", resp.StatusCode)
	}

	var out struct {
		Editors []conflict.EditorPresence `json:"editors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode editors: %w", err)
	}
	return out.Editors, nil
}
