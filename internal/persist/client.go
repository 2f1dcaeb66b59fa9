package persist

import (
	"context"
	"errors"
	"fmt"

	"storedesign/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Persistence drivers — compare-and-set layout storage against a
// local SQLite file, a shared SQL database, or the hosted backend's
// REST endpoint. All drivers speak the positional-map layout format
// on the wire.
// ─────────────────────────────────────────────────────────────

// SaveRequest carries one save attempt. ExpectedVersion is the version
// the document was loaded at; the save succeeds only if the stored
// version still matches.
type SaveRequest struct {
	StoreID         string
	Blocks          []domain.Block
	ExpectedVersion int
	Author          string
}

type SaveResult struct {
	NewVersion int
}

// ErrConflict is matched by errors.Is against *ConflictError.
var ErrConflict = errors.New("layout version conflict")

// ConflictError reports a failed compare-and-set: someone else saved
// first. Version and Blocks describe the currently stored document so
// the caller can merge against it.
type ConflictError struct {
	Version int
	Blocks  []domain.Block
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("layout version conflict: stored version is %d", e.Version)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Saver is the persistence contract the autosave controller drives.
type Saver interface {
	Save(ctx context.Context, req SaveRequest) (*SaveResult, error)
	Load(ctx context.Context, storeID string) (*domain.DocumentVersion, error)
	Close() error
}

// Endpoint describes where layouts are persisted. The driver key picks
// the implementation; the remaining fields are driver-specific.
type Endpoint struct {
	Driver   string // "sqlite" | "postgres" | "mysql" | "http"
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
	Path     string // sqlite file path
	BaseURL  string // http backend base URL
	Token    string // http bearer token
}

// NewSaver creates a Saver for the given endpoint.
func NewSaver(ep Endpoint) (Saver, error) {
	switch ep.Driver {
	case "sqlite":
		return newSQLiteSaver(ep)
	case "postgres":
		return newSQLSaver("postgres", buildPostgresDSN(ep))
	case "mysql":
		return newSQLSaver("mysql", buildMySQLDSN(ep))
	case "http":
		return newHTTPSaver(ep), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", ep.Driver)
	}
}
