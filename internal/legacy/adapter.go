package legacy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"storedesign/internal/domain"
)

// PersistedMap is the durable layout shape: stringified row index → flat
// record.
type PersistedMap map[string]Record

// ToBlocks converts a persisted map into the editor's block array. Each
// entry's positional key becomes both array order and the Position field;
// ids are generated fresh because the legacy format has none.
func ToBlocks(m PersistedMap) ([]domain.Block, error) {
	type row struct {
		pos int
		rec Record
	}
	rows := make([]row, 0, len(m))
	for key, rec := range m {
		pos, err := strconv.Atoi(key)
		if err != nil || pos < 0 {
			return nil, fmt.Errorf("legacy map: invalid positional key %q", key)
		}
		rows = append(rows, row{pos: pos, rec: rec})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].pos < rows[j].pos })

	now := time.Now()
	blocks := make([]domain.Block, 0, len(rows))
	for _, r := range rows {
		blocks = append(blocks, domain.Block{
			ID:              uuid.New().String(),
			Type:            domain.BlockType(r.rec.LayoutType),
			Position:        r.pos,
			Data:            r.rec.DataMap(),
			Spacing:         r.rec.Spacing,
			BackgroundColor: r.rec.BackgroundColor,
			TextAlignment:   r.rec.TextAlignment,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return blocks, nil
}

// ToPersistedMap converts a block array back into the legacy shape, keyed
// by each block's position. Callers are expected to normalize positions
// first; with duplicate positions the later block wins the key.
func ToPersistedMap(blocks []domain.Block) PersistedMap {
	out := make(PersistedMap, len(blocks))
	for _, b := range blocks {
		out[strconv.Itoa(b.Position)] = FromBlock(b)
	}
	return out
}

// FromBlock splits a block into a legacy record: interpreted fields into
// the typed payload, everything else into the pass-through Extra.
func FromBlock(b domain.Block) Record {
	rec := Record{
		LayoutType:      string(b.Type),
		Spacing:         b.Spacing,
		BackgroundColor: b.BackgroundColor,
		TextAlignment:   b.TextAlignment,
	}
	known := knownKeys(rec.LayoutType)
	payloadMap := domain.DefaultData(b.Type)
	for k, v := range b.Data {
		if known[k] {
			payloadMap[k] = v
			continue
		}
		if rec.Extra == nil {
			rec.Extra = map[string]any{}
		}
		rec.Extra[k] = domain.CloneValue(v)
	}

	if payload := rec.payloadPtr(rec.LayoutType); payload != nil {
		if encoded, err := json.Marshal(payloadMap); err == nil {
			_ = json.Unmarshal(encoded, payload)
		}
	}
	return rec
}

// DecodePersistedMap parses the raw JSON form stored in the backend table.
func DecodePersistedMap(data []byte) (PersistedMap, error) {
	var m PersistedMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	if m == nil {
		m = PersistedMap{}
	}
	return m, nil
}

// EncodePersistedMap renders the map for storage.
func EncodePersistedMap(m PersistedMap) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode layout: %w", err)
	}
	return data, nil
}
