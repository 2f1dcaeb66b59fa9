package persist

import (
	"encoding/json"
	"strconv"

	"storedesign/internal/domain"
	"storedesign/internal/legacy"
)

// The positional-map format carries no block identity, but merge and
// conflict detection match blocks by id. Drivers therefore stash each
// block's id in the record's pass-through side-channel and strip it
// again on decode, so documents we persisted ourselves keep stable ids
// while genuinely foreign layouts still get fresh ones.

func encodeLayout(blocks []domain.Block) ([]byte, error) {
	pm := legacy.PersistedMap{}
	for _, b := range blocks {
		rec := legacy.FromBlock(b)
		if rec.Extra == nil {
			rec.Extra = map[string]any{}
		}
		rec.Extra["id"] = b.ID
		pm[strconv.Itoa(b.Position)] = rec
	}
	return json.Marshal(pm)
}

func decodeLayout(data []byte) ([]domain.Block, error) {
	pm, err := legacy.DecodePersistedMap(data)
	if err != nil {
		return nil, err
	}
	blocks, err := legacy.ToBlocks(pm)
	if err != nil {
		return nil, err
	}
	for i := range blocks {
		if id, ok := blocks[i].Data["id"].(string); ok && id != "" {
			blocks[i].ID = id
			delete(blocks[i].Data, "id")
		}
	}
	return blocks, nil
}
