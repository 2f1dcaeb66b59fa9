package conflict

import (
	"encoding/json"
	"sort"

	"storedesign/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Three-way merge — reconcile divergent edits against a common
// ancestor. Inputs are never mutated; the result is a new array.
//
// The field tie-breaks (longer string wins, larger number wins)
// are coarse heuristics with no semantic guarantee: a shorter but
// more recent edit loses. That matches the shipped behavior; no
// timestamp-based last-writer-wins is inferred.
// ─────────────────────────────────────────────────────────────

// MergeOutcome carries the merged document plus whether any field fell
// through to the local-preferred default (both sides changed, no
// type-directed rule decided).
type MergeOutcome struct {
	Blocks            []domain.Block
	UsedLocalFallback bool
}

// ThreeWayMerge merges local and remote documents against their common
// ancestor. The result is sorted by position but not renumbered; callers
// normalize positions afterward.
func ThreeWayMerge(base, local, remote []domain.Block) []domain.Block {
	return MergeWithOutcome(base, local, remote).Blocks
}

// MergeWithOutcome is ThreeWayMerge plus fallback reporting.
func MergeWithOutcome(base, local, remote []domain.Block) MergeOutcome {
	baseByID := indexByID(base)
	localByID := indexByID(local)
	remoteByID := indexByID(remote)

	var out MergeOutcome
	merged := make([]domain.Block, 0, len(local)+len(remote))

	for _, id := range unionIDs(base, local, remote) {
		b, inBase := baseByID[id]
		l, inLocal := localByID[id]
		r, inRemote := remoteByID[id]

		switch {
		case !inBase && inLocal && inRemote:
			// Added on both sides under the same id.
			if domain.ContentEqual(l, r) {
				merged = append(merged, domain.CloneBlock(l))
			} else {
				merged = append(merged, domain.CloneBlock(resolveAddConflict(l, r)))
			}

		case !inBase && inLocal:
			merged = append(merged, domain.CloneBlock(l))

		case !inBase && inRemote:
			merged = append(merged, domain.CloneBlock(r))

		case inBase && !inLocal && inRemote:
			// Deleted locally. The delete stands only if remote kept the
			// block unchanged; a remote edit beats the concurrent delete.
			if !domain.ContentEqual(b, r) {
				merged = append(merged, domain.CloneBlock(r))
			}

		case inBase && inLocal && !inRemote:
			if !domain.ContentEqual(b, l) {
				merged = append(merged, domain.CloneBlock(l))
			}

		case inBase && inLocal && inRemote:
			switch {
			case domain.ContentEqual(l, r):
				merged = append(merged, domain.CloneBlock(l))
			case domain.ContentEqual(b, l):
				merged = append(merged, domain.CloneBlock(r))
			case domain.ContentEqual(b, r):
				merged = append(merged, domain.CloneBlock(l))
			default:
				mb, fellBack := mergeBlock(b, l, r)
				if fellBack {
					out.UsedLocalFallback = true
				}
				merged = append(merged, mb)
			}
		}
		// in base only: deleted on both sides, drop.
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Position != merged[j].Position {
			return merged[i].Position < merged[j].Position
		}
		return merged[i].ID < merged[j].ID
	})
	out.Blocks = merged
	return out
}

// ChangedBlockIDs returns every block id whose content differs between the
// two documents, including blocks present on only one side. Sorted for
// deterministic reporting.
func ChangedBlockIDs(local, remote []domain.Block) []string {
	localByID := indexByID(local)
	remoteByID := indexByID(remote)

	var ids []string
	for id, l := range localByID {
		r, ok := remoteByID[id]
		if !ok || !domain.ContentEqual(l, r) {
			ids = append(ids, id)
		}
	}
	for id := range remoteByID {
		if _, ok := localByID[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// resolveAddConflict picks the winner between two same-id blocks added
// concurrently. Lower position wins; ties fall back to the smaller
// canonical payload encoding, so both peers converge on the same winner
// regardless of which side they call local.
func resolveAddConflict(a, b domain.Block) domain.Block {
	if a.Position != b.Position {
		if a.Position < b.Position {
			return a
		}
		return b
	}
	if a.ID != b.ID {
		if a.ID < b.ID {
			return a
		}
		return b
	}
	ja, _ := json.Marshal(a.Data)
	jb, _ := json.Marshal(b.Data)
	if string(ja) <= string(jb) {
		return a
	}
	return b
}

// mergeBlock field-merges a concurrently edited block. Reports whether any
// field used the local-preferred fallback.
func mergeBlock(base, local, remote domain.Block) (domain.Block, bool) {
	out := domain.CloneBlock(local)
	fellBack := false

	data, fb := mergeMaps(base.Data, local.Data, remote.Data)
	out.Data = data
	fellBack = fellBack || fb

	pos, fb := mergeValue(base.Position, local.Position, remote.Position)
	if p, ok := pos.(int); ok {
		out.Position = p
	} else if p, ok := pos.(float64); ok {
		out.Position = int(p)
	}
	fellBack = fellBack || fb

	sp, fb := mergeValue(base.Spacing, local.Spacing, remote.Spacing)
	out.Spacing, _ = sp.(string)
	fellBack = fellBack || fb
	bg, fb := mergeValue(base.BackgroundColor, local.BackgroundColor, remote.BackgroundColor)
	out.BackgroundColor, _ = bg.(string)
	fellBack = fellBack || fb
	ta, fb := mergeValue(base.TextAlignment, local.TextAlignment, remote.TextAlignment)
	out.TextAlignment, _ = ta.(string)
	fellBack = fellBack || fb

	if remote.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = remote.UpdatedAt
	}
	return out, fellBack
}

// mergeMaps three-way merges JSON objects key by key.
func mergeMaps(base, local, remote map[string]any) (map[string]any, bool) {
	out := make(map[string]any, len(local)+len(remote))
	fellBack := false

	keys := map[string]bool{}
	for k := range base {
		keys[k] = true
	}
	for k := range local {
		keys[k] = true
	}
	for k := range remote {
		keys[k] = true
	}

	for k := range keys {
		bv, inBase := valueAt(base, k)
		lv, inLocal := valueAt(local, k)
		rv, inRemote := valueAt(remote, k)

		switch {
		case inLocal && inRemote:
			v, fb := mergeValue(bv, lv, rv)
			out[k] = domain.CloneValue(v)
			fellBack = fellBack || fb
		case inLocal && !inRemote:
			// Removed remotely; keep only if locally changed from base.
			if !inBase || !domain.ValueEqual(bv, lv) {
				out[k] = domain.CloneValue(lv)
			}
		case !inLocal && inRemote:
			if !inBase || !domain.ValueEqual(bv, rv) {
				out[k] = domain.CloneValue(rv)
			}
		}
	}
	return out, fellBack
}

// mergeValue resolves a single field. The bool reports a local-preferred
// fallback. Symmetric in local/remote except for the documented fallback
// and the equal-length / equal-magnitude cases it covers.
func mergeValue(base, local, remote any) (any, bool) {
	if domain.ValueEqual(local, remote) {
		return local, false
	}
	if domain.ValueEqual(base, local) {
		return remote, false
	}
	if domain.ValueEqual(base, remote) {
		return local, false
	}

	// Both sides changed to different values: type-directed tie-breaks.
	if ls, ok := local.(string); ok {
		if rs, ok := remote.(string); ok {
			switch {
			case len(ls) > len(rs):
				return ls, false
			case len(rs) > len(ls):
				return rs, false
			default:
				return ls, true
			}
		}
	}
	if ln, lok := asNumber(local); lok {
		if rn, rok := asNumber(remote); rok {
			if ln >= rn {
				return local, false
			}
			return remote, false
		}
	}
	if la, ok := local.([]any); ok {
		if ra, ok := remote.([]any); ok {
			return unionSlices(la, ra), false
		}
	}
	if lm, ok := local.(map[string]any); ok {
		if rm, ok := remote.(map[string]any); ok {
			bm, _ := base.(map[string]any)
			return mergeMaps(bm, lm, rm)
		}
	}
	return local, true
}

// unionSlices concatenates local then remote, dropping duplicates by
// canonical encoding.
func unionSlices(local, remote []any) []any {
	seen := map[string]bool{}
	out := make([]any, 0, len(local)+len(remote))
	for _, v := range append(append([]any{}, local...), remote...) {
		key, err := json.Marshal(v)
		if err != nil {
			out = append(out, v)
			continue
		}
		if !seen[string(key)] {
			seen[string(key)] = true
			out = append(out, v)
		}
	}
	return out
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func valueAt(m map[string]any, k string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[k]
	return v, ok
}

func indexByID(blocks []domain.Block) map[string]domain.Block {
	out := make(map[string]domain.Block, len(blocks))
	for _, b := range blocks {
		out[b.ID] = b
	}
	return out
}

// unionIDs walks base order first, then local additions, then remote
// additions, so iteration is deterministic before the final position sort.
func unionIDs(base, local, remote []domain.Block) []string {
	seen := map[string]bool{}
	var ids []string
	for _, set := range [][]domain.Block{base, local, remote} {
		for _, b := range set {
			if !seen[b.ID] {
				seen[b.ID] = true
				ids = append(ids, b.ID)
			}
		}
	}
	return ids
}
