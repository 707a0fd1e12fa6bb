package search

import "sort"

// rrfK is the reciprocal rank fusion constant.
const rrfK = 60

// rrfMax is the largest possible reciprocal sum over two lists (rank 1 in
// both). Dividing by it pins a both-lists-top hit at 1.0 and a single-list
// top hit at 0.5.
var rrfMax = 2.0 / float64(rrfK+1)

// FuseRRF merges ranked lists by reciprocal rank fusion. A hit at 1-based
// rank r contributes 1/(60+r); contributions sum when the same document
// appears in several lists. Ties break toward the earlier list, then the
// earlier rank.
func FuseRRF(lists ...[]Result) []Result {
	type entry struct {
		result Result
		rrf    float64
		list   int
		pos    int
	}

	byID := make(map[string]*entry)
	var entries []*entry
	for li, list := range lists {
		for pos, r := range list {
			e, ok := byID[r.ID]
			if !ok {
				e = &entry{result: r, list: li, pos: pos}
				byID[r.ID] = e
				entries = append(entries, e)
			}
			e.rrf += 1.0 / float64(rrfK+pos+1)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].rrf != entries[j].rrf {
			return entries[i].rrf > entries[j].rrf
		}
		if entries[i].list != entries[j].list {
			return entries[i].list < entries[j].list
		}
		return entries[i].pos < entries[j].pos
	})

	fused := make([]Result, len(entries))
	for i, e := range entries {
		r := e.result
		r.Score = clamp01(e.rrf / rrfMax)
		fused[i] = r
	}
	return fused
}

// normalizeReciprocalScores rescales server $rankFusion output onto [0, 1].
// The server emits the same raw reciprocal sums client fusion computes, so
// the same divisor applies.
func normalizeReciprocalScores(results []Result) {
	for i := range results {
		results[i].Score = clamp01(results[i].Score / rrfMax)
	}
}
