package search

import "sort"

// DedupBySnippet collapses results with byte-identical snippets onto the
// copy with the highest score, regardless of input order. Surviving copies
// keep their input positions.
func DedupBySnippet(results []Result) []Result {
	best := make(map[string]int, len(results))
	for i, r := range results {
		j, ok := best[r.Snippet]
		if !ok || r.Score > results[j].Score {
			best[r.Snippet] = i
		}
	}

	deduped := make([]Result, 0, len(best))
	for i, r := range results {
		if best[r.Snippet] == i {
			deduped = append(deduped, r)
		}
	}
	return deduped
}

// Merge flattens per-source lists into one ranked response: sort by score
// descending, collapse duplicate snippets onto their best score, drop hits
// under minScore, truncate to maxResults.
func Merge(maxResults int, minScore float64, lists ...[]Result) []Result {
	var all []Result
	for _, list := range lists {
		all = append(all, list...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	all = DedupBySnippet(all)

	merged := make([]Result, 0, len(all))
	for _, r := range all {
		if r.Score < minScore {
			continue
		}
		merged = append(merged, r)
	}
	if maxResults > 0 && len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	return merged
}
