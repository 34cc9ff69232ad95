package matchmaking

import "sort"

// FindGroup returns the first rating-compatible group in pool, or nil.
// The pool is stable-sorted by rating so equal ratings keep queue order;
// from each start agent it greedily takes later agents within window of
// the start agent's rating until maxPlayers.
func FindGroup(pool []Entry, window, minPlayers, maxPlayers int) []Entry {
	if minPlayers < 1 || len(pool) < minPlayers {
		return nil
	}
	if maxPlayers < minPlayers {
		maxPlayers = minPlayers
	}
	sorted := append([]Entry(nil), pool...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rating < sorted[j].Rating })

	for i := range sorted {
		group := []Entry{sorted[i]}
		for j := i + 1; j < len(sorted) && len(group) < maxPlayers; j++ {
			if abs(sorted[j].Rating-sorted[i].Rating) <= window {
				group = append(group, sorted[j])
			}
		}
		if len(group) >= minPlayers {
			return group
		}
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
