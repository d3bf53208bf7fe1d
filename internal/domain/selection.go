package domain

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

// recentWindow is how many of the newest records are inspected when
// excluding recently used provinces.
func recentWindow() int {
	return min(5, len(catalog.order)-2)
}

// RecentProvinces returns the distinct provinces among the newest records
// inside the exclusion window, in order of first appearance.
func RecentProvinces(history History) []Province {
	window := min(recentWindow(), len(history))
	var recent []Province
	for _, r := range history[:window] {
		if !slices.Contains(recent, r.Comune.Province) {
			recent = append(recent, r.Comune.Province)
		}
	}
	return recent
}

// ProvinceCandidates returns the provinces eligible for the next draw. When
// every province was used recently the full set is eligible again.
func ProvinceCandidates(history History) []Province {
	recent := RecentProvinces(history)
	var candidates []Province
	for _, p := range catalog.order {
		if !slices.Contains(recent, p) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return Provinces()
	}
	return candidates
}

// NextProvince draws the next province uniformly from ProvinceCandidates.
func NextProvince(history History, rng *rand.Rand) Province {
	candidates := ProvinceCandidates(history)
	return candidates[rng.IntN(len(candidates))]
}

// neverSeen ranks ahead of every real history index.
const neverSeen = -1

// RankComuni orders a province's comuni least-recently-seen first: comuni
// absent from history lead, then seen ones from oldest to newest appearance.
// Ties keep catalog order.
func RankComuni(history History, p Province) []Comune {
	lastSeen := make(map[string]int)
	for i, r := range history {
		if r.Comune.Province != p {
			continue
		}
		if _, ok := lastSeen[r.Comune.Name]; !ok {
			lastSeen[r.Comune.Name] = i
		}
	}

	rank := func(c Comune) int {
		if i, ok := lastSeen[c.Name]; ok {
			return i
		}
		return neverSeen
	}

	ranked := ComuniOf(p)
	slices.SortStableFunc(ranked, func(a, b Comune) int {
		ra, rb := rank(a), rank(b)
		switch {
		case ra == rb:
			return 0
		case ra == neverSeen:
			return -1
		case rb == neverSeen:
			return 1
		default:
			// Higher index means seen longer ago.
			return rb - ra
		}
	})
	return ranked
}

// PoolSize is the least-recently-seen quartile size for n comuni.
func PoolSize(n int) int {
	return max(1, n/4)
}

// PickComune draws uniformly from the least-recently-seen quartile of the
// province's comuni.
func PickComune(history History, p Province, rng *rand.Rand) (Comune, error) {
	ranked := RankComuni(history, p)
	if len(ranked) == 0 {
		return Comune{}, fmt.Errorf("%w: %q", ErrUnknownProvince, p)
	}
	pool := ranked[:PoolSize(len(ranked))]
	return pool[rng.IntN(len(pool))], nil
}
