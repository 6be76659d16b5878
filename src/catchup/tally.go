package catchup

import "sort"

// Tally maps reported values to the set of distinct peers that reported them.
// Adding the same (key, peer) pair twice has no effect.
type Tally[K comparable] struct {
	votes map[K]map[string]struct{}
}

// NewTally ...
func NewTally[K comparable]() *Tally[K] {
	return &Tally[K]{
		votes: make(map[K]map[string]struct{}),
	}
}

// Add records that peer reported key and returns the support of key.
func (t *Tally[K]) Add(key K, peer string) int {
	peers, ok := t.votes[key]
	if !ok {
		peers = make(map[string]struct{})
		t.votes[key] = peers
	}
	peers[peer] = struct{}{}
	return len(peers)
}

// Count returns the number of distinct peers that reported key.
func (t *Tally[K]) Count(key K) int {
	return len(t.votes[key])
}

// Reporters returns the sorted peers that reported key.
func (t *Tally[K]) Reporters(key K) []string {
	res := make([]string, 0, len(t.votes[key]))
	for p := range t.votes[key] {
		res = append(res, p)
	}
	sort.Strings(res)
	return res
}

// Keys returns the number of distinct keys.
func (t *Tally[K]) Keys() int {
	return len(t.votes)
}

// Clear forgets every report.
func (t *Tally[K]) Clear() {
	t.votes = make(map[K]map[string]struct{})
}
