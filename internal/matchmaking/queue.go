// Package matchmaking pools agents per (game type, level) and forms rooms
// from rating-compatible groups.
package matchmaking

import (
	"sort"
	"time"
)

type Entry struct {
	AgentID    string    `json:"agent_id"`
	Name       string    `json:"name,omitempty"`
	GameType   string    `json:"game_type"`
	Level      string    `json:"level"`
	Rating     int       `json:"rating"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type poolKey struct {
	gameType string
	level    string
}

func keyOf(e Entry) poolKey { return poolKey{gameType: e.GameType, level: e.Level} }

// queue holds every pool in arrival order. An agent is in at most one pool.
// The service mutex guards it.
type queue struct {
	pools   map[poolKey][]Entry
	byAgent map[string]poolKey
}

func newQueue() *queue {
	return &queue{
		pools:   map[poolKey][]Entry{},
		byAgent: map[string]poolKey{},
	}
}

func (q *queue) contains(agentID string) bool {
	_, ok := q.byAgent[agentID]
	return ok
}

// add appends e and returns its 1-based position in the pool.
func (q *queue) add(e Entry) int {
	k := keyOf(e)
	q.pools[k] = append(q.pools[k], e)
	q.byAgent[e.AgentID] = k
	return len(q.pools[k])
}

func (q *queue) lookup(agentID string) (Entry, int, bool) {
	k, ok := q.byAgent[agentID]
	if !ok {
		return Entry{}, 0, false
	}
	for i, e := range q.pools[k] {
		if e.AgentID == agentID {
			return e, i + 1, true
		}
	}
	return Entry{}, 0, false
}

func (q *queue) remove(agentID string) (Entry, bool) {
	k, ok := q.byAgent[agentID]
	if !ok {
		return Entry{}, false
	}
	delete(q.byAgent, agentID)
	pool := q.pools[k]
	for i, e := range pool {
		if e.AgentID != agentID {
			continue
		}
		q.setPool(k, append(pool[:i:i], pool[i+1:]...))
		return e, true
	}
	return Entry{}, false
}

func (q *queue) pool(k poolKey) []Entry {
	return append([]Entry(nil), q.pools[k]...)
}

// take removes the group's agents from pool k.
func (q *queue) take(k poolKey, group []Entry) {
	drop := make(map[string]struct{}, len(group))
	for _, e := range group {
		drop[e.AgentID] = struct{}{}
		delete(q.byAgent, e.AgentID)
	}
	kept := make([]Entry, 0, len(q.pools[k]))
	for _, e := range q.pools[k] {
		if _, ok := drop[e.AgentID]; !ok {
			kept = append(kept, e)
		}
	}
	q.setPool(k, kept)
}

// restore puts a pool back exactly as it was before take.
func (q *queue) restore(k poolKey, saved []Entry) {
	q.setPool(k, append([]Entry(nil), saved...))
	for _, e := range saved {
		q.byAgent[e.AgentID] = k
	}
}

func (q *queue) setPool(k poolKey, entries []Entry) {
	if len(entries) == 0 {
		delete(q.pools, k)
		return
	}
	q.pools[k] = entries
}

func (q *queue) keys() []poolKey {
	out := make([]poolKey, 0, len(q.pools))
	for k := range q.pools {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].gameType != out[j].gameType {
			return out[i].gameType < out[j].gameType
		}
		return out[i].level < out[j].level
	})
	return out
}

func (q *queue) olderThan(cutoff time.Time) []Entry {
	var out []Entry
	for _, k := range q.keys() {
		for _, e := range q.pools[k] {
			if e.EnqueuedAt.Before(cutoff) {
				out = append(out, e)
			}
		}
	}
	return out
}
