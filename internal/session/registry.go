// Package session tracks which room each agent is bound to. An agent is in
// at most one room at a time.
package session

import (
	"sync"

	"agent-arena/internal/apperr"
)

type Registry struct {
	mu      sync.Mutex
	byAgent map[string]string
	byRoom  map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byAgent: map[string]string{},
		byRoom:  map[string]map[string]struct{}{},
	}
}

func (r *Registry) Bind(agentID, roomID string) error {
	return r.BindAll([]string{agentID}, roomID)
}

// BindAll binds every agent or none of them.
func (r *Registry) BindAll(agentIDs []string, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(agentIDs))
	for _, id := range agentIDs {
		if _, ok := r.byAgent[id]; ok {
			return apperr.ErrAlreadyInRoom
		}
		if _, dup := seen[id]; dup {
			return apperr.ErrAlreadyInRoom
		}
		seen[id] = struct{}{}
	}
	members := r.byRoom[roomID]
	if members == nil {
		members = map[string]struct{}{}
		r.byRoom[roomID] = members
	}
	for _, id := range agentIDs {
		r.byAgent[id] = roomID
		members[id] = struct{}{}
	}
	return nil
}

func (r *Registry) Unbind(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbindLocked(agentID)
}

func (r *Registry) unbindLocked(agentID string) {
	roomID, ok := r.byAgent[agentID]
	if !ok {
		return
	}
	delete(r.byAgent, agentID)
	if members := r.byRoom[roomID]; members != nil {
		delete(members, agentID)
		if len(members) == 0 {
			delete(r.byRoom, roomID)
		}
	}
}

// UnbindRoom releases the given agents, skipping any already bound elsewhere.
func (r *Registry) UnbindRoom(roomID string, agentIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range agentIDs {
		if r.byAgent[id] == roomID {
			r.unbindLocked(id)
		}
	}
}

func (r *Registry) Lookup(agentID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.byAgent[agentID]
	return roomID, ok
}

func (r *Registry) Members(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.byRoom[roomID]))
	for id := range r.byRoom[roomID] {
		out = append(out, id)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byAgent)
}
