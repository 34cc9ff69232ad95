// Package lock provides per-agent mutual exclusion for balance mutations.
// It sits in front of the Postgres row locks so contending requests queue in
// process instead of holding pooled connections while they wait.
package lock

import (
	"context"
	"sort"
	"sync"
)

type agentMutex struct {
	ch   chan struct{}
	refs int
}

type AgentLock struct {
	mu    sync.Mutex
	locks map[string]*agentMutex
}

func NewAgentLock() *AgentLock {
	return &AgentLock{locks: map[string]*agentMutex{}}
}

func (l *AgentLock) ref(agentID string) *agentMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.locks[agentID]
	if m == nil {
		m = &agentMutex{ch: make(chan struct{}, 1)}
		l.locks[agentID] = m
	}
	m.refs++
	return m
}

func (l *AgentLock) unref(agentID string, m *agentMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, agentID)
	}
}

// Lock blocks until the agent's lock is held or ctx is done.
func (l *AgentLock) Lock(ctx context.Context, agentID string) error {
	m := l.ref(agentID)
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(agentID, m)
		return ctx.Err()
	}
}

func (l *AgentLock) TryLock(agentID string) bool {
	m := l.ref(agentID)
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		l.unref(agentID, m)
		return false
	}
}

func (l *AgentLock) Unlock(agentID string) {
	l.mu.Lock()
	m := l.locks[agentID]
	l.mu.Unlock()
	if m == nil {
		return
	}
	<-m.ch
	l.unref(agentID, m)
}

// LockAll acquires every distinct id in ascending order so that two callers
// with overlapping sets cannot deadlock. The returned func releases them all.
func (l *AgentLock) LockAll(ctx context.Context, agentIDs []string) (func(), error) {
	ids := sortedUnique(agentIDs)
	held := make([]string, 0, len(ids))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.Unlock(held[i])
		}
	}
	for _, id := range ids {
		if err := l.Lock(ctx, id); err != nil {
			release()
			return nil, err
		}
		held = append(held, id)
	}
	return release, nil
}

// WithLock runs fn while holding the agent's lock.
func (l *AgentLock) WithLock(ctx context.Context, agentID string, fn func() error) error {
	if err := l.Lock(ctx, agentID); err != nil {
		return err
	}
	defer l.Unlock(agentID)
	return fn()
}

func (l *AgentLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func sortedUnique(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
