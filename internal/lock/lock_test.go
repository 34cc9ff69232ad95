package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTryLockExcludes(t *testing.T) {
	l := NewAgentLock()
	if !l.TryLock("a") {
		t.Fatal("first TryLock should succeed")
	}
	if l.TryLock("a") {
		t.Fatal("second TryLock on held lock should fail")
	}
	if !l.TryLock("b") {
		t.Fatal("locks are per agent")
	}
	l.Unlock("a")
	l.Unlock("b")
	if l.size() != 0 {
		t.Fatalf("released locks should be dropped, %d left", l.size())
	}
}

func TestLockHonoursContext(t *testing.T) {
	l := NewAgentLock()
	if err := l.Lock(context.Background(), "a"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Lock(ctx, "a")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	l.Unlock("a")
	if l.size() != 0 {
		t.Fatalf("timed out waiter must not leak a reference, %d left", l.size())
	}
}

func TestUnlockUnknownIsNoop(t *testing.T) {
	l := NewAgentLock()
	l.Unlock("ghost")
}
