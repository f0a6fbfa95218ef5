package presence

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistry_MultiConnection(t *testing.T) {
	r := NewRegistry()

	online := r.Add("u1", "c1")
	if len(online) != 1 || online[0] != "u1" {
		t.Fatalf("expected [u1] online, got %v", online)
	}

	// Second device: still one online user.
	online = r.Add("u1", "c2")
	if len(online) != 1 {
		t.Fatalf("expected 1 online user, got %v", online)
	}
	if got := r.ConnectionsFor("u1"); len(got) != 2 {
		t.Fatalf("expected 2 connections, got %v", got)
	}

	// Dropping one of two connections keeps the user online.
	online = r.Remove("u1", "c1")
	if len(online) != 1 {
		t.Fatalf("user should still be online, got %v", online)
	}

	// Dropping the last one removes the user.
	online = r.Remove("u1", "c2")
	if len(online) != 0 {
		t.Fatalf("user should be offline, got %v", online)
	}
	if got := r.ConnectionsFor("u1"); len(got) != 0 {
		t.Fatalf("expected no connections, got %v", got)
	}
}

func TestRegistry_RemoveAbsent(t *testing.T) {
	r := NewRegistry()

	// Remove of an already-removed entry is a safe no-op.
	if online := r.Remove("ghost", "c1"); len(online) != 0 {
		t.Fatalf("expected empty online list, got %v", online)
	}

	r.Add("u1", "c1")
	r.Remove("u1", "c1")
	if online := r.Remove("u1", "c1"); len(online) != 0 {
		t.Fatalf("expected empty online list, got %v", online)
	}
}

func TestRegistry_OnlineSorted(t *testing.T) {
	r := NewRegistry()
	r.Add("b", "c1")
	r.Add("a", "c2")
	r.Add("c", "c3")

	online := r.OnlineUserIDs()
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if online[i] != id {
			t.Fatalf("expected %v, got %v", want, online)
		}
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		connID := fmt.Sprintf("c%d", i)
		wg.Go(func() {
			r.Add("u1", connID)
			r.OnlineUserIDs()
			r.Remove("u1", connID)
		})
	}
	wg.Wait()

	// A user must never be observed online with zero live connections.
	if online := r.OnlineUserIDs(); len(online) != 0 {
		t.Fatalf("expected nobody online, got %v", online)
	}
}
