package peer

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// stubTransport is a Transport that records nothing.
type stubTransport struct {
	mu     sync.Mutex
	closed bool
}

func (s *stubTransport) Send([]byte) error { return nil }

func (s *stubTransport) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *stubTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	id := r.Register(&stubTransport{}, "10.0.0.1:5000")
	if id == "" {
		t.Fatal("Register returned empty ID")
	}

	p, ok := r.Get(id)
	if !ok {
		t.Fatal("peer not found")
	}
	if p.Role != RoleUnknown {
		t.Errorf("Role = %q, want %q", p.Role, RoleUnknown)
	}
	if p.Authenticated {
		t.Error("new peer should not be authenticated")
	}
	if p.RemoteAddr != "10.0.0.1:5000" {
		t.Errorf("RemoteAddr = %q, want %q", p.RemoteAddr, "10.0.0.1:5000")
	}
	if p.ConnectedAt.IsZero() {
		t.Error("ConnectedAt should be set")
	}
}

func TestRegistry_UniqueIDs(t *testing.T) {
	r := NewRegistry()

	seen := make(map[ID]bool)
	for i := 0; i < 100; i++ {
		id := r.Register(&stubTransport{}, "")
		if seen[id] {
			t.Fatalf("duplicate ID %q", id)
		}
		seen[id] = true
	}
	if r.Len() != 100 {
		t.Errorf("Len() = %d, want 100", r.Len())
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Get("missing"); ok {
		t.Error("expected peer not found")
	}
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	id := r.Register(&stubTransport{}, "")
	r.Register(&stubTransport{}, "")

	if _, ok := r.Unregister(id); !ok {
		t.Fatal("first Unregister should remove the peer")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	if _, ok := r.Unregister(id); ok {
		t.Error("second Unregister should report nothing removed")
	}
	if r.Len() != 1 {
		t.Errorf("Len() after second Unregister = %d, want 1", r.Len())
	}
}

func TestRegistry_Authenticate(t *testing.T) {
	r := NewRegistry()
	id := r.Register(&stubTransport{}, "")

	p, err := r.Authenticate(id, RoleSource)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if p.Role != RoleSource || !p.Authenticated {
		t.Errorf("peer = %+v, want authenticated source", p)
	}

	// Same role again is fine.
	if _, err := r.Authenticate(id, RoleSource); err != nil {
		t.Errorf("re-authenticate with same role: %v", err)
	}

	// Role never changes.
	if _, err := r.Authenticate(id, RoleController); !errors.Is(err, ErrRoleAlreadySet) {
		t.Errorf("error = %v, want ErrRoleAlreadySet", err)
	}
	got, _ := r.Get(id)
	if got.Role != RoleSource {
		t.Errorf("Role = %q, want %q", got.Role, RoleSource)
	}
}

func TestRegistry_AuthenticateErrors(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Authenticate("missing", RoleController); !errors.Is(err, ErrPeerNotFound) {
		t.Errorf("error = %v, want ErrPeerNotFound", err)
	}

	id := r.Register(&stubTransport{}, "")
	if _, err := r.Authenticate(id, RoleUnknown); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("error = %v, want ErrInvalidRole", err)
	}
}

func TestRegistry_Select(t *testing.T) {
	r := NewRegistry()

	c1 := r.Register(&stubTransport{}, "")
	c2 := r.Register(&stubTransport{}, "")
	s1 := r.Register(&stubTransport{}, "")
	r.Register(&stubTransport{}, "") // stays unknown

	r.Authenticate(c1, RoleController)
	r.Authenticate(c2, RoleController)
	r.Authenticate(s1, RoleSource)

	if got := len(r.Select(Authenticated(RoleController))); got != 2 {
		t.Errorf("controllers = %d, want 2", got)
	}
	if got := len(r.Select(Authenticated(RoleSource))); got != 1 {
		t.Errorf("sources = %d, want 1", got)
	}
	if got := len(r.Select(All)); got != 4 {
		t.Errorf("all = %d, want 4", got)
	}

	var visited int
	r.ForEach(Authenticated(RoleController), func(p Peer) {
		if p.Role != RoleController {
			t.Errorf("ForEach visited role %q", p.Role)
		}
		visited++
	})
	if visited != 2 {
		t.Errorf("visited = %d, want 2", visited)
	}
}

func TestRegistry_IDsOrderedByConnectTime(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first := r.Register(&stubTransport{}, "")
	second := r.Register(&stubTransport{}, "")
	third := r.Register(&stubTransport{}, "")

	ids := r.IDs()
	want := []ID{first, second, third}
	if len(ids) != len(want) {
		t.Fatalf("len(IDs) = %d, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("IDs[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestRegistry_ReconcileSource(t *testing.T) {
	r := NewRegistry()

	if connected, changed := r.ReconcileSource(); connected || changed {
		t.Errorf("empty registry: connected=%v changed=%v, want false false", connected, changed)
	}

	// An unauthenticated peer never counts.
	pending := r.Register(&stubTransport{}, "")
	if connected, _ := r.ReconcileSource(); connected {
		t.Error("unauthenticated peer should not count as source")
	}

	s1 := r.Register(&stubTransport{}, "")
	s2 := r.Register(&stubTransport{}, "")
	r.Authenticate(s1, RoleSource)
	r.Authenticate(s2, RoleSource)

	connected, changed := r.ReconcileSource()
	if !connected || !changed {
		t.Errorf("after source auth: connected=%v changed=%v, want true true", connected, changed)
	}
	if !r.SourceConnected() {
		t.Error("SourceConnected() = false, want true")
	}

	// Second reconcile with no change.
	if _, changed := r.ReconcileSource(); changed {
		t.Error("reconcile without mutation should not report a change")
	}

	// Removing one of two sources keeps the flag up.
	r.Unregister(s1)
	if connected, changed := r.ReconcileSource(); !connected || changed {
		t.Errorf("one source left: connected=%v changed=%v, want true false", connected, changed)
	}

	r.Unregister(s2)
	if connected, changed := r.ReconcileSource(); connected || !changed {
		t.Errorf("no sources left: connected=%v changed=%v, want false true", connected, changed)
	}

	r.Unregister(pending)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := r.Register(&stubTransport{}, "")
				if n%2 == 0 {
					r.Authenticate(id, RoleSource)
				}
				r.ForEach(All, func(p Peer) { _ = p.Transport.IsOpen() })
				r.ReconcileSource()
				r.Unregister(id)
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	if connected, _ := r.ReconcileSource(); connected {
		t.Error("flag should settle to false once all peers are gone")
	}
}

func TestRoleFromClientType(t *testing.T) {
	tests := []struct {
		clientType string
		want       Role
		ok         bool
	}{
		{"website", RoleController, true},
		{"termux", RoleSource, true},
		{"admin", RoleUnknown, false},
		{"", RoleUnknown, false},
	}

	for _, tt := range tests {
		got, ok := RoleFromClientType(tt.clientType)
		if got != tt.want || ok != tt.ok {
			t.Errorf("RoleFromClientType(%q) = %q, %v, want %q, %v", tt.clientType, got, ok, tt.want, tt.ok)
		}
		if ok && got.ClientType() != tt.clientType {
			t.Errorf("%q.ClientType() = %q, want %q", got, got.ClientType(), tt.clientType)
		}
	}
}
