package relay

import (
	"sync"
	"testing"
)

func TestRegistryBindGetUnbind(t *testing.T) {
	r := NewRegistry()
	s := NewCallSession("CA1", "MZ1", nil, 0)

	r.Bind(s)
	got, ok := r.Get("CA1")
	if !ok || got != s {
		t.Fatal("bound session not retrievable")
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}

	r.Unbind("CA1")
	if _, ok := r.Get("CA1"); ok {
		t.Fatal("session still present after unbind")
	}
	if r.Len() != 0 {
		t.Fatalf("len = %d, want 0", r.Len())
	}
}

func TestRegistryConcurrentChurn(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := CallID(string(rune('A' + i%26)))
			s := NewCallSession(id, "S", nil, 0)
			r.Bind(s)
			r.Get(id)
			r.Unbind(id)
		}(i)
	}
	wg.Wait()
	if r.Len() != 0 {
		t.Fatalf("leaked %d sessions after churn", r.Len())
	}
}

// Two concurrent calls with interleaved media must never cross-contaminate
// buffers, and releasing one must not touch the other's entry.
func TestSessionIsolation(t *testing.T) {
	r := NewRegistry()
	upA := newFakeLive(true)
	upB := newFakeLive(true)
	a := NewCallSession("CA-A", "S-A", upA, 480)
	b := NewCallSession("CA-B", "S-B", upB, 480)
	r.Bind(a)
	r.Bind(b)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			a.AppendMedia(frame(0xAA, 100))
		}
		a.Flush()
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			b.AppendMedia(frame(0xBB, 100))
		}
		b.Flush()
	}()
	wg.Wait()

	for _, by := range upA.sentBytes(t) {
		if by != 0xAA {
			t.Fatal("call A forwarded bytes from another call")
		}
	}
	for _, by := range upB.sentBytes(t) {
		if by != 0xBB {
			t.Fatal("call B forwarded bytes from another call")
		}
	}
	if len(upA.sentBytes(t)) != 1000 || len(upB.sentBytes(t)) != 1000 {
		t.Fatal("byte counts wrong after interleaved media")
	}

	r.Unbind("CA-A")
	if _, ok := r.Get("CA-B"); !ok {
		t.Fatal("releasing call A removed call B")
	}
}
