package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestClaimUnknownName(t *testing.T) {
	r := New[int]("laptop", "desk")
	if err := r.Claim("tablet", 1); !errors.Is(err, ErrUnknownScreen) {
		t.Fatalf("expected ErrUnknownScreen, got %v", err)
	}
	if err := r.Claim("laptop", 1); err != nil {
		t.Fatal(err)
	}
}

func TestClaimBusy(t *testing.T) {
	r := New[int]()
	if err := r.Claim("laptop", 1); err != nil {
		t.Fatal(err)
	}
	if err := r.Claim("laptop", 2); !errors.Is(err, ErrScreenBusy) {
		t.Fatalf("expected ErrScreenBusy, got %v", err)
	}
	if v, ok := r.Lookup("laptop"); !ok || v != 1 {
		t.Fatalf("Lookup = %d, %v", v, ok)
	}
}

func TestReleaseOnlyByHolder(t *testing.T) {
	r := New[int]()
	r.Claim("laptop", 1)

	r.Release("laptop", 2)
	if r.Len() != 1 {
		t.Fatal("a non-holder must not release the name")
	}
	r.Release("laptop", 1)
	if r.Len() != 0 {
		t.Fatal("holder release should free the name")
	}
	if err := r.Claim("laptop", 2); err != nil {
		t.Fatalf("name should be claimable again: %v", err)
	}
}

func TestSnapshotSorted(t *testing.T) {
	r := New[string]()
	for _, n := range []string{"c", "a", "b"} {
		r.Claim(n, n+"-session")
	}
	snap := r.Snapshot()
	if len(snap) != 3 || snap[0].Name != "a" || snap[2].Name != "c" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap[1].Value != "b-session" || snap[1].Since.IsZero() {
		t.Fatalf("unexpected entry %+v", snap[1])
	}
}

func TestConcurrentClaims(t *testing.T) {
	r := New[int]()
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Claim("laptop", i) == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
			r.Claim(fmt.Sprintf("screen-%d", i), i)
		}()
	}
	wg.Wait()
	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
	if r.Len() != 33 {
		t.Fatalf("expected 33 names, got %d", r.Len())
	}
}
