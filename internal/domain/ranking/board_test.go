package ranking

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"
)

func TestBoard_BasicOperations(t *testing.T) {
	b := NewBoard()

	if n := b.Len(); n != 0 {
		t.Errorf("expected empty board, got %d", n)
	}
	if _, err := b.Rank("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	b.Award("u1", 10)
	b.Label("u1", "Ana", "ana@example.com")

	e, err := b.Rank("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Rank != 1 || e.Coins != 10 || e.Count != 1 || e.Name != "Ana" {
		t.Errorf("unexpected entry %+v", e)
	}

	b.Award("u1", 5)
	e, _ = b.Rank("u1")
	if e.Coins != 15 || e.Count != 2 {
		t.Errorf("expected 15 coins over 2 awards, got %+v", e)
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", b.Len())
	}
}

func TestBoard_Ordering(t *testing.T) {
	b := NewBoard()
	b.Award("u1", 10)
	b.Award("u2", 10)
	b.Award("u2", 0)
	b.Award("u3", 20)
	b.Award("u4", 10)
	b.Award("u5", 10)
	b.Label("u1", "bruno", "")
	b.Label("u4", "Alice", "")
	b.Label("u5", "carla", "")

	got := b.All()
	want := []string{"u3", "u2", "u4", "u1", "u5"}
	for i, id := range want {
		if got[i].UserID != id {
			t.Fatalf("position %d: expected %s, got %s (%+v)", i, id, got[i].UserID, got)
		}
	}

	ranks := []int{1, 2, 3, 3, 3}
	for i, r := range ranks {
		if got[i].Rank != r {
			t.Errorf("position %d: expected rank %d, got %d", i, r, got[i].Rank)
		}
	}

	e, _ := b.Rank("u5")
	if e.Rank != 3 {
		t.Errorf("expected tied rank 3, got %d", e.Rank)
	}
}

func TestBoard_TopN(t *testing.T) {
	b := NewBoard()
	if _, err := b.TopN(0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	for i := 0; i < 10; i++ {
		b.Award(fmt.Sprintf("u%d", i), i*10)
	}

	top, err := b.TopN(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(top))
	}
	if top[0].UserID != "u9" || top[2].UserID != "u7" {
		t.Errorf("unexpected top entries %+v", top)
	}

	all, _ := b.TopN(100)
	if len(all) != 10 {
		t.Errorf("expected all 10 entries, got %d", len(all))
	}
}

func TestBoard_LabelUnknownUser(t *testing.T) {
	b := NewBoard()
	b.Label("ghost", "Ghost", "g@example.com")
	if b.Len() != 0 {
		t.Errorf("labelling must not add entries, got %d", b.Len())
	}
}

func TestBoard_MatchesSortedOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := NewBoard()
	coins := map[string]int{}
	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("user-%03d", rng.Intn(300))
		amount := 1 + rng.Intn(50)
		b.Award(id, amount)
		coins[id] += amount
		counts[id]++
	}

	want := make([]Entry, 0, len(coins))
	for id, c := range coins {
		want = append(want, Entry{UserID: id, Name: id, Coins: c, Count: counts[id]})
	}
	sort.Slice(want, func(i, j int) bool { return less(&want[i], &want[j]) })

	got := b.All()
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].UserID != want[i].UserID || got[i].Coins != want[i].Coins {
			t.Fatalf("position %d: expected %+v, got %+v", i, want[i], got[i])
		}
		r, err := b.Rank(got[i].UserID)
		if err != nil || r.Rank != got[i].Rank {
			t.Fatalf("rank mismatch for %s: %d vs %d (%v)", got[i].UserID, r.Rank, got[i].Rank, err)
		}
	}
}

func TestBoard_ConcurrentAwards(t *testing.T) {
	b := NewBoard()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Award(fmt.Sprintf("u%d", i%10), 1)
				_, _ = b.TopN(3)
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, e := range b.All() {
		total += e.Coins
		if !strings.HasPrefix(e.UserID, "u") {
			t.Errorf("unexpected id %q", e.UserID)
		}
	}
	if total != 800 {
		t.Errorf("expected 800 coins, got %d", total)
	}
}
