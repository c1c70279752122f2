package retrieval

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/easeaico/echominds/internal/types"
)

func newTestRetriever(t *testing.T) *ChromemRetriever {
	t.Helper()
	r, err := NewChromemRetriever("", NewHashEmbedder(64))
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}
	return r
}

func TestHashEmbedderIdenticalTextScoresOne(t *testing.T) {
	e := NewHashEmbedder(128)
	a, _ := e.EmbedQuery(context.Background(), "I love painting the night sky!")
	b, _ := e.EmbedDocument(context.Background(), "i LOVE painting the night sky")
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if math.Abs(dot-1) > 1e-5 {
		t.Fatalf("expected similarity 1, got %f", dot)
	}

	empty, _ := e.EmbedQuery(context.Background(), "")
	var norm float64
	for _, v := range empty {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("empty text must still yield a unit vector, got norm %f", norm)
	}
}

func TestChromemRetrieveRelevantFiltersAndRanks(t *testing.T) {
	r := newTestRetriever(t)
	ctx := context.Background()
	pair := types.NewPair("luna", "sam")

	for _, text := range []string{"my cat is called Mochi", "tomorrow looks rainy", "Mochi the cat sleeps all day"} {
		if _, err := r.Store(ctx, pair, types.RoleUser, text, map[string]string{"conversation_id": "c1"}); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	items, err := r.RetrieveRelevant(ctx, pair, "my cat is called Mochi", 5, 0.3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(items) == 0 || items[0].Content != "my cat is called Mochi" {
		t.Fatalf("expected exact match first, got %+v", items)
	}
	if math.Abs(items[0].Relevance-1) > 1e-4 {
		t.Fatalf("expected relevance 1, got %f", items[0].Relevance)
	}
	for i, it := range items {
		if it.Relevance < 0.3 {
			t.Fatalf("item below threshold returned: %+v", it)
		}
		if i > 0 && it.Relevance > items[i-1].Relevance {
			t.Fatalf("items not sorted by relevance")
		}
		if it.Content == "tomorrow looks rainy" {
			t.Fatalf("unrelated turn returned")
		}
		if it.Metadata["conversation_id"] != "c1" || it.Role != types.RoleUser {
			t.Fatalf("metadata not preserved: %+v", it)
		}
	}

	limited, err := r.RetrieveRelevant(ctx, pair, "Mochi cat", 1, 0)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected one result, got %d (%v)", len(limited), err)
	}
}

func TestChromemEmptyAndIsolatedPairs(t *testing.T) {
	r := newTestRetriever(t)
	ctx := context.Background()

	items, err := r.RetrieveRelevant(ctx, types.NewPair("luna", "nobody"), "hello", 5, 0)
	if err != nil || len(items) != 0 {
		t.Fatalf("empty pair should return nothing, got %v, %v", items, err)
	}

	if _, err := r.Store(ctx, types.NewPair("luna", "sam"), types.RoleUser, "secret plans", nil); err != nil {
		t.Fatalf("store: %v", err)
	}
	items, err = r.RetrieveRelevant(ctx, types.NewPair("luna", "alex"), "secret plans", 5, 0)
	if err != nil || len(items) != 0 {
		t.Fatalf("pairs must not share turns, got %v", items)
	}
}

func TestChromemRecentOrderAndClear(t *testing.T) {
	r := newTestRetriever(t)
	ctx := context.Background()
	pair := types.NewPair("luna", "")

	for i := 1; i <= 8; i++ {
		role := types.RoleUser
		if i%2 == 0 {
			role = types.RoleAssistant
		}
		if _, err := r.Store(ctx, pair, role, fmt.Sprintf("turn %d", i), nil); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	recent, err := r.RetrieveRecent(ctx, pair, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	want := []types.HistoryMessage{
		{Role: types.RoleAssistant, Content: "turn 6"},
		{Role: types.RoleUser, Content: "turn 7"},
		{Role: types.RoleAssistant, Content: "turn 8"},
	}
	if len(recent) != len(want) {
		t.Fatalf("expected %d messages, got %+v", len(want), recent)
	}
	for i := range want {
		if recent[i] != want[i] {
			t.Fatalf("message %d: got %+v want %+v", i, recent[i], want[i])
		}
	}

	if err := r.Clear(ctx, pair); err != nil {
		t.Fatalf("clear: %v", err)
	}
	recent, err = r.RetrieveRecent(ctx, pair, 3)
	if err != nil || len(recent) != 0 {
		t.Fatalf("expected no history after clear, got %v, %v", recent, err)
	}
	if err := r.Clear(ctx, pair); err != nil {
		t.Fatalf("clearing twice should be fine: %v", err)
	}
}

func TestChromemUnderscorePairsDoNotShareCollections(t *testing.T) {
	r := newTestRetriever(t)
	ctx := context.Background()
	owner := types.NewPair("a_b", "c")
	other := types.NewPair("a", "b_c")

	if _, err := r.Store(ctx, owner, types.RoleUser, "the vault code is 1234", nil); err != nil {
		t.Fatalf("store: %v", err)
	}
	items, err := r.RetrieveRelevant(ctx, other, "the vault code is 1234", 5, 0)
	if err != nil || len(items) != 0 {
		t.Fatalf("pair (a, b_c) retrieved turns of (a_b, c): %v, %v", items, err)
	}
	if err := r.Clear(ctx, other); err != nil {
		t.Fatalf("clear: %v", err)
	}
	recent, err := r.RetrieveRecent(ctx, owner, 5)
	if err != nil || len(recent) != 1 {
		t.Fatalf("clearing another pair wiped the owner's turns: %v, %v", recent, err)
	}
}
