package message

import (
	"context"
	"fmt"
	"testing"
)

func TestMemoryStoreCreateOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.Create(ctx, "a", "b", fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	hist, err := s.History(ctx, "a", "b")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(hist))
	}
	for i, m := range hist {
		if m.Content != fmt.Sprintf("msg-%d", i) {
			t.Errorf("message %d out of order: %q", i, m.Content)
		}
		if m.Read {
			t.Errorf("message %d created read", i)
		}
		if m.CreatedAt.IsZero() {
			t.Errorf("message %d has zero timestamp", i)
		}
	}
}

func TestMemoryStoreHistoryBothDirections(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Create(ctx, "a", "b", "from a")
	s.Create(ctx, "b", "a", "from b")
	s.Create(ctx, "a", "c", "other conversation")

	hist, err := s.History(ctx, "a", "b")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(hist))
	}
	if hist[0].Content != "from a" || hist[1].Content != "from b" {
		t.Errorf("unexpected history order: %q, %q", hist[0].Content, hist[1].Content)
	}

	// Same conversation regardless of argument order.
	rev, _ := s.History(ctx, "b", "a")
	if len(rev) != 2 {
		t.Fatalf("expected 2 messages with reversed arguments, got %d", len(rev))
	}
}

func TestMemoryStoreMarkAllRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Create(ctx, "a", "b", "one")
	s.Create(ctx, "a", "b", "two")
	s.Create(ctx, "a", "b", "three")
	s.Create(ctx, "b", "a", "reply")

	n, err := s.MarkAllRead(ctx, "a", "b")
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 flipped, got %d", n)
	}

	// Only the a->b direction was flipped.
	if c, _ := s.UnreadCount(ctx, "a", "b"); c != 0 {
		t.Errorf("expected 0 unread a->b, got %d", c)
	}
	if c, _ := s.UnreadCount(ctx, "b", "a"); c != 1 {
		t.Errorf("expected 1 unread b->a, got %d", c)
	}

	// Idempotent: nothing left to flip.
	n, err = s.MarkAllRead(ctx, "a", "b")
	if err != nil {
		t.Fatalf("second mark all read: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 flipped on repeat, got %d", n)
	}
}

func TestMemoryStoreUnreadCount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if c, _ := s.UnreadCount(ctx, "a", "b"); c != 0 {
		t.Fatalf("expected 0 unread in empty store, got %d", c)
	}

	s.Create(ctx, "a", "b", "one")
	s.Create(ctx, "a", "b", "two")
	if c, _ := s.UnreadCount(ctx, "a", "b"); c != 2 {
		t.Fatalf("expected 2 unread, got %d", c)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, _ := s.Create(ctx, "a", "b", "hello")
	created.Content = "mutated"

	hist, _ := s.History(ctx, "a", "b")
	if hist[0].Content != "hello" {
		t.Fatal("mutating the returned message must not affect the store")
	}

	hist[0].Read = true
	if c, _ := s.UnreadCount(ctx, "a", "b"); c != 1 {
		t.Fatal("mutating a history result must not affect the store")
	}
}
