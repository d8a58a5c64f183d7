package relay

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mwhitfield/courier/internal/message"
)

// fakeSessions is a fixed user -> connections mapping.
type fakeSessions map[string][]string

func (f fakeSessions) ConnectionsFor(userID string) []string {
	return append([]string(nil), f[userID]...)
}

// delivery records one Deliver/DeliverAll call.
type delivery struct {
	conns   []string
	event   string
	payload any
	all     bool
}

// fakeDeliverer records every delivery.
type fakeDeliverer struct {
	deliveries []delivery
}

func (f *fakeDeliverer) Deliver(connIDs []string, event string, payload any) {
	f.deliveries = append(f.deliveries, delivery{conns: connIDs, event: event, payload: payload})
}

func (f *fakeDeliverer) DeliverAll(event string, payload any) {
	f.deliveries = append(f.deliveries, delivery{event: event, payload: payload, all: true})
}

// failingStore rejects every Create.
type failingStore struct {
	message.Store
}

func (failingStore) Create(ctx context.Context, senderID, receiverID, content string) (*message.Message, error) {
	return nil, errors.New("storage down")
}

func TestRouteFansOutToBothParties(t *testing.T) {
	store := message.NewMemoryStore()
	sessions := fakeSessions{"u1": {"c1"}, "u2": {"c2", "c3"}}
	out := &fakeDeliverer{}
	r := NewRouter(store, sessions, out, 2000, zerolog.Nop())

	msg, err := r.Route(context.Background(), "u1", "u2", "hi")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if msg.Content != "hi" || msg.Read {
		t.Fatalf("unexpected message %+v", msg)
	}

	if len(out.deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(out.deliveries))
	}
	d := out.deliveries[0]
	if d.event != EventReceiveMessage {
		t.Errorf("expected %s, got %s", EventReceiveMessage, d.event)
	}
	got := append([]string(nil), d.conns...)
	sort.Strings(got)
	want := []string{"c1", "c2", "c3"}
	if len(got) != len(want) {
		t.Fatalf("expected connections %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected connections %v, got %v", want, got)
		}
	}
}

func TestRouteOfflineReceiverStillPersists(t *testing.T) {
	store := message.NewMemoryStore()
	sessions := fakeSessions{}
	out := &fakeDeliverer{}
	r := NewRouter(store, sessions, out, 2000, zerolog.Nop())

	if _, err := r.Route(context.Background(), "u1", "u2", "hello"); err != nil {
		t.Fatalf("route: %v", err)
	}

	hist, _ := store.History(context.Background(), "u1", "u2")
	if len(hist) != 1 {
		t.Fatalf("expected message persisted, got %d", len(hist))
	}
	if len(out.deliveries) != 1 || len(out.deliveries[0].conns) != 0 {
		t.Fatalf("expected empty fan-out, got %+v", out.deliveries)
	}
}

func TestRouteValidation(t *testing.T) {
	store := message.NewMemoryStore()
	out := &fakeDeliverer{}
	r := NewRouter(store, fakeSessions{}, out, 10, zerolog.Nop())
	ctx := context.Background()

	if _, err := r.Route(ctx, "u1", "u2", "   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if _, err := r.Route(ctx, "u1", "u2", strings.Repeat("x", 11)); !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("expected ErrContentTooLong, got %v", err)
	}
	if !IsValidation(ErrEmptyContent) || !IsValidation(ErrContentTooLong) {
		t.Error("validation errors must be recognized by IsValidation")
	}
	if IsValidation(errors.New("other")) {
		t.Error("arbitrary errors must not be validation errors")
	}

	// Nothing persisted, nothing delivered.
	hist, _ := store.History(ctx, "u1", "u2")
	if len(hist) != 0 || len(out.deliveries) != 0 {
		t.Fatalf("rejected sends must not persist or deliver, got %d/%d", len(hist), len(out.deliveries))
	}
}

func TestRoutePersistenceFailureAbortsFanOut(t *testing.T) {
	out := &fakeDeliverer{}
	r := NewRouter(failingStore{}, fakeSessions{"u2": {"c2"}}, out, 2000, zerolog.Nop())

	_, err := r.Route(context.Background(), "u1", "u2", "hi")
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if IsValidation(err) {
		t.Error("persistence failure must not be a validation error")
	}
	if len(out.deliveries) != 0 {
		t.Fatalf("expected no fan-out after persistence failure, got %d", len(out.deliveries))
	}
}

func TestRouteOrderPreserved(t *testing.T) {
	store := message.NewMemoryStore()
	r := NewRouter(store, fakeSessions{}, &fakeDeliverer{}, 2000, zerolog.Nop())
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		if _, err := r.Route(ctx, "u1", "u2", content); err != nil {
			t.Fatalf("route %q: %v", content, err)
		}
	}

	hist, _ := store.History(ctx, "u1", "u2")
	if len(hist) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(hist))
	}
	for i, want := range []string{"first", "second", "third"} {
		if hist[i].Content != want {
			t.Errorf("position %d: expected %q, got %q", i, want, hist[i].Content)
		}
	}
}
