package user

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryDirectoryCreate(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	u, err := d.Create(ctx, "alice@example.com", "hash")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected non-empty user ID")
	}
	if u.Online {
		t.Fatal("new user must start offline")
	}
	if u.CreatedAt.IsZero() {
		t.Fatal("expected non-zero created_at")
	}
}

func TestMemoryDirectoryEmailTaken(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	if _, err := d.Create(ctx, "alice@example.com", "hash"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := d.Create(ctx, "ALICE@example.com", "hash"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestMemoryDirectoryLookups(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	u, _ := d.Create(ctx, "alice@example.com", "hash")

	byEmail, err := d.ByEmail(ctx, "Alice@Example.com")
	if err != nil {
		t.Fatalf("by email: %v", err)
	}
	if byEmail.ID != u.ID {
		t.Errorf("expected ID %q, got %q", u.ID, byEmail.ID)
	}

	byID, err := d.ByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if byID.Email != "alice@example.com" {
		t.Errorf("unexpected email %q", byID.Email)
	}

	if _, err := d.ByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := d.ByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryDirectorySetOnline(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	u, _ := d.Create(ctx, "alice@example.com", "hash")

	if err := d.SetOnline(ctx, u.ID, true); err != nil {
		t.Fatalf("set online: %v", err)
	}
	got, _ := d.ByID(ctx, u.ID)
	if !got.Online {
		t.Fatal("expected online")
	}

	if err := d.SetOnline(ctx, u.ID, false); err != nil {
		t.Fatalf("set offline: %v", err)
	}
	got, _ = d.ByID(ctx, u.ID)
	if got.Online {
		t.Fatal("expected offline")
	}

	if err := d.SetOnline(ctx, "nope", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryDirectoryListOthers(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()

	alice, _ := d.Create(ctx, "alice@example.com", "hash")
	d.Create(ctx, "carol@example.com", "hash")
	d.Create(ctx, "bob@example.com", "hash")

	others, err := d.ListOthers(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list others: %v", err)
	}
	if len(others) != 2 {
		t.Fatalf("expected 2 users, got %d", len(others))
	}
	if others[0].Email != "bob@example.com" || others[1].Email != "carol@example.com" {
		t.Errorf("expected sorted emails, got %q, %q", others[0].Email, others[1].Email)
	}
	for _, u := range others {
		if u.ID == alice.ID {
			t.Error("ListOthers must exclude the caller")
		}
	}
}
