package internal

import (
	"testing"

	"github.com/google/uuid"
)

func TestSessionIDIsRandomUUID(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("new session id: %v", err)
	}
	parsed, err := uuid.Parse(sid)
	if err != nil {
		t.Fatalf("parse %q: %v", sid, err)
	}
	if parsed.Version() != 4 {
		t.Fatalf("expected version 4, got %d", parsed.Version())
	}

	other, err := NewSessionID()
	if err != nil {
		t.Fatalf("new session id: %v", err)
	}
	if other == sid {
		t.Fatal("session ids must not repeat")
	}
}

func TestStateTokensAreUnique(t *testing.T) {
	a, err := NewStateToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	b, err := NewStateToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if a == b || len(a) != 43 {
		t.Fatalf("unexpected tokens %q %q", a, b)
	}
}
