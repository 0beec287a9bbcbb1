package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewPaymentLink(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	link := NewPaymentLink("tenant-1", "order-1", 15*time.Minute, now)

	if link.Status != LinkActive {
		t.Errorf("Status = %s, want %s", link.Status, LinkActive)
	}
	if !link.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want %v", link.ExpiresAt, now.Add(15*time.Minute))
	}
	if len(link.Token) < 48 {
		t.Errorf("token too short to be unguessable: %d chars", len(link.Token))
	}

	other := NewPaymentLink("tenant-1", "order-1", 15*time.Minute, now)
	if other.Token == link.Token {
		t.Error("two links must not share a token")
	}
}

func TestPaymentLinkTimeRemaining(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	link := NewPaymentLink("tenant-1", "order-1", 10*time.Minute, now)

	if got := link.TimeRemaining(now.Add(4 * time.Minute)); got != 6*time.Minute {
		t.Errorf("TimeRemaining = %v, want 6m", got)
	}
	if got := link.TimeRemaining(now.Add(time.Hour)); got != 0 {
		t.Errorf("TimeRemaining after expiry = %v, want 0", got)
	}
}

func TestPaymentLinkTerminalGuard(t *testing.T) {
	now := time.Now().UTC()

	link := NewPaymentLink("tenant-1", "order-1", time.Minute, now)
	if err := link.MarkPaid(); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if !link.IsTerminal() {
		t.Error("paid link must be terminal")
	}
	if err := link.MarkCancelled(); !errors.Is(err, ErrLinkTerminal) {
		t.Errorf("MarkCancelled() after paid error = %v, want ErrLinkTerminal", err)
	}

	link = NewPaymentLink("tenant-1", "order-1", time.Minute, now)
	if err := link.MarkCancelled(); err != nil {
		t.Fatalf("MarkCancelled() error = %v", err)
	}
	if err := link.MarkPaid(); !errors.Is(err, ErrLinkTerminal) {
		t.Errorf("MarkPaid() after cancel error = %v, want ErrLinkTerminal", err)
	}
}
