package numbering

import (
	"context"
	"testing"
)

func TestFormat(t *testing.T) {
	if got := Format(1); got != "TRX-000001" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := Format(1234567); got != "TRX-1234567" {
		t.Fatalf("expected wide sequences to keep all digits, got %q", got)
	}
}

func TestMemoryIssuerIsSequential(t *testing.T) {
	issuer := NewMemoryIssuer()
	ctx := context.Background()

	first, err := issuer.Next(ctx)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	second, err := issuer.Next(ctx)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}

	if first != Format(1) || second != Format(2) {
		t.Fatalf("expected TRX-000001 then TRX-000002, got %s then %s", first, second)
	}
}
