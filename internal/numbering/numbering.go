package numbering

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Issuer hands out sequential transaction numbers. Issuance is a network
// round-trip in production, so callers must treat it as asynchronous and
// never block a cart mutation on it.
type Issuer interface {
	Next(ctx context.Context) (string, error)
}

// Format renders a sequence value as a display transaction number.
func Format(seq int64) string {
	return fmt.Sprintf("TRX-%06d", seq)
}

// MemoryIssuer is an in-process counter for dev mode and tests.
type MemoryIssuer struct {
	seq atomic.Int64
}

func NewMemoryIssuer() *MemoryIssuer {
	return &MemoryIssuer{}
}

func (m *MemoryIssuer) Next(_ context.Context) (string, error) {
	return Format(m.seq.Add(1)), nil
}
