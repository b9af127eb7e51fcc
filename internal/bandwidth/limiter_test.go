package bandwidth

import (
	"context"
	"testing"
	"time"
)

func TestNewLimiter(t *testing.T) {
	tests := []struct {
		name     string
		limit    string
		wantNil  bool
		wantRate float64
		wantErr  bool
	}{
		{"empty disables", "", true, 0, false},
		{"decimal units", "2MB", false, 2_000_000, false},
		{"binary units", "1MiB", false, 1 << 20, false},
		{"garbage", "fast", true, 0, true},
		{"zero", "0", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLimiter(tt.limit)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLimiter(%q) error = %v, wantErr %v", tt.limit, err, tt.wantErr)
			}
			if (l == nil) != tt.wantNil {
				t.Fatalf("NewLimiter(%q) nil = %v, want %v", tt.limit, l == nil, tt.wantNil)
			}
			if l != nil && float64(l.rateLimiter.Limit()) != tt.wantRate {
				t.Errorf("rate = %v, want %v", l.rateLimiter.Limit(), tt.wantRate)
			}
			if l != nil && l.Limit() != tt.limit {
				t.Errorf("Limit() = %q, want %q", l.Limit(), tt.limit)
			}
		})
	}
}

func TestNilLimiterIsNoop(t *testing.T) {
	var l *Limiter
	if err := l.WaitN(context.Background(), 1<<30); err != nil {
		t.Errorf("nil WaitN() unexpected error: %v", err)
	}
	if l.Limit() != "" {
		t.Errorf("nil Limit() = %q, want empty", l.Limit())
	}
}

func TestWaitNLargerThanBurst(t *testing.T) {
	l, err := NewLimiter("1MiB")
	if err != nil {
		t.Fatalf("NewLimiter() unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// First burst is free; the remainder should only need a short wait
	if err := l.WaitN(ctx, (1<<20)+1024); err != nil {
		t.Errorf("WaitN() unexpected error: %v", err)
	}
}

func TestWaitNCancelled(t *testing.T) {
	l, err := NewLimiter("1KiB")
	if err != nil {
		t.Fatalf("NewLimiter() unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.WaitN(ctx, 10_000); err == nil {
		t.Error("WaitN() with cancelled context should fail")
	}
}
