package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunExecutesAllItems(t *testing.T) {
	p := New(2)
	var count int64
	errs := p.Run(context.Background(), 10, func(ctx context.Context, i int) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if count != 10 {
		t.Fatalf("expected all 10 items to run, got %d", count)
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	p := New(2)
	var current, max int64
	errs := p.Run(context.Background(), 20, func(ctx context.Context, i int) error {
		n := atomic.AddInt64(&current, 1)
		for {
			m := atomic.LoadInt64(&max)
			if n <= m || atomic.CompareAndSwapInt64(&max, m, n) {
				break
			}
		}
		atomic.AddInt64(&current, -1)
		return nil
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if max > 2 {
		t.Fatalf("expected at most 2 concurrent workers, observed %d", max)
	}
}

func TestRunCollectsAllErrors(t *testing.T) {
	p := New(4)
	errs := p.Run(context.Background(), 5, func(ctx context.Context, i int) error {
		if i%2 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d", len(errs))
	}
}

func TestRunZeroItemsReturnsNil(t *testing.T) {
	p := New(4)
	if errs := p.Run(context.Background(), 0, func(ctx context.Context, i int) error { return nil }); errs != nil {
		t.Fatalf("expected nil for zero items, got %v", errs)
	}
}
