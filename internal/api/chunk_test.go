package api

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

// TestInChunks_GathersAllResults tests that every item is processed and
// results come back in item order.
func TestInChunks_GathersAllResults(t *testing.T) {
	// Arrange
	items := []int{1, 2, 3, 4, 5, 6, 7}

	// Act
	results, err := InChunks(context.Background(), items, 3, 0, func(ctx context.Context, n int) []string {
		return []string{strconv.Itoa(n)}
	})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}

	for i, n := range items {
		if results[i] != strconv.Itoa(n) {
			t.Errorf("expected result %q at %d, got %q", strconv.Itoa(n), i, results[i])
		}
	}
}

// TestInChunks_BoundedConcurrency tests that no more than one chunk of
// items is in flight at a time.
func TestInChunks_BoundedConcurrency(t *testing.T) {
	// Arrange
	const chunkSize = 5
	items := make([]int, 23)

	var inFlight, peak int64
	var mu sync.Mutex

	// Act
	_, err := InChunks(context.Background(), items, chunkSize, 0, func(ctx context.Context, n int) []int {
		current := atomic.AddInt64(&inFlight, 1)
		mu.Lock()
		if current > peak {
			peak = current
		}
		mu.Unlock()
		atomic.AddInt64(&inFlight, -1)
		return nil
	})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if peak > chunkSize {
		t.Errorf("expected at most %d concurrent calls, observed %d", chunkSize, peak)
	}
}

// TestInChunks_Canceled tests that a canceled context stops processing
// before the next chunk.
func TestInChunks_Canceled(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	items := []int{1, 2, 3, 4}
	var calls int64

	// Act
	_, err := InChunks(ctx, items, 2, 0, func(ctx context.Context, n int) []int {
		atomic.AddInt64(&calls, 1)
		cancel()
		return nil
	})

	// Assert
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if got := atomic.LoadInt64(&calls); got > 2 {
		t.Errorf("expected at most one chunk processed, got %d calls", got)
	}
}

// TestInChunks_Empty tests handling of an empty item list.
func TestInChunks_Empty(t *testing.T) {
	// Act
	results, err := InChunks(context.Background(), nil, 5, 0, func(ctx context.Context, n int) []int {
		t.Error("fn should not be called for empty input")
		return nil
	})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
