package batch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRun_ResultsAreIndexAligned(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	got, ran := Run(context.Background(), items, Options{Size: 2}, func(_ context.Context, n int) int {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10
	})
	if ran != len(items) {
		t.Fatalf("ran=%d, want %d", ran, len(items))
	}
	if diff := cmp.Diff([]int{50, 10, 40, 20, 30}, got); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var inflight, peak atomic.Int32
	items := make([]int, 9)
	Run(context.Background(), items, Options{Size: 3}, func(context.Context, int) struct{} {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return struct{}{}
	})
	if peak.Load() > 3 {
		t.Fatalf("peak concurrency=%d, want <= 3", peak.Load())
	}
}

func TestRun_CancelStopsNewBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	items := []string{"a", "b", "c", "d"}
	got, ran := Run(ctx, items, Options{Size: 2, Pause: time.Hour}, func(context.Context, string) string {
		cancel()
		return "done"
	})
	if ran != 2 {
		t.Fatalf("ran=%d, want 2", ran)
	}
	if got[2] != "" || got[3] != "" {
		t.Fatalf("unstarted slots should be empty: %v", got)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	got, ran := Run(context.Background(), []int(nil), DefaultOptions(), func(context.Context, int) int { return 1 })
	if len(got) != 0 || ran != 0 {
		t.Fatalf("got=%v ran=%d", got, ran)
	}
}
