package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kalambet/devharvest/internal/engine"
	"github.com/kalambet/devharvest/internal/prompt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeEngine echoes prompts and fails those containing "fail".
type fakeEngine struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	hold     time.Duration
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Complete(ctx context.Context, p string) (string, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxSeen.Load()
		if n <= cur || f.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	if strings.Contains(p, "fail") {
		return "", errors.New("backend exploded")
	}
	return "reply to " + p, nil
}

func records(n int) []prompt.Record {
	out := make([]prompt.Record, n)
	for i := range out {
		out[i] = prompt.Record{
			ClassName:  "GlideRecord",
			MethodName: fmt.Sprintf("m%d", i),
			Prompt:     fmt.Sprintf("p%d", i),
		}
	}
	return out
}

// countingSleep records how many calls had been made at each wait.
func countingSleep(e *fakeEngine, at *[]int32) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*at = append(*at, e.calls.Load())
		return ctx.Err()
	}
}

func TestRun_BatchesAndWaits(t *testing.T) {
	eng := &fakeEngine{hold: 5 * time.Millisecond}
	r := NewRunner(eng, 5, 5*time.Second, nil)
	var waits []int32
	r.sleep = countingSleep(eng, &waits)

	var got []string
	for rec, res := range r.Run(context.Background(), records(12)) {
		require.NoError(t, res.Err)
		assert.Equal(t, "reply to "+rec.Prompt, res.Response)
		got = append(got, rec.MethodName)
	}

	assert.Equal(t, 3, r.Batches(12))
	assert.Equal(t, []int32{5, 10}, waits, "waits happen after batch 1 and 2 only")
	assert.Equal(t, int32(12), eng.calls.Load())
	assert.LessOrEqual(t, eng.maxSeen.Load(), int32(5))
	for i, name := range got {
		assert.Equal(t, fmt.Sprintf("m%d", i), name)
	}
}

func TestRun_ItemsInBatchRunConcurrently(t *testing.T) {
	const size = 5
	var arrived sync.WaitGroup
	arrived.Add(size)
	release := make(chan struct{})
	go func() {
		arrived.Wait()
		close(release)
	}()

	eng := &barrierEngine{arrived: &arrived, release: release}
	r := NewRunner(eng, size, 0, nil)

	done := make(chan int)
	go func() {
		n := 0
		for range r.Run(context.Background(), records(size)) {
			n++
		}
		done <- n
	}()

	select {
	case n := <-done:
		assert.Equal(t, size, n)
	case <-time.After(5 * time.Second):
		t.Fatal("batch items did not run concurrently")
	}
}

type barrierEngine struct {
	arrived *sync.WaitGroup
	release chan struct{}
}

func (b *barrierEngine) Name() string { return "barrier" }

func (b *barrierEngine) Complete(ctx context.Context, p string) (string, error) {
	b.arrived.Done()
	<-b.release
	return p, nil
}

func TestRun_FailureIsolated(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRunner(eng, 5, 0, nil)
	in := records(5)
	in[2].Prompt = "please fail"

	var out []Result
	var names []string
	for rec, res := range r.Run(context.Background(), in) {
		out = append(out, res)
		names = append(names, rec.MethodName)
	}

	require.Len(t, out, 5)
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4"}, names)
	for i, res := range out {
		assert.True(t, res.Processed)
		if i == 2 {
			assert.True(t, res.Failed())
			assert.ErrorContains(t, res.Err, "backend exploded")
			continue
		}
		assert.NoError(t, res.Err)
		assert.Equal(t, fmt.Sprintf("reply to p%d", i), res.Response)
	}
}

func TestRun_Disabled(t *testing.T) {
	r := NewRunner(nil, 5, time.Hour, nil)
	waited := false
	r.sleep = func(context.Context, time.Duration) error {
		waited = true
		return nil
	}

	in := records(7)
	var got []prompt.Record
	for rec, res := range r.Run(context.Background(), in) {
		assert.Equal(t, Result{}, res)
		got = append(got, rec)
	}
	assert.Equal(t, in, got)
	assert.False(t, waited)
}

func TestRun_EarlyBreak(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRunner(eng, 5, 0, nil)
	var waits []int32
	r.sleep = countingSleep(eng, &waits)

	n := 0
	for range r.Run(context.Background(), records(12)) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, int32(5), eng.calls.Load(), "only the first batch was dispatched")
	assert.Empty(t, waits)
}

func TestRun_CancelBetweenBatches(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRunner(eng, 2, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := 0
	for range r.Run(ctx, records(6)) {
		n++
		if n == 2 {
			cancel()
		}
	}
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(2), eng.calls.Load())
}

func TestRun_Restartable(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRunner(eng, 5, 0, nil)
	seq := r.Run(context.Background(), records(3))
	for range seq {
	}
	for range seq {
	}
	assert.Equal(t, int32(6), eng.calls.Load(), "a second pass re-sends every prompt")
}

func TestRun_Empty(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRunner(eng, 5, 0, nil)
	for range r.Run(context.Background(), nil) {
		t.Fatal("unexpected item")
	}
	assert.Zero(t, eng.calls.Load())
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}

type timeoutEngine struct{}

func (timeoutEngine) Name() string { return "slow" }

func (timeoutEngine) Complete(context.Context, string) (string, error) {
	return "", &engine.GatewayError{Backend: "slow", Message: "executing request", Err: context.DeadlineExceeded}
}

func TestRun_LogsTimeouts(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := NewRunner(timeoutEngine{}, 2, 0, logger)

	for _, res := range r.Run(context.Background(), records(1)) {
		require.True(t, res.Failed())
		assert.True(t, engine.IsTimeout(res.Err))
	}
	assert.Contains(t, buf.String(), "timeout=true")
}
