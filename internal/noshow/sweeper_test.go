package noshow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeCommands struct {
	calls atomic.Int32
	n     int
	err   error
}

func (f *fakeCommands) SweepNoShows(ctx context.Context, asOf time.Time) (int, error) {
	f.calls.Add(1)
	return f.n, f.err
}

func TestSweeperTicks(t *testing.T) {
	cmds := &fakeCommands{n: 2}
	s := &Sweeper{Commands: cmds, Interval: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cmds.calls.Load() >= 2 },
		time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}

func TestSweeperSurvivesErrors(t *testing.T) {
	cmds := &fakeCommands{err: errors.New("db down")}
	s := &Sweeper{Commands: cmds, Interval: 10 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	// kept ticking despite the error on every sweep
	assert.GreaterOrEqual(t, cmds.calls.Load(), int32(2))
}
