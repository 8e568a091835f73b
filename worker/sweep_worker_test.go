package worker

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	n int
}

func (c *countingSweeper) Sweep() {
	c.n++
}

func TestSweepWorkerTicksUntilCancelled(t *testing.T) {
	s := &countingSweeper{}
	w := NewSweepWorker(10*time.Millisecond, log.New(os.Stdout, "", 0), s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(55 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep worker did not stop after cancellation")
	}

	assert.GreaterOrEqual(t, s.n, 3)
}

func TestSweepWorkerSweepsEveryRegisteredSweeper(t *testing.T) {
	a, b := &countingSweeper{}, &countingSweeper{}
	w := NewSweepWorker(time.Hour, log.New(os.Stdout, "", 0), a, b)

	w.sweepOnce()

	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}
