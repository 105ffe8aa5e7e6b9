package rxgrid

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamEmitsSequence(t *testing.T) {
	feed := make(chan int)
	p := NewStream("ticker", func(ctx context.Context, r *Ref, emit func(int)) error {
		for {
			select {
			case v, ok := <-feed:
				if !ok {
					return nil
				}
				emit(v)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	c := NewContainer()
	defer c.Close(context.Background())

	var mu sync.Mutex
	var seen []int
	_, unwatch, err := p.Watch(c, func(v AsyncValue[int]) {
		if v.IsReady() {
			mu.Lock()
			seen = append(seen, v.Value)
			mu.Unlock()
		}
	})
	require.NoError(t, err)
	defer unwatch()

	for _, v := range []int{1, 2, 3} {
		feed <- v
	}
	close(feed)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, seen)
	mu.Unlock()

	// A cleanly ended stream retains its last value.
	cur, err := p.Read(c)
	require.NoError(t, err)
	assert.True(t, cur.IsReady())
	assert.Equal(t, 3, cur.Value)
}

func TestStreamAwaitFirstValue(t *testing.T) {
	p := NewStream("single", func(ctx context.Context, r *Ref, emit func(string)) error {
		emit("hello")
		<-ctx.Done()
		return ctx.Err()
	})
	c := NewContainer()
	defer c.Close(context.Background())

	v, err := p.Await(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestStreamEndingWithoutValueIsAnError(t *testing.T) {
	p := NewStream("empty", func(ctx context.Context, r *Ref, emit func(int)) error {
		return nil
	})
	c := NewContainer()
	defer c.Close(context.Background())

	_, err := p.Await(context.Background(), c)
	require.Error(t, err)
	assert.ErrorContains(t, err, "stream ended before producing a value")
}

func TestStreamError(t *testing.T) {
	p := NewStream("broken", func(ctx context.Context, r *Ref, emit func(int)) error {
		emit(1)
		return errors.New("connection lost")
	})
	c := NewContainer()
	defer c.Close(context.Background())

	require.Eventually(t, func() bool {
		cur, err := p.Read(c)
		return err == nil && cur.IsError()
	}, time.Second, 5*time.Millisecond)

	cur, err := p.Read(c)
	require.NoError(t, err)
	var be *BuildError
	require.ErrorAs(t, cur.Err, &be)
	assert.Equal(t, "broken", be.Key)
}

func TestStreamInvalidateRestartsRun(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	p := NewStream("restartable", func(ctx context.Context, r *Ref, emit func(int)) error {
		mu.Lock()
		runs++
		id := runs
		mu.Unlock()
		emit(id)
		<-ctx.Done()
		return ctx.Err()
	})
	c := NewContainer()
	defer c.Close(context.Background())

	v, err := p.Await(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, c.Invalidate(p))
	v, err = p.Await(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
