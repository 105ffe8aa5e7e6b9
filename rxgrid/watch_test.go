package rxgrid

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchCounter(t *testing.T) {
	counter := NewState("counter", 0)
	c := NewContainer()
	defer c.Close(context.Background())

	var got []int
	v, unwatch, err := counter.Watch(c, func(v int) { got = append(got, v) })
	require.NoError(t, err)
	defer unwatch()
	assert.Equal(t, 0, v, "watch returns the current value")

	for i := 1; i <= 3; i++ {
		_, err := counter.Update(c, func(n int) int { return n + 1 })
		require.NoError(t, err)
	}
	assert.Equal(t, []int{1, 2, 3}, got, "one notification per committed change")
}

func TestWatchSkipsEqualValues(t *testing.T) {
	s := NewState("value", 5)
	c := NewContainer()
	defer c.Close(context.Background())

	var got []int
	_, unwatch, err := s.Watch(c, func(v int) { got = append(got, v) })
	require.NoError(t, err)
	defer unwatch()

	require.NoError(t, s.Set(c, 5))
	assert.Empty(t, got, "setting a deeply equal value must not notify")

	require.NoError(t, s.Set(c, 6))
	assert.Equal(t, []int{6}, got)
}

func TestWatchSelect(t *testing.T) {
	counter := NewState("counter", 0)
	c := NewContainer()
	defer c.Close(context.Background())

	var got []bool
	even, unwatch, err := WatchSelect(c, counter.Provider,
		func(n int) bool { return n%2 == 0 },
		func(v bool) { got = append(got, v) })
	require.NoError(t, err)
	defer unwatch()
	assert.True(t, even)

	for i := 1; i <= 4; i++ {
		_, err := counter.Update(c, func(n int) int { return n + 1 })
		require.NoError(t, err)
	}
	assert.Equal(t, []bool{false, true, false, true}, got,
		"every increment flips parity, so every change notifies")

	got = nil
	require.NoError(t, counter.Set(c, 6))
	assert.Empty(t, got, "4 -> 6 keeps the projection, so the watcher stays quiet")
}

func TestUseSelectBoundsRebuilds(t *testing.T) {
	counter := NewState("counter", 0)
	signBuilds := 0
	sign := New("sign", func(ctx context.Context, r *Ref) (string, error) {
		signBuilds++
		negative, err := UseSelect(r, counter.Provider, func(n int) bool { return n < 0 })
		if err != nil {
			return "", err
		}
		if negative {
			return "negative", nil
		}
		return "non-negative", nil
	})
	c := NewContainer()
	defer c.Close(context.Background())

	var got []string
	_, unwatch, err := sign.Watch(c, func(s string) { got = append(got, s) })
	require.NoError(t, err)
	defer unwatch()
	assert.Equal(t, 1, signBuilds)

	require.NoError(t, counter.Set(c, 5))
	require.NoError(t, counter.Set(c, 9))
	assert.Equal(t, 1, signBuilds, "changes inside the projection's equivalence class are absorbed")
	assert.Empty(t, got)

	require.NoError(t, counter.Set(c, -1))
	assert.Equal(t, 2, signBuilds)
	assert.Equal(t, []string{"negative"}, got)
}

func TestTwoSelectorsOneRebuild(t *testing.T) {
	pair := NewState("pair", [2]int{1, 2})
	builds := 0
	sum := New("sum", func(ctx context.Context, r *Ref) (int, error) {
		builds++
		a, err := UseSelect(r, pair.Provider, func(v [2]int) int { return v[0] })
		if err != nil {
			return 0, err
		}
		b, err := UseSelect(r, pair.Provider, func(v [2]int) int { return v[1] })
		if err != nil {
			return 0, err
		}
		return a + b, nil
	})
	c := NewContainer()
	defer c.Close(context.Background())

	var got []int
	_, unwatch, err := sum.Watch(c, func(v int) { got = append(got, v) })
	require.NoError(t, err)
	defer unwatch()
	assert.Equal(t, 1, builds)

	// Both projections change at once; the dependent rebuilds exactly once.
	require.NoError(t, pair.Set(c, [2]int{10, 20}))
	assert.Equal(t, 2, builds)
	assert.Equal(t, []int{30}, got)
}

func TestUnwatchIsIdempotent(t *testing.T) {
	s := NewState("value", 1)
	c := NewContainer()
	defer c.Close(context.Background())

	var first, second []int
	_, unwatchFirst, err := s.Watch(c, func(v int) { first = append(first, v) })
	require.NoError(t, err)
	_, unwatchSecond, err := s.Watch(c, func(v int) { second = append(second, v) })
	require.NoError(t, err)

	unwatchFirst()
	unwatchFirst()

	require.NoError(t, s.Set(c, 2))
	assert.Empty(t, first)
	assert.Equal(t, []int{2}, second, "the remaining watcher is unaffected")
	unwatchSecond()
}

func TestWatchersNotifiedInRegistrationOrder(t *testing.T) {
	s := NewState("value", 0)
	c := NewContainer()
	defer c.Close(context.Background())

	var order []string
	_, u1, err := s.Watch(c, func(int) { order = append(order, "a") })
	require.NoError(t, err)
	defer u1()
	_, u2, err := s.Watch(c, func(int) { order = append(order, "b") })
	require.NoError(t, err)
	defer u2()

	require.NoError(t, s.Set(c, 1))
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestWatchSilentOnRebuildFailure(t *testing.T) {
	fail := false
	val := 1
	p := New("flaky", func(ctx context.Context, r *Ref) (int, error) {
		if fail {
			return 0, errors.New("flaky down")
		}
		return val, nil
	})
	c := NewContainer()
	defer c.Close(context.Background())

	var got []int
	v, unwatch, err := p.Watch(c, func(v int) { got = append(got, v) })
	require.NoError(t, err)
	defer unwatch()
	assert.Equal(t, 1, v)

	// A failed rebuild leaves the node in its error state without a
	// notification; the error is observed through Read.
	fail = true
	require.NoError(t, c.Invalidate(p))
	assert.Empty(t, got)

	_, err = p.Read(c)
	require.ErrorContains(t, err, "flaky down")

	// Recovery delivers the next committed value as usual.
	fail = false
	val = 2
	require.NoError(t, c.Invalidate(p))
	assert.Equal(t, []int{2}, got)
}

func TestWatchErroredProvider(t *testing.T) {
	p := New("broken", func(ctx context.Context, r *Ref) (int, error) {
		return 0, assert.AnError
	})
	c := NewContainer()
	defer c.Close(context.Background())

	_, unwatch, err := p.Watch(c, func(int) {})
	require.Error(t, err)
	assert.Nil(t, unwatch)
}
