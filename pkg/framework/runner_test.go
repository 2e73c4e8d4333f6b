package framework

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestRunnerAggregates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunnerWith(ctx).Go(
		NamedRun("canceled", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		RunFunc(func(context.Context) error { return errBoom }),
		RunFunc(func(context.Context) error { return nil }),
	)
	time.AfterFunc(10*time.Millisecond, cancel)
	err := r.Wait()
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
	assert.True(t, errors.Is(err, errBoom))
}

func TestRunnerNoError(t *testing.T) {
	err := NewRunner().Go(RunFunc(func(context.Context) error { return nil })).Wait()
	require.NoError(t, err)
}

func TestAggregatedErrorMessage(t *testing.T) {
	var errs AggregatedError
	errs.Add(nil, context.Canceled, errBoom, io.EOF)
	require.Equal(t, "Multiple errors:\nboom\nEOF", errs.Aggregate().Error())
	var empty AggregatedError
	require.NoError(t, empty.Aggregate())
}

type flaky struct {
	runs   int
	resets int
	cancel func()
}

func (f *flaky) Run(ctx context.Context) error {
	f.runs++
	if f.runs == 3 {
		f.cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	return errBoom
}

func (f *flaky) Reset() { f.resets++ }

func TestRestart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &flaky{cancel: cancel}
	err := Restart(ctx, time.Millisecond, f)
	require.Equal(t, context.Canceled, err)
	require.Equal(t, 3, f.runs)
	require.Equal(t, 2, f.resets)
}

type closeRecorder struct{ closed int }

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	var c closeRecorder
	require.Equal(t, errBoom, RunWithContextCloser(context.Background(), &c, func() error { return errBoom }))
	require.Equal(t, 1, c.closed)

	ctx, cancel := context.WithCancel(context.Background())
	unblock := make(chan struct{})
	c.closed = 0
	time.AfterFunc(5*time.Millisecond, cancel)
	err := RunWithContextCloser(ctx, closerFunc(func() error {
		c.closed++
		close(unblock)
		return nil
	}), func() error {
		<-unblock
		return io.EOF
	})
	require.Equal(t, context.Canceled, err)
	require.Equal(t, 1, c.closed)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestRunWithContextReturnsEarly(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	block := make(chan struct{})
	defer close(block)
	err := RunWithContext(ctx, func() error {
		<-block
		return nil
	})
	require.Equal(t, context.DeadlineExceeded, err)
}
