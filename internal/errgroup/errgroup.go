// Package errgroup runs a bounded number of goroutines and collects the
// first error. A panicking goroutine is reported as an error instead of
// crashing the process, so one bad work item cannot take down a pass.
package errgroup

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

type token struct{}

type Group struct {
	cancel func(err error)

	wg  sync.WaitGroup
	sem chan token

	errOnce sync.Once
	err     error
}

// WithContext returns a Group whose derived context is canceled when a
// goroutine fails or when Wait returns.
func WithContext(ctx context.Context) (*Group, context.Context) {
	ctx, cancel := context.WithCancelCause(ctx)
	return &Group{cancel: cancel}, ctx
}

// PanicError is the error of a goroutine that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("errgroup: panic: %v\n%s", e.Value, e.Stack)
}

func (g *Group) Wait() error {
	g.wg.Wait()
	if g.cancel != nil {
		g.cancel(g.err)
	}
	return g.err
}

// Go calls f in a new goroutine. It blocks until the goroutine can start
// without exceeding the limit set by SetLimit.
//
// The first error, or panic, cancels the group's context and is returned by
// Wait.
func (g *Group) Go(f func() error) {
	if g.sem != nil {
		g.sem <- token{}
	}

	g.wg.Add(1)
	go func() {
		defer g.done()
		if err := call(f); err != nil {
			g.errOnce.Do(func() {
				g.err = err
				if g.cancel != nil {
					g.cancel(g.err)
				}
			})
		}
	}()
}

func call(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return f()
}

func (g *Group) done() {
	if g.sem != nil {
		<-g.sem
	}
	g.wg.Done()
}

// SetLimit limits the number of active goroutines to n. A negative n removes
// the limit. The limit must not change while goroutines are active.
func (g *Group) SetLimit(n int) {
	if n < 0 {
		g.sem = nil
		return
	}
	if len(g.sem) != 0 {
		panic(fmt.Errorf("errgroup: modify limit while %v goroutines in the group are still active", len(g.sem)))
	}
	g.sem = make(chan token, n)
}
