// Package testing provides test utilities for the datastreams module.
//
// Calling t.Fatal or t.FailNow from a goroutine other than the test
// goroutine only exits that goroutine, so concurrent tests return errors
// through GoroutineTest instead.
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Error Channel Pattern
// =============================================================================

// GoroutineTest collects errors from goroutines and reports them on the
// test goroutine.
//
// Example usage:
//
//	func TestConcurrentAppends(t *testing.T) {
//	    gt := dstesting.NewGoroutineTest(t)
//	    defer gt.Wait()
//
//	    gt.Go(func() error {
//	        return svc.Append(deployment, data)
//	    })
//	}
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a new GoroutineTest helper.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100), // buffered to avoid blocking
		ctx:    ctx,
		cancel: cancel,
	}
}

// NewGoroutineTestWithTimeout creates a GoroutineTest whose context expires
// after timeout.
func NewGoroutineTestWithTimeout(t *testing.T, timeout time.Duration) *GoroutineTest {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs fn in a goroutine. A non-nil result is reported by Wait.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(); err != nil {
			select {
			case gt.errors <- err:
			default:
				gt.t.Logf("error channel full, dropping error: %v", err)
			}
		}
	}()
}

// GoWithContext runs fn with the test context in a goroutine.
func (gt *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	gt.Go(func() error { return fn(gt.ctx) })
}

// Wait waits for all goroutines to complete and fails the test if any
// errors occurred. It must be called from the test goroutine.
func (gt *GoroutineTest) Wait() {
	gt.t.Helper()

	gt.wg.Wait()
	gt.cancel()
	close(gt.errors)

	var errs []error
	for err := range gt.errors {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		gt.t.Errorf("goroutine test failed with %d error(s):", len(errs))
		for i, err := range errs {
			gt.t.Errorf("  [%d] %v", i+1, err)
		}
		gt.t.FailNow()
	}
}

// Context returns the context for this test.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// Cancel cancels the context, signaling goroutines to stop.
func (gt *GoroutineTest) Cancel() {
	gt.cancel()
}

// =============================================================================
// Assertion Helpers
// =============================================================================

// AssertEqual returns an error if got != want.
func AssertEqual[T comparable](got, want T, msg string) error {
	if got != want {
		return fmt.Errorf("%s: got %v, want %v", msg, got, want)
	}
	return nil
}

// AssertNoError returns an error if err is not nil.
func AssertNoError(err error, msg string) error {
	if err != nil {
		return fmt.Errorf("%s: unexpected error: %w", msg, err)
	}
	return nil
}

// =============================================================================
// Timeout Helper
// =============================================================================

// WithTimeout runs fn and returns its error, or a timeout error if fn does
// not return in time.
func WithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}
