package apiclient

import (
	"context"
	"errors"
)

// PendingCall is the handle for a request running on the client's worker
// pool. It completes exactly once, with either a response or an error.
type PendingCall struct {
	done chan struct{}
	resp *Response
	err  error
}

func newPendingCall() *PendingCall {
	return &PendingCall{done: make(chan struct{})}
}

func (p *PendingCall) complete(resp *Response, err error) {
	p.resp, p.err = resp, err
	close(p.done)
}

// Done is closed when the call has completed.
func (p *PendingCall) Done() <-chan struct{} { return p.done }

// Wait blocks until the call completes.
func (p *PendingCall) Wait() (*Response, error) {
	<-p.done
	return p.resp, p.err
}

// Err returns the call's error, or nil while it is still running.
func (p *PendingCall) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// AwaitAll blocks until every call has completed, successfully or not.
// It never short-circuits; read each call's outcome with Wait afterwards.
// Nil entries are skipped.
func AwaitAll(calls ...*PendingCall) {
	_ = AwaitAllContext(context.Background(), calls...)
}

// AwaitAllContext is AwaitAll bounded by ctx. On cancellation it returns
// ctx.Err() and the calls keep running.
func AwaitAllContext(ctx context.Context, calls ...*PendingCall) error {
	for _, c := range calls {
		if c == nil {
			continue
		}
		select {
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Failures returns the errors of completed calls, joined.
func Failures(calls ...*PendingCall) error {
	var errs []error
	for _, c := range calls {
		if c == nil {
			continue
		}
		if err := c.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
