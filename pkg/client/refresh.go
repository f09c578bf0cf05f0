package client

import (
	"context"
	"errors"
	"sync"
)

var errRefreshAborted = errors.New("token refresh aborted")

// RefreshFunc exchanges the persisted refresh token for a new access token.
type RefreshFunc func(ctx context.Context) (string, error)

type refreshResult struct {
	token string
	err   error
}

// Refresher coalesces concurrent token refreshes. At most one exchange is in
// flight; callers that arrive while it runs are queued and, once it settles,
// released in arrival order with the same token or the same error.
type Refresher struct {
	refresh RefreshFunc

	mu       sync.Mutex
	inFlight bool
	waiters  []chan refreshResult
}

// NewRefresher returns a Refresher that runs fn for each coalesced refresh.
func NewRefresher(fn RefreshFunc) *Refresher {
	return &Refresher{refresh: fn}
}

// Do returns a fresh access token, starting a refresh if none is in flight or
// joining the one that is. The exchange itself is not cancelled when the
// starting caller's ctx is; a queued caller stops waiting when its own ctx ends.
func (r *Refresher) Do(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.inFlight {
		ch := make(chan refreshResult, 1)
		r.waiters = append(r.waiters, ch)
		r.mu.Unlock()

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	r.inFlight = true
	r.mu.Unlock()

	res := refreshResult{err: errRefreshAborted}
	defer func() { r.settle(res) }()

	res.token, res.err = r.refresh(context.WithoutCancel(ctx))
	return res.token, res.err
}

// settle clears the in-flight flag and drains the queue.
func (r *Refresher) settle(res refreshResult) {
	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.inFlight = false
	r.mu.Unlock()

	for _, ch := range waiters {
		ch <- res
	}
}

// InFlight reports whether a refresh is currently running.
func (r *Refresher) InFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

// Pending returns the number of callers queued behind the running refresh.
func (r *Refresher) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
