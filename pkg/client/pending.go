package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/omochice/fcchat/pkg/protocol"
)

// matcher inspects a dispatched packet. done reports that the request is
// answered, err that the answer is a failure.
type matcher func(p *protocol.Packet) (done bool, err error)

type result struct {
	packet *protocol.Packet
	err    error
}

type request struct {
	id    uint64
	name  string
	match matcher
	// lossFails makes a connection loss fail the request.
	lossFails bool
	result    chan result
}

// pendingTable holds requests waiting for their answer packet. Requests
// are matched in registration order.
type pendingTable struct {
	mu   sync.Mutex
	next uint64
	reqs []*request
}

func (t *pendingTable) add(name string, m matcher, lossFails bool) *request {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	r := &request{id: t.next, name: name, match: m, lossFails: lossFails, result: make(chan result, 1)}
	t.reqs = append(t.reqs, r)
	return r
}

func (t *pendingTable) remove(r *request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(r)
}

func (t *pendingTable) removeLocked(r *request) bool {
	for i, cur := range t.reqs {
		if cur == r {
			t.reqs = append(t.reqs[:i:i], t.reqs[i+1:]...)
			return true
		}
	}
	return false
}

// resolve offers p to every waiting request.
func (t *pendingTable) resolve(p *protocol.Packet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.reqs[:0:0]
	for _, r := range t.reqs {
		done, err := r.match(p)
		if !done {
			kept = append(kept, r)
			continue
		}
		r.result <- result{packet: p, err: err}
	}
	t.reqs = kept
}

// connectionLost fails every request that does not survive a reconnect.
func (t *pendingTable) connectionLost(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.reqs[:0:0]
	for _, r := range t.reqs {
		if !r.lossFails {
			kept = append(kept, r)
			continue
		}
		r.result <- result{err: fmt.Errorf("%w: %s", ErrConnectionLost, reason)}
	}
	t.reqs = kept
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.reqs)
}

// wait blocks until r is answered, timeout passes or ctx is done. The
// request is always removed from the table on return.
func (t *pendingTable) wait(ctx context.Context, r *request, timeout time.Duration) (*protocol.Packet, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case res := <-r.result:
		return res.packet, res.err
	case <-expired:
		t.remove(r)
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, r.name, timeout)
	case <-ctx.Done():
		t.remove(r)
		return nil, ctx.Err()
	}
}
