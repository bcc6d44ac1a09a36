package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lenserrors "typelens/internal/errors"
)

// call is one query waiting for its server.
type call struct {
	ctx    context.Context
	method string
	params interface{}
	queued time.Time
	reply  chan reply
}

type reply struct {
	result json.RawMessage
	err    error
	took   time.Duration
}

func newCall(ctx context.Context, method string, params interface{}) *call {
	return &call{
		ctx:    ctx,
		method: method,
		params: params,
		queued: time.Now(),
		reply:  make(chan reply, 1),
	}
}

// saturation is the fill ratio past which a queue sheds new work.
const saturation = 0.8

// requestQueue serializes the queries for one server key.
type requestQueue struct {
	key     string
	pending chan *call
	wait    time.Duration
}

func newRequestQueue(key string, size int, wait time.Duration) *requestQueue {
	return &requestQueue{
		key:     key,
		pending: make(chan *call, size),
		wait:    wait,
	}
}

// submit enqueues c, waiting at most q.wait for room.
func (q *requestQueue) submit(c *call) error {
	timer := time.NewTimer(q.wait)
	defer timer.Stop()

	select {
	case q.pending <- c:
		return nil
	case <-timer.C:
		return lenserrors.NewLensError(
			lenserrors.RateLimited,
			fmt.Sprintf("request queue full for %s", q.key),
			nil,
			lenserrors.GetSuggestedFixes(lenserrors.RateLimited),
		)
	case <-c.ctx.Done():
		return lenserrors.NewLensError(lenserrors.Cancelled, "cancelled while queued", c.ctx.Err(), nil)
	}
}

// serve runs queued calls one at a time until done closes. Calls whose
// caller already gave up are answered without reaching the server.
func (q *requestQueue) serve(done <-chan struct{}, run func(*call) reply) {
	for {
		select {
		case <-done:
			return
		case c := <-q.pending:
			if err := c.ctx.Err(); err != nil {
				c.reply <- reply{err: lenserrors.NewLensError(lenserrors.Cancelled, "cancelled while queued", err, nil)}
				continue
			}
			c.reply <- run(c)
		}
	}
}

// fail answers every queued call with err and returns how many there were.
func (q *requestQueue) fail(err error) int {
	n := 0
	for {
		select {
		case c := <-q.pending:
			c.reply <- reply{err: err}
			n++
		default:
			return n
		}
	}
}

func (q *requestQueue) len() int {
	return len(q.pending)
}

// saturated reports whether the queue is nearly full.
func (q *requestQueue) saturated() bool {
	return float64(len(q.pending)) > saturation*float64(cap(q.pending))
}
