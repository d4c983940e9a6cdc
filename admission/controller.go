// Package admission serializes work per token and bounds the number of
// tokens with outstanding work.
//
// A single dispatcher goroutine owns every queue. Submissions and
// completions reach it as messages, so queue state is never shared.
//
// Invariants:
//   - at most one unit runs per token at any time
//   - units for a token run in submission order
//   - a token is active while it has a running or queued unit
//   - every accepted unit's future resolves exactly once
package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/TheoDgb/URLCustomDiscsAPI/log"
)

// DefaultMaxActive is the default number of concurrently active tokens.
const DefaultMaxActive = 2

var (
	// ErrBusy is returned when a new token would exceed the active ceiling.
	ErrBusy = errors.New("admission: too many active tokens")
	// ErrClosed is returned after Close, and resolves units still queued at Close.
	ErrClosed = errors.New("admission: controller closed")
	// ErrWorkPanicked resolves a unit whose work function panicked.
	ErrWorkPanicked = errors.New("admission: work panicked")
)

// Work is one unit of serialized work for a token.
type Work func(ctx context.Context) error

// Stats is a point-in-time view of the controller.
type Stats struct {
	ActiveTokens int `json:"active_tokens"`
	Running      int `json:"running"`
	Queued       int `json:"queued"`
	MaxActive    int `json:"max_active"`
}

type job struct {
	ctx    context.Context
	work   Work
	result chan error
}

type submitMsg struct {
	token string
	job   *job
	reply chan error
}

type tokenQueue struct {
	running bool
	pending []*job
}

// Controller is the admission gate and per-token task queue.
type Controller struct {
	maxActive int
	logger    *log.Logger

	submitCh   chan submitMsg
	finishedCh chan string
	statsCh    chan chan Stats
	done       chan struct{}
	stopped    chan struct{}
	closeOnce  sync.Once
	runners    sync.WaitGroup
}

// New creates a Controller and starts its dispatcher.
// maxActive <= 0 uses DefaultMaxActive. A nil logger discards output.
func New(maxActive int, logger *log.Logger) *Controller {
	if maxActive <= 0 {
		maxActive = DefaultMaxActive
	}
	if logger == nil {
		logger = log.Nop()
	}
	c := &Controller{
		maxActive:  maxActive,
		logger:     logger,
		submitCh:   make(chan submitMsg),
		finishedCh: make(chan string),
		statsCh:    make(chan chan Stats),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// Submit enqueues work for token and returns a future for its result.
// It fails at once with ErrBusy if token is not active and the active
// ceiling is reached.
//
// work runs with ctx. If ctx is done before the unit starts, the future
// resolves with ctx.Err() and work is not called.
func (c *Controller) Submit(ctx context.Context, token string, work Work) (<-chan error, error) {
	if work == nil {
		return nil, errors.New("admission: nil work")
	}
	j := &job{ctx: ctx, work: work, result: make(chan error, 1)}
	msg := submitMsg{token: token, job: j, reply: make(chan error, 1)}

	select {
	case c.submitCh <- msg:
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// The dispatcher replies in the same step it receives the message.
	if err := <-msg.reply; err != nil {
		return nil, err
	}
	return j.result, nil
}

// Do submits work and waits for its result.
func (c *Controller) Do(ctx context.Context, token string, work Work) error {
	future, err := c.Submit(ctx, token, work)
	if err != nil {
		return err
	}
	return <-future
}

// Stats returns a snapshot of queue state. After Close it returns a zero
// snapshot carrying only MaxActive.
func (c *Controller) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case c.statsCh <- reply:
		return <-reply
	case <-c.done:
		return Stats{MaxActive: c.maxActive}
	}
}

// Close stops accepting work and resolves every queued unit with ErrClosed.
// Units already running finish normally; Close waits for them.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	<-c.stopped
	c.runners.Wait()
}

func (c *Controller) dispatch() {
	defer close(c.stopped)

	active := make(map[string]*tokenQueue)

	for {
		select {
		case msg := <-c.submitCh:
			q, ok := active[msg.token]
			if !ok {
				if len(active) >= c.maxActive {
					msg.reply <- ErrBusy
					continue
				}
				q = &tokenQueue{}
				active[msg.token] = q
			}
			q.pending = append(q.pending, msg.job)
			msg.reply <- nil
			if !q.running {
				c.startNext(msg.token, q)
			}

		case token := <-c.finishedCh:
			q, ok := active[token]
			if !ok {
				continue
			}
			q.running = false
			if len(q.pending) == 0 {
				delete(active, token)
				continue
			}
			c.startNext(token, q)

		case reply := <-c.statsCh:
			s := Stats{ActiveTokens: len(active), MaxActive: c.maxActive}
			for _, q := range active {
				if q.running {
					s.Running++
				}
				s.Queued += len(q.pending)
			}
			reply <- s

		case <-c.done:
			for token, q := range active {
				for _, j := range q.pending {
					j.result <- ErrClosed
				}
				delete(active, token)
			}
			return
		}
	}
}

// startNext pops the head of q and runs it. Called only by the dispatcher.
func (c *Controller) startNext(token string, q *tokenQueue) {
	j := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.running = true

	c.runners.Add(1)
	go c.run(token, j)
}

func (c *Controller) run(token string, j *job) {
	defer c.runners.Done()

	j.result <- c.execute(token, j)

	select {
	case c.finishedCh <- token:
	case <-c.done:
	}
}

func (c *Controller) execute(token string, j *job) (err error) {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("admitted work panicked", map[string]any{
				"token": token,
				"panic": fmt.Sprint(r),
			})
			err = fmt.Errorf("%w: %v", ErrWorkPanicked, r)
		}
	}()
	return j.work(j.ctx)
}
