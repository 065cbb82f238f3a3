package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aidecisionlog/server/internal/decisionlog/digest"
)

type submitJob struct {
	ctx     context.Context
	agentID string
	action  string
	digest  digest.Digest
	ch      chan submitResult

	// state moves from jobQueued to either jobRunning (taken by the loop)
	// or jobAbandoned (caller gave up first), never both.
	state *atomic.Int32
}

const (
	jobQueued int32 = iota
	jobRunning
	jobAbandoned
)

type submitResult struct {
	conf Confirmation
	err  error
}

// SerialSubmitter is a single-writer queue in front of a Committer. Every
// submission for the signing account goes through one goroutine, so nonce
// fetch and inclusion never overlap between submissions.
type SerialSubmitter struct {
	next Committer
	jobs chan submitJob
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewSerialSubmitter(next Committer, queueSize int) *SerialSubmitter {
	if queueSize <= 0 {
		queueSize = 64
	}
	s := &SerialSubmitter{
		next: next,
		jobs: make(chan submitJob, queueSize),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

// Close stops accepting submissions, waits for queued ones to finish and
// is safe to call more than once.
func (s *SerialSubmitter) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *SerialSubmitter) Submit(ctx context.Context, agentID, action string, d digest.Digest) (Confirmation, error) {
	ch := make(chan submitResult, 1)
	j := submitJob{ctx: ctx, agentID: agentID, action: action, digest: d, ch: ch, state: new(atomic.Int32)}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return Confirmation{}, ErrSubmitterClosed
	}
	// Enqueue, bailing out if the caller's context expires while the queue is full.
	select {
	case s.jobs <- j:
	case <-ctx.Done():
		s.mu.RUnlock()
		return Confirmation{}, queuedError(ctx)
	}
	s.mu.RUnlock()

	select {
	case r := <-ch:
		return r.conf, r.err
	case <-ctx.Done():
	}

	if j.state.CompareAndSwap(jobQueued, jobAbandoned) {
		return Confirmation{}, queuedError(ctx)
	}
	// Already running: the transaction may be on the wire, and the inner
	// committer shares ctx, so its own error carries the stage and tx hash.
	r := <-ch
	return r.conf, r.err
}

// queuedError reports a submission abandoned before anything was sent.
func queuedError(ctx context.Context) error {
	return &SubmissionError{Stage: StageNonce, Err: ctx.Err()}
}

func (s *SerialSubmitter) loop() {
	defer close(s.done)

	for j := range s.jobs {
		if !j.state.CompareAndSwap(jobQueued, jobRunning) {
			continue
		}
		if j.ctx.Err() != nil {
			j.ch <- submitResult{err: queuedError(j.ctx)}
			continue
		}
		conf, err := s.next.Submit(j.ctx, j.agentID, j.action, j.digest)
		j.ch <- submitResult{conf: conf, err: err}
	}
}
