package session

import (
	"context"
	"fmt"
	"time"

	"github.com/italolelis/gumroad_downloader/internal/telemetry"
)

// Pool hands out a fixed set of interchangeable sessions. Its size caps the number of
// concurrent network operations of the whole process.
type Pool struct {
	sessions chan *Session
	size     int
	tel      *telemetry.Telemetry
}

// NewPool builds opts.Size sessions up front.
func NewPool(opts Options) (*Pool, error) {
	if opts.Size < 1 {
		return nil, fmt.Errorf("session pool size must be at least 1, got %d", opts.Size)
	}

	p := &Pool{
		sessions: make(chan *Session, opts.Size),
		size:     opts.Size,
		tel:      opts.Telemetry,
	}

	for i := range opts.Size {
		p.sessions <- newSession(i, opts)
	}

	return p, nil
}

// Size returns the number of sessions.
func (p *Pool) Size() int {
	return p.size
}

// Acquire blocks until a session is idle or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	start := time.Now()

	select {
	case s := <-p.sessions:
		p.tel.RecordSessionAcquired(time.Since(start))

		return s, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for a session: %w", ctx.Err())
	}
}

// Release returns s to the pool. The caller must not use s afterwards.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}

	p.tel.RecordSessionReleased()
	p.sessions <- s
}

// Do runs fn with a session and releases it however fn returns.
func (p *Pool) Do(ctx context.Context, fn func(s *Session) error) error {
	s, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(s)

	return fn(s)
}
