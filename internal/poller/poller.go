package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/vote-admin/internal/tally"
)

// Fetcher performs one poll fetch.
type Fetcher interface {
	VoteUpdates(ctx context.Context) ([]tally.VoteUpdate, error)
}

// Emitter receives the outcome of each poll.
type Emitter interface {
	EmitVoteUpdates(updates []tally.VoteUpdate)
	EmitPollError(err error)
}

// Poller re-fetches vote counts on a fixed interval as a fallback for a
// push channel that may be silently broken. Ticks are skipped while the
// gate reports the push channel as down.
type Poller struct {
	fetcher  Fetcher
	emitter  Emitter
	gate     func() bool
	interval time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(fetcher Fetcher, emitter Emitter, gate func() bool, interval time.Duration, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	if gate == nil {
		gate = func() bool { return true }
	}
	return &Poller{
		fetcher:  fetcher,
		emitter:  emitter,
		gate:     gate,
		interval: interval,
		log:      log,
	}
}

func (p *Poller) Start(parent context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel

	p.wg.Add(1)
	go p.run(ctx)
}

// Stop cancels the ticker and any in-flight fetch, and waits for both.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.gate() {
				p.log.Debug("poll skipped, push channel down")
				continue
			}
			p.poll(ctx)
		}
	}
}

// PollNow fetches once, outside the schedule.
func (p *Poller) PollNow(ctx context.Context) {
	p.poll(ctx)
}

func (p *Poller) poll(ctx context.Context) {
	updates, err := p.fetcher.VoteUpdates(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.log.Warn("poll fetch failed", zap.Error(err))
		p.emitter.EmitPollError(err)
		return
	}
	p.log.Debug("poll fetched", zap.Int("updates", len(updates)))
	p.emitter.EmitVoteUpdates(updates)
}
