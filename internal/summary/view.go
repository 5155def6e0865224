package summary

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/vote-admin/internal/backend"
	"github.com/DoyleJ11/vote-admin/internal/poller"
	"github.com/DoyleJ11/vote-admin/internal/push"
	"github.com/DoyleJ11/vote-admin/internal/reconciler"
	"github.com/DoyleJ11/vote-admin/internal/tally"
)

// Source is the remote candidate service as seen by one view.
type Source interface {
	Candidates(ctx context.Context) ([]tally.Candidate, error)
	VoteUpdates(ctx context.Context) ([]tally.VoteUpdate, error)
}

type Options struct {
	Source       Source
	Push         push.Config
	PollInterval time.Duration
	Log          *zap.Logger
}

// View is one live vote summary: a snapshot seeds the reconciler, then the
// push channel and the poll fallback keep it current until Close.
type View struct {
	src    Source
	rec    *reconciler.Reconciler
	push   *push.Client
	poller *poller.Poller
	log    *zap.Logger

	seeded     atomic.Bool
	authOnce   sync.Once
	authErr    error
	authFailed chan struct{}

	mu          sync.Mutex
	closed      bool
	pushStarted bool
	pushCancel  context.CancelFunc
	pushDone    chan struct{}
	runCancel   context.CancelFunc
	runDone     chan struct{}
	closeOnce   sync.Once
}

func Open(parent context.Context, opts Options) *View {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}

	v := &View{
		src:        opts.Source,
		rec:        reconciler.New(parent, log.Named("reconciler")),
		log:        log,
		authFailed: make(chan struct{}),
		pushDone:   make(chan struct{}),
		runDone:    make(chan struct{}),
	}
	f := feed{v: v}
	v.push = push.New(opts.Push, f, log.Named("push"))
	v.poller = poller.New(f, f, v.push.Connected, opts.PollInterval, log.Named("poller"))

	runCtx, runCancel := context.WithCancel(parent)
	pushCtx, pushCancel := context.WithCancel(parent)
	v.runCancel = runCancel
	v.pushCancel = pushCancel

	go v.run(runCtx, pushCtx, parent)
	return v
}

func (v *View) run(ctx, pushCtx, pollCtx context.Context) {
	defer close(v.runDone)

	if err := v.seed(ctx); err != nil && ctx.Err() == nil {
		v.log.Warn("snapshot fetch failed, waiting for poll", zap.Error(err))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.pushStarted = true
	go func() {
		defer close(v.pushDone)
		v.push.Run(pushCtx)
	}()
	v.poller.Start(pollCtx)
}

func (v *View) seed(ctx context.Context) error {
	cands, err := v.src.Candidates(ctx)
	if err != nil {
		v.reportAuth(err)
		return err
	}
	if v.rec.Submit(reconciler.Seed{Candidates: cands}) {
		v.seeded.Store(true)
		v.log.Info("summary seeded", zap.Int("candidates", len(cands)))
	}
	return nil
}

func (v *View) reportAuth(err error) {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return
	}
	v.authOnce.Do(func() {
		v.authErr = err
		close(v.authFailed)
	})
}

// AuthFailed is closed on the first authentication failure seen by any
// channel. It is the only error a view surfaces.
func (v *View) AuthFailed() <-chan struct{} { return v.authFailed }

// AuthErr returns the failure behind AuthFailed, or nil before it closed.
func (v *View) AuthErr() error {
	select {
	case <-v.authFailed:
		return v.authErr
	default:
		return nil
	}
}

func (v *View) Join(clientID string, outbox chan reconciler.Snapshot) bool {
	return v.rec.Submit(reconciler.Join{ClientID: clientID, Outbox: outbox})
}

func (v *View) Leave(clientID string) {
	v.rec.Submit(reconciler.Leave{ClientID: clientID})
}

func (v *View) State(ctx context.Context) reconciler.View {
	return v.rec.State(ctx)
}

// Close tears the view down: poll first, then the push channel (unsubscribe
// and close), then the reconciler. Late fetch results are discarded.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		v.closed = true
		started := v.pushStarted
		v.mu.Unlock()

		v.poller.Stop()

		v.pushCancel()
		if started {
			<-v.pushDone
		}

		v.rec.Stop()

		v.runCancel()
		<-v.runDone
		v.log.Info("summary closed")
	})
}

// feed adapts the view to the push and poll callbacks. Every path ends in a
// reconciler message, so the reconciler loop stays the only writer.
type feed struct{ v *View }

func (f feed) VoteUpdate(u tally.VoteUpdate) {
	f.v.rec.Submit(reconciler.SingleUpdate{Update: u, Source: reconciler.SourcePush})
}

func (f feed) BulkVoteUpdate(updates []tally.VoteUpdate) {
	if len(updates) == 0 {
		return
	}
	f.v.rec.Submit(reconciler.BulkUpdate{Updates: updates, Source: reconciler.SourcePush})
}

func (f feed) Connected(ctx context.Context) {
	f.v.poller.PollNow(ctx)
}

func (f feed) Failed(err error) {
	f.v.reportAuth(err)
}

func (f feed) CandidateIDs(ctx context.Context) []string {
	return f.v.rec.IDs(ctx)
}

// VoteUpdates is the poll fetch. Until a snapshot has landed it re-tries the
// snapshot instead, since a bulk update never introduces candidates.
func (f feed) VoteUpdates(ctx context.Context) ([]tally.VoteUpdate, error) {
	if !f.v.seeded.Load() {
		return nil, f.v.seed(ctx)
	}
	return f.v.src.VoteUpdates(ctx)
}

func (f feed) EmitVoteUpdates(updates []tally.VoteUpdate) {
	if len(updates) == 0 {
		return
	}
	f.v.rec.Submit(reconciler.BulkUpdate{Updates: updates, Source: reconciler.SourcePoll})
}

func (f feed) EmitPollError(err error) {
	f.v.reportAuth(err)
}
