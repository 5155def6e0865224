package reconciler

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/DoyleJ11/vote-admin/internal/tally"
)

type Source string

const (
	SourceSnapshot Source = "snapshot"
	SourcePush     Source = "push"
	SourcePoll     Source = "poll"
)

type Msg interface{ isReconcilerMsg() }

// Seed replaces the whole list with a fresh snapshot.
type Seed struct {
	Candidates []tally.Candidate
}

func (Seed) isReconcilerMsg() {}

type SingleUpdate struct {
	Update tally.VoteUpdate
	Source Source
}

func (SingleUpdate) isReconcilerMsg() {}

type BulkUpdate struct {
	Updates []tally.VoteUpdate
	Source  Source
}

func (BulkUpdate) isReconcilerMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this observer wants to receive snapshots
}

func (Join) isReconcilerMsg() {}

type Leave struct{ ClientID string }

func (Leave) isReconcilerMsg() {}

type Shutdown struct{}

func (Shutdown) isReconcilerMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isReconcilerMsg() {}

// Snapshot is an immutable, ranked view of the list. Observers may keep it.
type Snapshot struct {
	Version    int
	Seeded     bool
	Candidates []tally.Candidate
}

type View struct {
	Version      int
	Seeded       bool
	NumObservers int
	Candidates   []tally.Candidate
}

type Reconciler struct {
	inbox     chan Msg
	list      []tally.Candidate
	seeded    bool
	version   int
	observers map[string]chan Snapshot
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	inactive  atomic.Bool
	log       *zap.Logger
}

func New(parent context.Context, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	r := &Reconciler{
		inbox:     make(chan Msg, 64),
		list:      []tally.Candidate{},
		observers: make(map[string]chan Snapshot),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		log:       log,
	}

	go r.loop()
	return r
}

func (r *Reconciler) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Seed:
				r.list = tally.Seed(msg.Candidates)
				r.seeded = true
				r.publish()
				r.log.Debug("seeded", zap.Int("candidates", len(r.list)), zap.Int("version", r.version))

			case SingleUpdate:
				next, changed := tally.ApplySingle(r.list, msg.Update)
				if !changed {
					break
				}
				r.list = next
				r.publish()

			case BulkUpdate:
				next, changed := tally.ApplyBulk(r.list, msg.Updates)
				if !changed {
					break
				}
				r.list = next
				r.publish()
				r.log.Debug("bulk merged",
					zap.String("source", string(msg.Source)),
					zap.Int("updates", len(msg.Updates)),
					zap.Int("version", r.version))

			case Join:
				// Register observer + send current snapshot immediately
				r.observers[msg.ClientID] = msg.Outbox
				msg.Outbox <- r.snapshot()

			case Leave:
				if ch, ok := r.observers[msg.ClientID]; ok {
					close(ch)
					delete(r.observers, msg.ClientID)
				}

			case GetState:
				msg.Reply <- View{
					Version:      r.version,
					Seeded:       r.seeded,
					NumObservers: len(r.observers),
					Candidates:   r.list,
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Reconciler) snapshot() Snapshot {
	return Snapshot{Version: r.version, Seeded: r.seeded, Candidates: r.list}
}

func (r *Reconciler) publish() {
	r.version++
	snap := r.snapshot()
	for id, ch := range r.observers {
		select {
		case ch <- snap:
			//ok
		default:
			// Observer is slow/full - drop them.
			r.log.Warn("dropping slow observer", zap.String("client_id", id))
			close(ch)
			delete(r.observers, id)
		}
	}
}

func (r *Reconciler) shutdown() {
	r.inactive.Store(true)
	for id, ch := range r.observers {
		close(ch) // Tell observer no more snapshots
		delete(r.observers, id)
	}
	r.cancel()
	r.drain()
}

// drain discards queued messages after shutdown. A queued Join still gets its
// outbox closed.
func (r *Reconciler) drain() {
	for {
		select {
		case m := <-r.inbox:
			if j, ok := m.(Join); ok {
				close(j.Outbox)
			}
		default:
			return
		}
	}
}

// Submit hands msg to the loop. Once the reconciler is shut down the message
// is discarded and Submit reports false.
func (r *Reconciler) Submit(msg Msg) bool {
	if r.inactive.Load() {
		return false
	}
	select {
	case <-r.ctx.Done():
		return false
	case r.inbox <- msg:
	}
	// Shutdown raced the send: the message may never reach the loop.
	if r.inactive.Load() {
		r.drain()
		return false
	}
	return true
}

// State asks the loop for its current view. The zero View is returned once
// the reconciler has stopped.
func (r *Reconciler) State(ctx context.Context) View {
	reply := make(chan View, 1)
	if !r.Submit(GetState{Reply: reply}) {
		return View{}
	}
	select {
	case v := <-reply:
		return v
	case <-r.done:
		return View{}
	case <-ctx.Done():
		return View{}
	}
}

func (r *Reconciler) IDs(ctx context.Context) []string {
	return tally.IDs(r.State(ctx).Candidates)
}

func (r *Reconciler) Stop() {
	r.Submit(Shutdown{})
	r.cancel()
	<-r.done
}

func (r *Reconciler) Active() bool { return !r.inactive.Load() }

// Expose the inbox so tests can send messages directly.
func (r *Reconciler) Inbox() chan<- Msg { return r.inbox }
