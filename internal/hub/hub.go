package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/vote-admin/internal/summary"
)

// Opener builds a live view for an admin token.
type Opener func(ctx context.Context, token string) *summary.View

type HubMsg interface{ isHubMsg() }

// Acquire returns the token's view, opening it on first use. Every Acquire
// must be paired with a Release.
type Acquire struct {
	Token string
	Reply chan *summary.View
}

type Release struct {
	Token string
}

type Count struct {
	Reply chan int
}

type ShutdownHub struct{}

func (Acquire) isHubMsg()     {}
func (Release) isHubMsg()     {}
func (Count) isHubMsg()       {}
func (ShutdownHub) isHubMsg() {}

type entry struct {
	view *summary.View
	refs int
}

type Hub struct {
	inbox  chan HubMsg
	views  map[string]*entry
	open   Opener
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    *zap.Logger
}

func NewHub(parent context.Context, open Opener, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		views:  make(map[string]*entry),
		open:   open,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Acquire:
				e := h.views[msg.Token]
				if e == nil {
					e = &entry{view: h.open(h.ctx, msg.Token)}
					h.views[msg.Token] = e
					h.log.Info("summary view opened", zap.Int("views", len(h.views)))
				}
				e.refs++
				msg.Reply <- e.view

			case Release:
				e := h.views[msg.Token]
				if e == nil {
					break
				}
				e.refs--
				if e.refs <= 0 {
					delete(h.views, msg.Token)
					go e.view.Close()
					h.log.Info("summary view released", zap.Int("views", len(h.views)))
				}

			case Count:
				msg.Reply <- len(h.views)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for token, e := range h.views {
		e.view.Close()
		delete(h.views, token)
	}
	h.cancel()
}

// Shutdown closes every view and stops the loop.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.done:
	}
	<-h.done
}

func (h *Hub) Acquire(ctx context.Context, token string) (*summary.View, error) {
	reply := make(chan *summary.View, 1)
	select {
	case h.inbox <- Acquire{Token: token, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, context.Canceled
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		return nil, context.Canceled
	}
}

func (h *Hub) Release(token string) {
	select {
	case h.inbox <- Release{Token: token}:
	case <-h.done:
	}
}
