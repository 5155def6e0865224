package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/vote-admin/internal/backend"
	"github.com/DoyleJ11/vote-admin/internal/tally"
)

const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

type ControlMessage struct {
	Type         string   `json:"type"`
	CandidateIDs []string `json:"candidateIds,omitempty"`
}

// Handler receives everything the push channel produces. Calls come from the
// client's goroutine, one at a time.
type Handler interface {
	VoteUpdate(u tally.VoteUpdate)
	BulkVoteUpdate(updates []tally.VoteUpdate)
	// Connected runs after every (re)connect, before the subscribe message.
	Connected(ctx context.Context)
	CandidateIDs(ctx context.Context) []string
	// Failed reports a rejected handshake. The client stops redialing after it.
	Failed(err error)
}

type Config struct {
	URL            string
	Token          string
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
}

type Client struct {
	cfg       Config
	h         Handler
	log       *zap.Logger
	connected atomic.Bool
}

func New(cfg Config, h Handler, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Client{cfg: cfg, h: h, log: log}
}

func (c *Client) Connected() bool { return c.connected.Load() }

// Run keeps the push channel up until ctx is cancelled. On cancellation it
// unsubscribes, closes the connection and only then returns.
func (c *Client) Run(ctx context.Context) {
	for {
		err := c.session(ctx)
		c.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, backend.ErrUnauthorized) {
			c.log.Warn("push channel rejected credentials, giving up", zap.Error(err))
			c.h.Failed(err)
			return
		}
		c.log.Warn("push channel disconnected", zap.Error(err), zap.Duration("retry_in", c.cfg.ReconnectDelay))

		t := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	conn, resp, err := websocket.Dial(dialCtx, c.cfg.URL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.cfg.Token}},
	})
	cancel()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("push handshake: HTTP %d: %w", resp.StatusCode, backend.ErrUnauthorized)
		}
		c.log.Warn("push channel error", zap.Error(err))
		return err
	}
	conn.SetReadLimit(1 << 20)

	c.connected.Store(true)
	c.log.Info("push channel connected", zap.String("url", c.cfg.URL))

	c.h.Connected(ctx)
	ids := c.h.CandidateIDs(ctx)
	if err := c.write(ctx, conn, ControlMessage{Type: TypeSubscribe, CandidateIDs: ids}); err != nil {
		conn.CloseNow()
		return err
	}

	// Reads run on their own context: cancelling ctx must not tear the socket
	// down before the unsubscribe goes out.
	readCtx, stopRead := context.WithCancel(context.Background())
	teardownDone := make(chan struct{})
	go func() {
		defer close(teardownDone)
		select {
		case <-ctx.Done():
			wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := c.write(wctx, conn, ControlMessage{Type: TypeUnsubscribe, CandidateIDs: ids}); err != nil {
				c.log.Debug("unsubscribe failed", zap.Error(err))
			}
			cancel()
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
		case <-readCtx.Done():
		}
	}()

	err = c.readLoop(readCtx, conn)
	stopRead()
	<-teardownDone

	if ctx.Err() != nil {
		c.log.Info("push channel closed")
		return nil
	}
	conn.CloseNow()
	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return errors.New("closed by server")
			}
			return err
		}

		single, bulk, ok := backend.DecodePushMessage(data)
		switch {
		case !ok:
			c.log.Debug("ignoring push frame", zap.ByteString("frame", data))
		case single != nil:
			c.h.VoteUpdate(*single)
		default:
			c.h.BulkVoteUpdate(bulk)
		}
	}
}

func (c *Client) write(ctx context.Context, conn *websocket.Conn, msg ControlMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}
