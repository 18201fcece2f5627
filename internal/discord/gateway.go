package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/arqma/arqbot/internal/bot"
)

const (
	gatewayURL    = "wss://gateway.discord.gg/?v=10&encoding=json"
	apiBase       = "https://discord.com/api/v10"
	reconnectBase = 2 * time.Second
	reconnectMax  = 60 * time.Second
	maxPayload    = 8 << 20
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// GUILD_MESSAGES | DIRECT_MESSAGES | MESSAGE_CONTENT
const intents = 1<<9 | 1<<12 | 1<<15

// Close codes after which reconnecting with the same token cannot succeed.
var fatalCloseCodes = map[websocket.StatusCode]string{
	4004: "authentication failed",
	4010: "invalid shard",
	4011: "sharding required",
	4012: "invalid API version",
	4013: "invalid intents",
	4014: "disallowed intents",
}

type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type ready struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

type messageCreate struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Author    struct {
		ID  string `json:"id"`
		Bot bool   `json:"bot"`
	} `json:"author"`
}

// Client answers "!" commands over the Discord gateway and replies through
// the REST API.
type Client struct {
	token      string
	gatewayURL string
	apiBase    string
	router     *bot.Router
	status     *bot.Status
	logger     *slog.Logger
	client     *http.Client
	backoff    time.Duration
	wg         sync.WaitGroup
}

type Option func(*Client)

func WithGatewayURL(u string) Option {
	return func(c *Client) { c.gatewayURL = u }
}

func WithAPIBase(u string) Option {
	return func(c *Client) { c.apiBase = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func WithStatus(s *bot.Status) Option {
	return func(c *Client) { c.status = s }
}

func New(token string, router *bot.Router, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		token:      token,
		gatewayURL: gatewayURL,
		apiBase:    apiBase,
		router:     router,
		logger:     logger.With("platform", bot.Discord.Name),
		client:     &http.Client{Timeout: 15 * time.Second},
		backoff:    reconnectBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FatalError ends Run: the gateway refused the session for a reason a
// reconnect cannot fix.
type FatalError struct {
	Code   websocket.StatusCode
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("discord gateway closed with %d: %s", int(e.Code), e.Reason)
}

// Run keeps a gateway session open until ctx is cancelled, reconnecting
// with exponential backoff. It returns nil on cancellation.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("discord bot starting", "gateway", c.gatewayURL)
	defer c.wg.Wait()

	backoff := c.backoff
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := c.session(ctx)
		c.status.Set(bot.Discord.Name, false)
		if ctx.Err() != nil {
			return nil
		}
		var fatal *FatalError
		if errors.As(err, &fatal) {
			c.logger.Error("discord gateway rejected session", "code", int(fatal.Code), "reason", fatal.Reason)
			return err
		}
		if connected {
			backoff = c.backoff
		}

		c.logger.Warn("discord gateway disconnected, reconnecting...", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = time.Duration(math.Min(float64(backoff*2), float64(reconnectMax)))
	}
}

// session runs one gateway connection. connected reports whether the
// session got as far as READY.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := websocket.Dial(ctx, c.gatewayURL, nil)
	if err != nil {
		return false, fmt.Errorf("ws dial: %w", err)
	}
	defer conn.CloseNow() //nolint:errcheck
	conn.SetReadLimit(maxPayload)

	var p payload
	if err := wsjson.Read(ctx, conn, &p); err != nil {
		return false, c.readError(err)
	}
	if p.Op != opHello {
		return false, fmt.Errorf("expected hello, got op %d", p.Op)
	}
	var h hello
	if err := json.Unmarshal(p.D, &h); err != nil || h.HeartbeatInterval <= 0 {
		return false, fmt.Errorf("bad hello payload: %s", p.D)
	}

	if err := c.identify(ctx, conn); err != nil {
		return false, err
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		seq   atomic.Int64
		acked atomic.Bool
	)
	seq.Store(-1)
	acked.Store(true)
	go c.heartbeat(sessCtx, conn, time.Duration(h.HeartbeatInterval)*time.Millisecond, &seq, &acked)

	for {
		var p payload
		if err := wsjson.Read(sessCtx, conn, &p); err != nil {
			return connected, c.readError(err)
		}
		if p.S != nil {
			seq.Store(*p.S)
		}

		switch p.Op {
		case opDispatch:
			if c.dispatch(ctx, p) {
				connected = true
			}
		case opHeartbeat:
			if err := sendHeartbeat(sessCtx, conn, seq.Load()); err != nil {
				return connected, fmt.Errorf("heartbeat: %w", err)
			}
		case opHeartbeatACK:
			acked.Store(true)
		case opReconnect:
			return connected, errors.New("gateway requested reconnect")
		case opInvalidSession:
			return connected, errors.New("gateway invalidated session")
		}
	}
}

func (c *Client) identify(ctx context.Context, conn *websocket.Conn) error {
	d, _ := json.Marshal(map[string]interface{}{
		"token":   c.token,
		"intents": intents,
		"properties": map[string]string{
			"os":      "linux",
			"browser": "arqbot",
			"device":  "arqbot",
		},
	})
	if err := wsjson.Write(ctx, conn, payload{Op: opIdentify, D: d}); err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	return nil
}

func sendHeartbeat(ctx context.Context, conn *websocket.Conn, seq int64) error {
	d := json.RawMessage("null")
	if seq >= 0 {
		d = json.RawMessage(fmt.Sprintf("%d", seq))
	}
	return wsjson.Write(ctx, conn, payload{Op: opHeartbeat, D: d})
}

// heartbeat beats every interval. A beat without an ACK for the previous one
// means the connection is a zombie, so it is closed to force a reconnect.
func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration, seq *atomic.Int64, acked *atomic.Bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !acked.Swap(false) {
				c.logger.Warn("discord heartbeat not acknowledged, closing connection")
				_ = conn.Close(websocket.StatusCode(4000), "heartbeat timeout")
				return
			}
			if err := sendHeartbeat(ctx, conn, seq.Load()); err != nil {
				c.logger.Warn("discord heartbeat failed", "error", err)
				return
			}
		}
	}
}

// dispatch handles an op 0 event and reports whether it was READY.
func (c *Client) dispatch(ctx context.Context, p payload) bool {
	switch p.T {
	case "READY":
		var r ready
		if err := json.Unmarshal(p.D, &r); err != nil {
			c.logger.Warn("decode READY", "error", err)
		}
		c.status.Set(bot.Discord.Name, true)
		c.logger.Info("discord bot connected", "username", r.User.Username)
		return true
	case "MESSAGE_CREATE":
		var m messageCreate
		if err := json.Unmarshal(p.D, &m); err != nil {
			c.logger.Warn("decode MESSAGE_CREATE", "error", err)
			return false
		}
		if m.Author.Bot || m.ChannelID == "" {
			return false
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handle(ctx, m)
		}()
	}
	return false
}

func (c *Client) readError(err error) error {
	code := websocket.CloseStatus(err)
	if reason, ok := fatalCloseCodes[code]; ok {
		return &FatalError{Code: code, Reason: reason}
	}
	return fmt.Errorf("ws read: %w", err)
}
