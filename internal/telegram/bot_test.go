package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arqma/arqbot/internal/bot"
	"github.com/arqma/arqbot/internal/reply"
	"github.com/arqma/arqbot/internal/stats"
)

type fakeStats struct{}

func (fakeStats) FetchPools(context.Context) ([]stats.PoolEntry, error) {
	return []stats.PoolEntry{{Name: "solo", Hashrate: 1_000_000, HashrateDisplay: "1.00 MH/s"}}, nil
}

func (fakeStats) FetchNetwork(context.Context) (*stats.NetworkStats, error) {
	return nil, fmt.Errorf("down")
}

func testRouter() *bot.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return bot.NewRouter(fakeStats{}, reply.New(reply.DefaultCoin(), reply.DefaultContent()), logger)
}

type sent struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func fakeAPI(t *testing.T, updates string) (*httptest.Server, <-chan sent) {
	t.Helper()
	out := make(chan sent, 10)
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/botTOKEN/getMe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"username":"ArqmaBot"}}`)
	})
	mux.HandleFunc("/botTOKEN/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			fmt.Fprintf(w, `{"ok":true,"result":%s}`, updates)
			return
		}
		if r.URL.Query().Get("offset") != "13" {
			t.Errorf("getUpdates offset = %q, want 13", r.URL.Query().Get("offset"))
		}
		select {
		case <-r.Context().Done():
		case <-time.After(20 * time.Millisecond):
		}
		fmt.Fprint(w, `{"ok":true,"result":[]}`)
	})
	mux.HandleFunc("/botTOKEN/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var s sent
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			t.Errorf("decode sendMessage: %v", err)
		}
		out <- s
		fmt.Fprint(w, `{"ok":true,"result":{}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, out
}

func TestRunAnswersCommands(t *testing.T) {
	updates := `[
		{"update_id":10,"message":{"chat":{"id":42},"text":"/pools@ArqmaBot"}},
		{"update_id":11,"message":{"chat":{"id":42},"text":"/pools@SomeOtherBot"}},
		{"update_id":12,"message":{"chat":{"id":42},"text":"just chatting"}}
	]`
	srv, out := fakeAPI(t, updates)

	status := bot.NewStatus()
	b := NewBot("TOKEN", testRouter(), slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithBaseURL(srv.URL), WithClient(srv.Client()), WithStatus(status))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	select {
	case s := <-out:
		if s.ChatID != 42 || s.ParseMode != "Markdown" {
			t.Errorf("sendMessage = %+v, want chat 42 with Markdown", s)
		}
		if !strings.HasPrefix(s.Text, "🔗 *Arqma Pools*") {
			t.Errorf("reply text = %q", s.Text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reply sent")
	}
	if !status.Ready() {
		t.Error("status not ready while polling")
	}

	select {
	case s := <-out:
		t.Errorf("unexpected extra reply %+v", s)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if status.Ready() {
		t.Error("status still ready after stop")
	}
}

func TestRunRejectsBadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"ok":false,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	status := bot.NewStatus()
	b := NewBot("BAD", testRouter(), slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithBaseURL(srv.URL), WithStatus(status))

	err := b.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Unauthorized") {
		t.Errorf("Run() = %v, want Unauthorized error", err)
	}
	if status.Ready() {
		t.Error("status ready after failed start")
	}
}

func TestSendMessageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"ok":false,"description":"Bad Request: can't parse entities"}`)
	}))
	defer srv.Close()

	b := NewBot("TOKEN", testRouter(), slog.New(slog.NewTextHandler(io.Discard, nil)), WithBaseURL(srv.URL))
	err := b.SendMessage(context.Background(), 1, "*broken")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("SendMessage() = %v, want 400 error", err)
	}
}
