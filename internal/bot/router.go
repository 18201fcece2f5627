package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/arqma/arqbot/internal/metrics"
	"github.com/arqma/arqbot/internal/reply"
	"github.com/arqma/arqbot/internal/stats"
)

// StatsSource is the aggregation surface the commands read from.
type StatsSource interface {
	FetchPools(ctx context.Context) ([]stats.PoolEntry, error)
	FetchNetwork(ctx context.Context) (*stats.NetworkStats, error)
}

// Platform describes how one chat network spells commands and emphasis.
type Platform struct {
	Name   string
	Prefix string
	Style  reply.Style
	// Greets enables the start command.
	Greets bool
}

var (
	Telegram = Platform{Name: "telegram", Prefix: "/", Style: reply.StyleMarkdown, Greets: true}
	Discord  = Platform{Name: "discord", Prefix: "!", Style: reply.StyleBold}
)

// Command is a parsed chat command. Mention holds the "@BotName" suffix
// Telegram appends in group chats, without the "@".
type Command struct {
	Name    string
	Mention string
}

// ParseCommand reads the command in the first word of text. Text that does
// not start with prefix is not a command.
func ParseCommand(prefix, text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return Command{}, false
	}
	word := strings.TrimPrefix(strings.Fields(text)[0], prefix)
	name, mention, _ := strings.Cut(word, "@")
	if name == "" {
		return Command{}, false
	}
	return Command{Name: strings.ToLower(name), Mention: mention}, true
}

// Router turns command names into reply text. It holds no per-command state.
type Router struct {
	stats    StatsSource
	composer *reply.Composer
	logger   *slog.Logger
}

func NewRouter(src StatsSource, composer *reply.Composer, logger *slog.Logger) *Router {
	return &Router{stats: src, composer: composer, logger: logger}
}

// Reply runs the named command for p. It reports false for commands the
// platform does not know, which callers ignore.
func (r *Router) Reply(ctx context.Context, p Platform, name string) (string, bool) {
	var text string
	switch name {
	case "start":
		if !p.Greets {
			return "", false
		}
		text = r.composer.Greeting(p.Prefix)
	case "help", "helpme":
		text = r.composer.Help(p.Style, p.Prefix)
	case "links":
		text = r.composer.Links(p.Style)
	case "pools":
		pools, err := r.stats.FetchPools(ctx)
		if err != nil {
			r.logger.Error("pools command failed", "platform", p.Name, "error", err)
		}
		text = r.composer.Pools(p.Style, pools, err)
	case "network":
		ns, err := r.stats.FetchNetwork(ctx)
		if err != nil {
			r.logger.Error("network command failed", "platform", p.Name, "error", err)
		}
		text = r.composer.Network(p.Style, ns, err)
	default:
		return "", false
	}
	metrics.CommandsTotal.WithLabelValues(p.Name, name).Inc()
	return text, true
}

// Handle parses text and answers it when it is a known command.
func (r *Router) Handle(ctx context.Context, p Platform, text string) (string, bool) {
	cmd, ok := ParseCommand(p.Prefix, text)
	if !ok {
		return "", false
	}
	return r.Reply(ctx, p, cmd.Name)
}
