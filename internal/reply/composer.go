package reply

import (
	"fmt"
	"strings"

	"github.com/arqma/arqbot/internal/stats"
)

// Fixed user-facing failure texts. Upstream details never reach users.
const (
	PoolsFailure   = "Failed to fetch pool data."
	NetworkFailure = "Failed to fetch network, emission, or price data."
	NoPools        = "No pools reported."
)

// Style is the emphasis dialect of a chat platform.
type Style int

const (
	// StyleMarkdown is Telegram's legacy Markdown: *bold*.
	StyleMarkdown Style = iota
	// StyleBold is Discord's **bold**.
	StyleBold
)

func (s Style) String() string {
	switch s {
	case StyleMarkdown:
		return "markdown"
	case StyleBold:
		return "bold"
	default:
		return fmt.Sprintf("Style(%d)", int(s))
	}
}

func (s Style) marker() string {
	if s == StyleBold {
		return "**"
	}
	return "*"
}

// Emphasis wraps text in the style's bold markers.
func (s Style) Emphasis(text string) string {
	m := s.marker()
	return m + text + m
}

var (
	markdownEscaper = strings.NewReplacer(`_`, `\_`, `*`, `\*`, "`", "\\`", `[`, `\[`)
	boldEscaper     = strings.NewReplacer(`\`, `\\`, `_`, `\_`, `*`, `\*`, "`", "\\`", `~`, `\~`, `|`, `\|`)
)

// Escape neutralizes markup characters in upstream-provided text.
func (s Style) Escape(text string) string {
	if s == StyleBold {
		return boldEscaper.Replace(text)
	}
	return markdownEscaper.Replace(text)
}

// EmphasisEscaped emphasizes upstream-provided text. Legacy Markdown does not
// honor escapes inside an entity, so the bold is closed before each markup
// character and reopened after it.
func (s Style) EmphasisEscaped(text string) string {
	if s == StyleBold {
		return s.Emphasis(s.Escape(text))
	}

	var b, run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			b.WriteString(s.Emphasis(run.String()))
			run.Reset()
		}
	}
	for _, r := range text {
		if strings.ContainsRune("_*`[", r) {
			flush()
			b.WriteByte('\\')
			b.WriteRune(r)
			continue
		}
		run.WriteRune(r)
	}
	flush()
	return b.String()
}

// Coin names the currency in headers and emission lines.
type Coin struct {
	Name     string
	Ticker   string
	Exchange string
}

func DefaultCoin() Coin {
	return Coin{Name: "Arqma", Ticker: "ARQ", Exchange: "TO"}
}

// Composer renders stats into chat text. Both styles share one template so
// the platforms can only differ in emphasis syntax.
type Composer struct {
	coin    Coin
	content Content
}

func New(coin Coin, content Content) *Composer {
	return &Composer{coin: coin, content: content}
}

// Network renders a complete NetworkStats or the fixed failure text.
func (c *Composer) Network(style Style, ns *stats.NetworkStats, err error) string {
	if err != nil || ns == nil {
		return NetworkFailure
	}

	var b strings.Builder
	b.WriteString("🔗 " + style.Emphasis(c.coin.Name+" Network Stats") + "\n\n")
	fmt.Fprintf(&b, "📊 %s: %s\n", style.Emphasis("Network Height"), ns.Network.Height)
	fmt.Fprintf(&b, "💻 %s: %s\n", style.Emphasis("Network Hashrate"), stats.FormatNetworkHashrate(ns.Network.HashrateMHs))
	fmt.Fprintf(&b, "⚙️ %s: %s\n", style.Emphasis("Network Difficulty"), ns.Network.Difficulty)
	fmt.Fprintf(&b, "🪙 %s: %s %s\n", style.Emphasis("Total Emission (Coinbase)"), ns.Emission.Display, c.coin.Ticker)
	fmt.Fprintf(&b, "💰 %s: %s BTC (%d sat)\n", style.Emphasis(c.coin.Exchange+" Price"), ns.Price.BTC, ns.Price.Sat)
	return b.String()
}

// Pools renders the ordered pool list or the fixed failure text.
func (c *Composer) Pools(style Style, pools []stats.PoolEntry, err error) string {
	if err != nil {
		return PoolsFailure
	}

	var b strings.Builder
	b.WriteString("🔗 " + style.Emphasis(c.coin.Name+" Pools") + "\n\n")
	if len(pools) == 0 {
		b.WriteString(NoPools)
		return b.String()
	}
	lines := make([]string, 0, len(pools))
	for _, p := range pools {
		lines = append(lines, fmt.Sprintf("⛏️ %s: %s", style.EmphasisEscaped(p.Name), p.HashrateDisplay))
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

// Help lists the commands with the platform's prefix ("/" or "!").
func (c *Composer) Help(style Style, prefix string) string {
	var b strings.Builder
	b.WriteString("📜 " + style.Emphasis(c.content.HelpTitle) + "\n\n")
	for _, cmd := range c.content.Commands {
		fmt.Fprintf(&b, "%s %s%s - %s\n", cmd.Emoji, prefix, cmd.Name, c.expand(cmd.Description, prefix))
	}
	return b.String()
}

func (c *Composer) Links(style Style) string {
	var b strings.Builder
	b.WriteString("🔗 " + style.Emphasis(c.content.LinksTitle) + "\n\n")
	for _, l := range c.content.Links {
		fmt.Fprintf(&b, "%s [%s](%s)\n", l.Emoji, l.Name, l.URL)
	}
	return b.String()
}

func (c *Composer) Greeting(prefix string) string {
	return c.expand(c.content.Greeting, prefix)
}

func (c *Composer) expand(s, prefix string) string {
	return strings.NewReplacer("{coin}", c.coin.Name, "{prefix}", prefix).Replace(s)
}
