package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/arqma/arqbot/internal/bot"
	"github.com/arqma/arqbot/internal/metrics"
)

// SendMessage posts text to a channel. Mentions in the text are not pinged.
func (c *Client) SendMessage(ctx context.Context, channelID, text string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"content":          text,
		"allowed_mentions": map[string][]string{"parse": {}},
	})

	url := fmt.Sprintf("%s/channels/%s/messages", c.apiBase, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/arqma/arqbot, 1.0)")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(data, &errResp)
		return fmt.Errorf("discord API error %d: %s", resp.StatusCode, errResp.Message)
	}
	return nil
}

func (c *Client) handle(ctx context.Context, m messageCreate) {
	msg, ok := c.router.Handle(ctx, bot.Discord, m.Content)
	if !ok {
		return
	}
	for _, chunk := range bot.SplitMessage(msg, bot.DiscordMaxMessage) {
		if err := c.SendMessage(ctx, m.ChannelID, chunk); err != nil {
			metrics.RepliesFailedTotal.WithLabelValues(bot.Discord.Name).Inc()
			c.logger.Error("reply failed", "channel_id", m.ChannelID, "error", err)
			return
		}
	}
}
