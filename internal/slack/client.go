package slack

import (
	"context"
	"fmt"
	"time"

	"coincheck-trade-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ClientInterface defines the chat notifier.
type ClientInterface interface {
	PostMessage(ctx context.Context, text string) error
}

// Client posts messages to a Slack incoming webhook.
// Without a webhook URL it only logs the messages.
type Client struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

var _ ClientInterface = (*Client)(nil)

// NewClient creates a new webhook client.
func NewClient(cfg config.Slack, logger *zap.Logger) *Client {
	l := logger.Named("slack")
	if cfg.URL == "" {
		l.Warn("No webhook URL configured, messages are only logged")
	}
	return &Client{
		client: resty.New().SetTimeout(10 * time.Second),
		url:    cfg.URL,
		logger: l,
	}
}

type message struct {
	Text string `json:"text"`
}

// PostMessage sends text to the channel of the webhook.
func (c *Client) PostMessage(ctx context.Context, text string) error {
	if c.url == "" {
		c.logger.Info("Message", zap.String("text", text))
		return nil
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message{Text: text}).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to post message: status %s: %s", resp.Status(), resp.String())
	}
	return nil
}
