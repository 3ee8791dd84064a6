// Package slack implements the notify.Sender for Slack.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/zulandar/semaphore/internal/notify"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTestContext(ctx context.Context) (*slackapi.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
	OpenConversationContext(ctx context.Context, params *slackapi.OpenConversationParameters) (*slackapi.Channel, bool, bool, error)
}

// Sender posts notifications through the Slack Web API. Delivery is
// send-only; no socket connection is held.
type Sender struct {
	client slackClient
}

// Opts holds parameters for creating a Slack Sender.
type Opts struct {
	BotToken string // xoxb-... Slack bot token
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Sender.
func New(opts Opts) (*Sender, error) {
	if opts.Client != nil {
		return &Sender{client: opts.Client}, nil
	}
	if opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	return &Sender{client: slackapi.New(opts.BotToken)}, nil
}

// CheckConnection verifies the token against auth.test.
func (s *Sender) CheckConnection(ctx context.Context) error {
	if _, err := s.client.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	return nil
}

// Send posts a message to a channel.
func (s *Sender) Send(ctx context.Context, channelID string, msg notify.Message) error {
	if channelID == "" {
		return fmt.Errorf("slack: no channel specified")
	}
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := s.client.PostMessageContext(ctx, channelID, buildOptions(msg)...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// SendDirect opens (or reuses) a DM conversation with a user and posts
// the message there.
func (s *Sender) SendDirect(ctx context.Context, userID string, msg notify.Message) error {
	var channel *slackapi.Channel
	err := retryOnRateLimit(ctx, func() error {
		var apiErr error
		channel, _, _, apiErr = s.client.OpenConversationContext(ctx, &slackapi.OpenConversationParameters{
			Users: []string{userID},
		})
		return apiErr
	})
	if err != nil {
		return fmt.Errorf("slack: open dm with %s: %w", userID, err)
	}
	return s.Send(ctx, channel.ID, msg)
}

// Close satisfies notify.Sender. The Web API client holds no connection.
func (s *Sender) Close() error { return nil }

// buildOptions translates a message into Block Kit attachment options.
func buildOptions(msg notify.Message) []slackapi.MsgOption {
	att := slackapi.Attachment{
		Color: msg.Color,
		Title: msg.Title,
		Text:  msg.Body,
	}
	for _, f := range msg.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return []slackapi.MsgOption{slackapi.MsgOptionAttachments(att)}
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err // not a rate limit error, don't retry
		}

		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
