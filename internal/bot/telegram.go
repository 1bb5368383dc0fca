package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// Telegram allows about 30 messages per second per bot
const sendRate = 30

// Client wraps the Telegram Bot API for sending messages
type Client struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
}

// NewClient creates a new Telegram client with the given bot token
func NewClient(token string) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(sendRate), 1),
	}, nil
}

// Username returns the bot's account name
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// GetUpdates returns a channel for receiving updates from Telegram
func (c *Client) GetUpdates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	return c.api.GetUpdatesChan(u)
}

// StopReceivingUpdates stops the update channel
func (c *Client) StopReceivingUpdates() {
	c.api.StopReceivingUpdates()
}

// SendMessage sends a plain text message to a chat
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, tgbotapi.NewMessage(chatID, text))
}

// SendMarkdown sends a message with MarkdownV2 formatting to a chat
func (c *Client) SendMarkdown(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true
	return c.send(ctx, msg)
}

// SendVideo sends a video with a MarkdownV2 caption. Remote locations are
// passed to Telegram as URLs, anything else is uploaded from disk.
func (c *Client) SendVideo(ctx context.Context, chatID int64, location, caption string) error {
	var file tgbotapi.RequestFileData = tgbotapi.FilePath(location)
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		file = tgbotapi.FileURL(location)
	}
	video := tgbotapi.NewVideo(chatID, file)
	video.Caption = caption
	video.ParseMode = tgbotapi.ModeMarkdownV2
	video.SupportsStreaming = true
	return c.send(ctx, video)
}

func (c *Client) send(ctx context.Context, msg tgbotapi.Chattable) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
