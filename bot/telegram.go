package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"car-advisor/utils"
)

// Options configures the Telegram transport.
type Options struct {
	// Client overrides the HTTP client, mainly for tests.
	Client tgbotapi.HTTPClient
	// Endpoint is the Bot API URL template; empty means api.telegram.org.
	Endpoint string
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int
	Logger      *utils.Logger
}

// Bot relays Telegram messages to a Conversation.
type Bot struct {
	api    *tgbotapi.BotAPI
	conv   *Conversation
	opts   Options
	logger *utils.Logger
}

// New authenticates with the Bot API and returns a ready Bot.
func New(token string, conv *Conversation, opts Options) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("bot: TELEGRAM_TOKEN is not set")
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewLogger()
	}
	if opts.Endpoint == "" {
		opts.Endpoint = tgbotapi.APIEndpoint
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30
	}

	var (
		api *tgbotapi.BotAPI
		err error
	)
	if opts.Client != nil {
		api, err = tgbotapi.NewBotAPIWithClient(token, opts.Endpoint, opts.Client)
	} else {
		api, err = tgbotapi.NewBotAPIWithAPIEndpoint(token, opts.Endpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("bot: connect: %w", err)
	}
	opts.Logger.Info("[bot] Authorized as @%s", api.Self.UserName)
	return &Bot{api: api, conv: conv, opts: opts, logger: opts.Logger}, nil
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.opts.PollTimeout
	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("[bot] Polling for updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, upd)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	var replies []string
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			replies = b.conv.Start(chatID)
		default:
			replies = []string{"❓ Sorry, I didn't understand that command."}
		}
	} else {
		replies = b.conv.Handle(ctx, chatID, msg.Text)
	}

	for _, text := range replies {
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			b.logger.Warn("[bot] Send to chat %d failed: %v", chatID, err)
		}
	}
}
