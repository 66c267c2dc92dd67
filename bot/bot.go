package bot

import (
	"context"
	"fmt"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iabalyuk/etapy/config"
	"github.com/iabalyuk/etapy/session"
	"github.com/iabalyuk/etapy/storage"
)

// Bot represents the Telegram bot serving the construction progress panel
type Bot struct {
	api    *tgbotapi.BotAPI
	out    *limitedAPI
	router *Router
	cfg    *config.Config
	wg     sync.WaitGroup
}

// New creates a new bot instance. ctx bounds every outbound call.
func New(ctx context.Context, cfg *config.Config, store storage.StorageInterface, sessions *session.Store) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = cfg.Debug

	out := newLimitedAPI(ctx, api, cfg.TelegramRate)
	return &Bot{
		api:    api,
		out:    out,
		router: NewRouter(out, store, sessions, cfg.Debug),
		cfg:    cfg,
	}, nil
}

// Start registers the command menu and receives updates until ctx is done
func (b *Bot) Start(ctx context.Context) error {
	log.Printf("Bot started: @%s", b.api.Self.UserName)

	commands := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Open the projects panel"},
		tgbotapi.BotCommand{Command: "help", Description: "Help"},
		tgbotapi.BotCommand{Command: "cancel", Description: "Close the panel"},
	)
	if _, err := b.out.Request(commands); err != nil {
		log.Printf("Warning: failed to set bot commands: %v", err)
	}

	if b.cfg.UsesWebhook() {
		return b.serveWebhook(ctx)
	}
	return b.poll(ctx)
}

// poll receives updates by long polling. Each update runs in its own
// goroutine; the router keeps one user's updates in order.
func (b *Bot) poll(ctx context.Context) error {
	if _, err := b.out.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.Printf("Warning: failed to delete webhook: %v", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Println("Bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("Panic while handling update %d: %v", update.UpdateID, rec)
			}
		}()
		b.router.HandleUpdate(ctx, update)
	}()
}
