package bot

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// telegramAPI is the part of *tgbotapi.BotAPI the bot calls
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// limitedAPI spaces outbound calls with one shared limiter
type limitedAPI struct {
	api     telegramAPI
	limiter *rate.Limiter
	ctx     context.Context // cancelled on shutdown so waiting calls give up
}

// newLimitedAPI wraps api with a limiter of perSecond requests and a burst of 5
func newLimitedAPI(ctx context.Context, api telegramAPI, perSecond float64) *limitedAPI {
	if perSecond <= 0 {
		perSecond = 25
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), 5)
	log.Printf("[bot] Telegram rate limiter: %v requests/sec, burst %d", limiter.Limit(), limiter.Burst())
	return &limitedAPI{api: api, limiter: limiter, ctx: ctx}
}

func (l *limitedAPI) wait() error {
	if err := l.limiter.Wait(l.ctx); err != nil {
		if l.ctx.Err() != nil {
			return fmt.Errorf("rate limiter context error: %w", l.ctx.Err())
		}
		return fmt.Errorf("rate limiter error: %w", err)
	}
	return nil
}

func (l *limitedAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := l.wait(); err != nil {
		return tgbotapi.Message{}, err
	}
	return l.api.Send(c)
}

func (l *limitedAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if err := l.wait(); err != nil {
		return nil, err
	}
	return l.api.Request(c)
}
