package bot

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iabalyuk/etapy/panel"
)

// Edit failures after which the panel is gone for good and a new one is sent
var panelGoneErrors = []string{
	"message to edit not found",
	"message identifier is not specified",
	"chat not found",
	"message can't be edited",
}

// Sticky keeps exactly one evolving panel message per chat
type Sticky struct {
	api   telegramAPI
	debug bool
}

// NewSticky creates a sticky controller on top of api
func NewSticky(api telegramAPI, debug bool) *Sticky {
	return &Sticky{api: api, debug: debug}
}

// Reconcile shows view in chatID. panelID is the known panel message, or 0.
// It returns the id of the panel that now shows view. When the edit fails for
// any reason other than the panel being gone, the old id is returned together
// with the error and nothing new is sent.
func (s *Sticky) Reconcile(chatID int64, panelID int, view panel.View) (int, error) {
	if panelID != 0 {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, panelID, view.Text, view.Keyboard)
		edit.ParseMode = tgbotapi.ModeHTML
		edit.DisableWebPagePreview = true

		_, err := s.api.Send(edit)
		if err == nil {
			return panelID, nil
		}
		switch {
		case errorContains(err, "message is not modified"):
			if s.debug {
				log.Printf("[sticky] chat %d: panel %d unchanged", chatID, panelID)
			}
			return panelID, nil
		case errorContains(err, panelGoneErrors...):
			log.Printf("[sticky] chat %d: panel %d is gone (%v), sending a new one", chatID, panelID, err)
		default:
			return panelID, fmt.Errorf("failed to edit panel %d: %w", panelID, err)
		}
	}

	msg := tgbotapi.NewMessage(chatID, view.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = view.Keyboard

	sent, err := s.api.Send(msg)
	if err != nil {
		return panelID, fmt.Errorf("failed to send panel: %w", err)
	}
	return sent.MessageID, nil
}
