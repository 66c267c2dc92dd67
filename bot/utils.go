package bot

import (
	"errors"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iabalyuk/etapy/storage"
)

// Callback answer failures that only mean the user was too quick or too slow
var transientAnswerErrors = []string{
	"query is too old",
	"query is not found",
	"query id is invalid",
	"too many requests",
}

// answerCallbackQuery sends an answer to a callback query. Alert answers pop up
// a dialog instead of a toast.
func (r *Router) answerCallbackQuery(queryID string, text string, alert bool) {
	callback := tgbotapi.NewCallback(queryID, text)
	if alert {
		callback = tgbotapi.NewCallbackWithAlert(queryID, text)
	}
	if _, err := r.api.Request(callback); err != nil {
		if isTooManyRequests(err) || errorContains(err, transientAnswerErrors...) {
			return
		}
		log.Printf("Error answering callback query %s: %v", queryID, err)
	}
}

// deleteMessage removes a message, ignoring failures
func (r *Router) deleteMessage(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := r.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil && r.debug {
		log.Printf("[router] could not delete message %d in chat %d: %v", messageID, chatID, err)
	}
}

// errorText returns the lowercase description of a Telegram error
func errorText(err error) string {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return strings.ToLower(apiErr.Message)
	}
	return strings.ToLower(err.Error())
}

// errorContains reports whether err's description contains any of substrings
func errorContains(err error, substrings ...string) bool {
	if err == nil {
		return false
	}
	text := errorText(err)
	for _, s := range substrings {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func isTooManyRequests(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 429
}

// editorFrom names the user who made a change
func editorFrom(u *tgbotapi.User) storage.Editor {
	if u == nil {
		return storage.Editor{}
	}
	name := strings.TrimSpace(u.FirstName)
	if name == "" {
		name = u.UserName
	}
	return storage.Editor{Name: name, ID: u.ID}
}

// userLocks serializes the updates of one user
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*sync.Mutex)}
}

// lock takes the user's mutex and returns its unlock function
func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
