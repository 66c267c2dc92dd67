package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iabalyuk/etapy/session"
	"github.com/iabalyuk/etapy/storage"
)

// fakeAPI records every call and hands out increasing message ids
type fakeAPI struct {
	mu      sync.Mutex
	nextID  int
	sent    []tgbotapi.MessageConfig
	sentIDs []int
	edits   []tgbotapi.EditMessageTextConfig
	deleted []int
	answers []tgbotapi.CallbackConfig
	content map[int]string // live messages by id
	editErr error
	sendErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{nextID: 100, content: make(map[int]string)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch m := c.(type) {
	case tgbotapi.EditMessageTextConfig:
		f.edits = append(f.edits, m)
		if f.editErr != nil {
			return tgbotapi.Message{}, f.editErr
		}
		old, ok := f.content[m.MessageID]
		if !ok {
			return tgbotapi.Message{}, &tgbotapi.Error{Code: 400, Message: "Bad Request: message to edit not found"}
		}
		if old == m.Text {
			return tgbotapi.Message{}, &tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified: specified new message content and reply markup are exactly the same"}
		}
		f.content[m.MessageID] = m.Text
		return tgbotapi.Message{MessageID: m.MessageID}, nil
	case tgbotapi.MessageConfig:
		if f.sendErr != nil {
			return tgbotapi.Message{}, f.sendErr
		}
		f.nextID++
		f.sent = append(f.sent, m)
		f.sentIDs = append(f.sentIDs, f.nextID)
		f.content[f.nextID] = m.Text
		return tgbotapi.Message{MessageID: f.nextID}, nil
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch m := c.(type) {
	case tgbotapi.DeleteMessageConfig:
		f.deleted = append(f.deleted, m.MessageID)
		delete(f.content, m.MessageID)
	case tgbotapi.CallbackConfig:
		f.answers = append(f.answers, m)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// panels counts live messages that carry a keyboard
func (f *fakeAPI) panels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for i, m := range f.sent {
		if _, live := f.content[f.sentIDs[i]]; live && m.ReplyMarkup != nil {
			n++
		}
	}
	return n
}

func (f *fakeAPI) text(id int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content[id]
}

func (f *fakeAPI) lastAnswer() tgbotapi.CallbackConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return tgbotapi.CallbackConfig{}
	}
	return f.answers[len(f.answers)-1]
}

func (f *fakeAPI) counts() (sent, edits int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent), len(f.edits)
}

const (
	testUser = int64(42)
	testChat = int64(4200)
)

type harness struct {
	t        *testing.T
	api      *fakeAPI
	store    *storage.Storage
	sessions *session.Store
	router   *Router
	seq      int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sessions, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	api := newFakeAPI()
	store := storage.New()
	r := NewRouter(api, store, sessions, false)
	r.now = func() time.Time { return time.Date(2025, 8, 14, 10, 0, 0, 0, time.UTC) }
	return &harness{t: t, api: api, store: store, sessions: sessions, router: r}
}

func (h *harness) user() *tgbotapi.User {
	return &tgbotapi.User{ID: testUser, FirstName: "Anna"}
}

func (h *harness) chat() *tgbotapi.Chat {
	return &tgbotapi.Chat{ID: testChat}
}

func (h *harness) command(name string) {
	h.seq++
	text := "/" + name
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10000 + h.seq,
		From:      h.user(),
		Chat:      h.chat(),
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}})
}

func (h *harness) text(s string) {
	h.seq++
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10000 + h.seq,
		From:      h.user(),
		Chat:      h.chat(),
		Text:      s,
	}})
}

func (h *harness) photo(fileIDs ...string) {
	h.seq++
	sizes := make([]tgbotapi.PhotoSize, 0, len(fileIDs))
	for _, id := range fileIDs {
		sizes = append(sizes, tgbotapi.PhotoSize{FileID: id})
	}
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10000 + h.seq,
		From:      h.user(),
		Chat:      h.chat(),
		Photo:     sizes,
	}})
}

func (h *harness) click(data string) {
	h.seq++
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "q" + data,
		From:    h.user(),
		Message: &tgbotapi.Message{MessageID: h.session().PanelMessageID, Chat: h.chat()},
		Data:    data,
	}})
}

func (h *harness) session() session.Session {
	return h.sessions.Load(testUser)
}

// panelText is the text of the user's current panel
func (h *harness) panelText() string {
	return h.api.text(h.session().PanelMessageID)
}
