package bot

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iabalyuk/etapy/panel"
)

func TestSticky_Reconcile(t *testing.T) {
	view := panel.Help()

	tests := []struct {
		name      string
		setup     func(f *fakeAPI) int // returns the known panel id
		wantSame  bool                 // id kept
		wantSends int
		wantErr   bool
	}{
		{
			name:      "no panel sends a new one",
			setup:     func(f *fakeAPI) int { return 0 },
			wantSends: 1,
		},
		{
			name: "existing panel is edited in place",
			setup: func(f *fakeAPI) int {
				f.content[7] = "old text"
				return 7
			},
			wantSame: true,
		},
		{
			name: "unchanged content is a success",
			setup: func(f *fakeAPI) int {
				f.content[7] = view.Text
				return 7
			},
			wantSame: true,
		},
		{
			name:      "deleted panel is replaced",
			setup:     func(f *fakeAPI) int { return 7 },
			wantSends: 1,
		},
		{
			name: "uneditable panel is replaced",
			setup: func(f *fakeAPI) int {
				f.editErr = &tgbotapi.Error{Code: 400, Message: "Bad Request: message can't be edited"}
				return 7
			},
			wantSends: 1,
		},
		{
			name: "chat not found is replaced",
			setup: func(f *fakeAPI) int {
				f.editErr = &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
				return 7
			},
			wantSends: 1,
		},
		{
			name: "other API error never duplicates",
			setup: func(f *fakeAPI) int {
				f.editErr = &tgbotapi.Error{Code: 400, Message: "Bad Request: can't parse entities"}
				return 7
			},
			wantSame: true,
			wantErr:  true,
		},
		{
			name: "rate limit never duplicates",
			setup: func(f *fakeAPI) int {
				f.editErr = &tgbotapi.Error{Code: 429, Message: "Too Many Requests: retry after 3"}
				return 7
			},
			wantSame: true,
			wantErr:  true,
		},
		{
			name: "network error never duplicates",
			setup: func(f *fakeAPI) int {
				f.editErr = errors.New("dial tcp: connection refused")
				return 7
			},
			wantSame: true,
			wantErr:  true,
		},
		{
			name: "failed send keeps the old id",
			setup: func(f *fakeAPI) int {
				f.sendErr = errors.New("connection reset")
				return 7
			},
			wantSame: true,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeAPI()
			known := tt.setup(f)
			s := NewSticky(f, false)

			got, err := s.Reconcile(testChat, known, view)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Reconcile error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantSame && got != known {
				t.Fatalf("panel id = %d, want unchanged %d", got, known)
			}
			if !tt.wantSame && got == known {
				t.Fatalf("panel id = %d, want a new id", got)
			}
			if sends, _ := f.counts(); sends != tt.wantSends {
				t.Fatalf("sent %d messages, want %d", sends, tt.wantSends)
			}
			if tt.wantSends == 1 {
				if f.sent[0].ParseMode != tgbotapi.ModeHTML {
					t.Errorf("ParseMode = %q, want HTML", f.sent[0].ParseMode)
				}
				if f.text(got) != view.Text {
					t.Errorf("new panel text = %q", f.text(got))
				}
			}
		})
	}
}

func TestSticky_RepeatedRenderIsNoop(t *testing.T) {
	f := newFakeAPI()
	s := NewSticky(f, false)

	id, err := s.Reconcile(testChat, 0, panel.Help())
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := s.Reconcile(testChat, id, panel.Help())
		if err != nil || again != id {
			t.Fatalf("Reconcile #%d = %d, %v; want %d, nil", i, again, err, id)
		}
	}
	if sends, _ := f.counts(); sends != 1 {
		t.Fatalf("sent %d messages, want 1", sends)
	}
}
