package bot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
)

// serveWebhook registers the webhook with Telegram and serves it until ctx is done
func (b *Bot) serveWebhook(ctx context.Context) error {
	wh, err := tgbotapi.NewWebhook(b.cfg.WebhookURL + "/" + b.cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if _, err := b.out.Request(wh); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", b.cfg.Port),
		Handler:           newWebhookRouter(ctx, b.cfg.TelegramToken, b.router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Webhook server shutdown error: %v", err)
		}
	}()

	log.Printf("Webhook server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook server failed: %w", err)
	}
	log.Println("Bot stopped")
	return nil
}

// newWebhookRouter serves POST /{token} for updates and GET /health
func newWebhookRouter(ctx context.Context, token string, router *Router) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/{token}", func(w http.ResponseWriter, req *http.Request) {
		got := mux.Vars(req)["token"]
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.NotFound(w, req)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(req.Body).Decode(&update); err != nil {
			log.Printf("Webhook: bad update body: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		router.HandleUpdate(ctx, update)
		w.WriteHeader(http.StatusOK)
	}).Methods("POST")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return r
}
