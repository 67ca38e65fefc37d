// Package webhook exposes the bot over HTTP for deployments where
// Telegram pushes updates instead of the bot long polling for them.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	tb "gopkg.in/tucnak/telebot.v2"

	"bybot/logger"
)

// Path is the only route the server exposes
const Path = "/webhook"

// requestTimeout bounds the handling of a single update
const requestTimeout = 30 * time.Second

// UpdateProcessor handles one Telegram update
type UpdateProcessor interface {
	ProcessUpdate(u tb.Update)
}

// Server receives Telegram webhook calls and hands the decoded updates
// to the same processor the long poller would
type Server struct {
	processor UpdateProcessor
	log       logger.Logger
	server    *http.Server
}

// NewServer creates a webhook server listening on addr
func NewServer(addr string, processor UpdateProcessor, log logger.Logger) *Server {
	s := &Server{
		processor: processor,
		log:       log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleUpdate)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
	}

	return s
}

// handleUpdate accepts POSTed Telegram updates. Anything that is not a
// POST with a decodable update body is rejected; Telegram retries on
// its own schedule, so an ack is only sent for updates actually
// handed off.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var update tb.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.log.WithError(err).Warn("rejecting undecodable webhook body")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.processor.ProcessUpdate(update)
	w.WriteHeader(http.StatusOK)
}

// ListenAndServe runs the server until the context is canceled
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.WithField("addr", s.server.Addr).Info("webhook server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

// Handler exposes the HTTP handler, used by tests and serverless
// wrappers that bring their own listener
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
