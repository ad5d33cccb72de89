package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/digest-cli/internal/model"
	"github.com/sells-group/digest-cli/internal/subscription"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the subscription API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sender, err := initSender(cfg)
		if err != nil {
			return err
		}
		synth, _ := initSynthesizer(cfg)
		svc := initService(cfg, st, synth, sender)

		return startServer(ctx, buildMux(svc, cfg.Server.AllowedOrigins), resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer serves handler until ctx is done, then shuts down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return nil
}

// subscriber is the part of subscription.Service the API drives.
type subscriber interface {
	Subscribe(ctx context.Context, email string, topics []string) error
	Verify(ctx context.Context, email, code string) error
	State(ctx context.Context, email string) (model.SubscriptionState, error)
}

type subscribeRequest struct {
	Email  string   `json:"email"`
	Topics []string `json:"topics"`
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type errorResponse struct {
	Error         string   `json:"error"`
	InvalidTopics []string `json:"invalid_topics,omitempty"`
	Hint          string   `json:"hint,omitempty"`
}

// buildMux routes the subscription API. svc may be nil, in which case only
// /health is served.
func buildMux(svc subscriber, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if svc == nil {
		return r
	}

	r.Post("/subscribe", func(w http.ResponseWriter, req *http.Request) {
		var body subscribeRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		if err := svc.Subscribe(req.Context(), body.Email, body.Topics); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "otp_sent"})
	})

	r.Post("/verify", func(w http.ResponseWriter, req *http.Request) {
		var body verifyRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		if err := svc.Verify(req.Context(), body.Email, body.OTP); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(model.StateVerified)})
	})

	r.Get("/subscriptions/{email}", func(w http.ResponseWriter, req *http.Request) {
		email := chi.URLParam(req, "email")
		state, err := svc.State(req.Context(), email)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"email": email, "state": string(state)})
	})

	return r
}

// writeError maps the failure taxonomy onto status codes.
func writeError(w http.ResponseWriter, err error) {
	var verr *subscription.ValidationError
	switch {
	case errors.As(err, &verr):
		hint := "check the email address and topics and submit again"
		if len(verr.InvalidTopics) > 0 {
			hint = "please enter valid English topics or concepts"
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:         verr.Reason,
			InvalidTopics: verr.InvalidTopics,
			Hint:          hint,
		})
	case errors.Is(err, subscription.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "user not found", Hint: "subscribe first"})
	case errors.Is(err, subscription.ErrExpired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "code expired", Hint: "subscribe again to get a new code"})
	case model.IsKind(err, model.KindAuth):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid code", Hint: "check the code and try again"})
	case model.IsKind(err, model.KindValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case model.IsKind(err, model.KindDelivery):
		zap.L().Error("api: delivery failure", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "could not send email", Hint: "try again later"})
	default:
		zap.L().Error("api: internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
