package main

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	authcore "github.com/adminkit/authcore"
	promexport "github.com/adminkit/authcore/metrics/export/prometheus"
)

func newRouter(engine *authcore.Engine, exporter *promexport.Exporter, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{engine: engine, logger: logger}

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/verify-email", h.verifyEmail)
		r.Post("/resend-verification", h.resendVerification)
		r.Post("/login", h.login)
		r.Post("/mfa/verify", h.verifyMFA)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.Post("/password-reset/request", h.requestReset)
		r.Post("/password-reset/confirm", h.confirmReset)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", exporter.Handler())

	return r
}

type handlers struct {
	engine *authcore.Engine
	logger *zap.Logger
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}
	if !decode(w, r, &in) {
		return
	}
	u, err := h.engine.Register(r.Context(), authcore.RegisterInput{
		Email:    in.Email,
		Password: in.Password,
		FullName: in.FullName,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": u.ID, "email": u.Email})
}

func (h *handlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := h.engine.VerifyEmail(r.Context(), in.Token); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) resendVerification(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := h.engine.ResendVerification(r.Context(), in.Email); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}
	res, err := h.engine.Login(r.Context(), authcore.LoginInput{
		Email:    in.Email,
		Password: in.Password,
		IP:       clientIP(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if res.MFARequired {
		writeJSON(w, http.StatusOK, map[string]any{
			"mfa_required":    true,
			"challenge_token": res.Challenge.ChallengeToken,
			"expires_at":      res.Challenge.ExpiresAt,
		})
		return
	}
	writeSessionPair(w, res.Session)
}

func (h *handlers) verifyMFA(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ChallengeToken string `json:"challenge_token"`
		Code           string `json:"code"`
	}
	if !decode(w, r, &in) {
		return
	}
	pair, err := h.engine.VerifyMFA(r.Context(), in.ChallengeToken, in.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSessionPair(w, pair)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decode(w, r, &in) {
		return
	}
	pair, err := h.engine.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSessionPair(w, pair)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Logout(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) requestReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := h.engine.RequestPasswordReset(r.Context(), in.Email); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) confirmReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := h.engine.ConfirmPasswordReset(r.Context(), in.Token, in.NewPassword); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}

func writeSessionPair(w http.ResponseWriter, pair *authcore.SessionPair) {
	writeJSON(w, http.StatusOK, map[string]any{
		"session_token": pair.SessionToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.ExpiresAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authcore.ErrInvalidCredentials),
		errors.Is(err, authcore.ErrTokenInvalid),
		errors.Is(err, authcore.ErrMFACodeInvalid),
		errors.Is(err, authcore.ErrMFAChallengeExpired),
		errors.Is(err, authcore.ErrActionTokenInvalid):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, authcore.ErrAccountInactive),
		errors.Is(err, authcore.ErrEmailUnverified),
		errors.Is(err, authcore.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, authcore.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	case errors.Is(err, authcore.ErrDuplicateIdentity):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, authcore.ErrUserNotFound),
		errors.Is(err, authcore.ErrRoleNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, authcore.ErrStateConflict),
		errors.Is(err, authcore.ErrSystemRoleImmutable),
		errors.Is(err, authcore.ErrMFAAlreadyEnabled),
		errors.Is(err, authcore.ErrMFANotEnabled):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
