package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	logauth "github.com/origbo/logware-auth"
)

const refreshCookieName = "refresh_token"

// Handler serves the authentication endpoints.
type Handler struct {
	engine        *logauth.Engine
	log           *slog.Logger
	validate      *validator.Validate
	secureCookies bool
}

// Option adjusts a Handler during construction.
type Option func(*Handler)

// WithLogger sets the request logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithSecureCookies forces the Secure attribute on the refresh cookie even
// when the handler itself terminates plain HTTP (TLS-terminating proxy).
func WithSecureCookies(secure bool) Option {
	return func(h *Handler) { h.secureCookies = secure }
}

// New builds the route mux over the engine.
func New(engine *logauth.Engine, opts ...Option) http.Handler {
	h := &Handler{
		engine:   engine,
		log:      slog.Default(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", h.register)
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("POST /logout", h.logout)
	mux.HandleFunc("POST /refresh-token", h.refresh)
	mux.HandleFunc("POST /forgot-password", h.forgotPassword)
	mux.HandleFunc("POST /reset-password/{token}", h.resetPassword)
	mux.HandleFunc("POST /verify-2fa", h.verifyTwoFactor)
	mux.Handle("PATCH /update-password", h.requireAuth(h.updatePassword))
	mux.Handle("POST /setup-2fa", h.requireAuth(h.setupTwoFactor))
	mux.Handle("POST /enable-2fa", h.requireAuth(h.enableTwoFactor))
	mux.Handle("POST /disable-2fa", h.requireAuth(h.disableTwoFactor))
	mux.Handle("GET /me", h.requireAuth(h.me))

	return h.withRequestContext(mux)
}

// withRequestContext attaches client IP and user agent so engine audit
// events carry them.
func (h *Handler) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logauth.WithClientIP(r.Context(), clientIP(r))
		ctx = logauth.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=user analyst admin superadmin"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	// Self-registration carries no actor role; privileged roles are
	// rejected by the engine unless the caller authenticates as admin.
	input := logauth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     logauth.Role(req.Role),
	}
	if info, err := h.engine.Authenticate(r.Context(), bearerToken(r)); err == nil {
		input.ActorRole = info.Role
	}

	info, err := h.engine.Register(r.Context(), input)
	if err != nil {
		h.log.Info("register rejected", "error", err)
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, envelope{"data": envelope{"user": info}})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.log.Info("login rejected", "error", err)
		writeEngineError(w, err)
		return
	}

	if result.TwoFactorPending {
		writeSuccess(w, http.StatusOK, envelope{
			"require2FA": true,
			"userId":     result.Account.ID,
		})
		return
	}

	h.setRefreshCookie(w, r, result.RefreshToken)
	writeSuccess(w, http.StatusOK, envelope{
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
		"data":         envelope{"user": result.Account},
	})
}

type verifyTwoFactorRequest struct {
	UserID string `json:"userId" validate:"required,uuid4"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
}

func (h *Handler) verifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req verifyTwoFactorRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.engine.VerifyTwoFactorLogin(r.Context(), req.UserID, req.Code)
	if err != nil {
		h.log.Info("2fa verification rejected", "error", err)
		writeEngineError(w, err)
		return
	}

	h.setRefreshCookie(w, r, result.RefreshToken)
	writeSuccess(w, http.StatusOK, envelope{
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
		"data":         envelope{"user": result.Account},
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	tokenValue := ""
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		tokenValue = req.RefreshToken
	}
	if tokenValue == "" {
		if c, err := r.Cookie(refreshCookieName); err == nil {
			tokenValue = c.Value
		}
	}
	if tokenValue == "" {
		writeFail(w, http.StatusUnauthorized, "refresh token required")
		return
	}

	pair, err := h.engine.Refresh(r.Context(), tokenValue)
	if err != nil {
		h.log.Info("refresh rejected", "error", err)
		writeEngineError(w, err)
		return
	}

	h.setRefreshCookie(w, r, pair.RefreshToken)
	writeSuccess(w, http.StatusOK, envelope{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	tokenValue := ""
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		tokenValue = req.RefreshToken
	}
	if tokenValue == "" {
		if c, err := r.Cookie(refreshCookieName); err == nil {
			tokenValue = c.Value
		}
	}

	h.engine.Logout(r.Context(), tokenValue)
	h.clearRefreshCookie(w, r)
	writeSuccess(w, http.StatusOK, nil)
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	// The response is identical whether or not the account exists. Token
	// delivery happens out of band; it is never echoed back here.
	if _, err := h.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.log.Error("reset request failed", "error", err)
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, envelope{
		"message": "if the account exists, a reset link has been sent",
	})
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.engine.ConfirmPasswordReset(r.Context(), r.PathValue("token"), req.Password); err != nil {
		h.log.Info("reset confirmation rejected", "error", err)
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, envelope{"message": "password updated"})
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

func (h *Handler) updatePassword(w http.ResponseWriter, r *http.Request, actor *logauth.AccountInfo) {
	var req updatePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.engine.ChangePassword(r.Context(), actor.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.log.Info("password change rejected", "account", actor.ID, "error", err)
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, envelope{"message": "password updated"})
}

func (h *Handler) setupTwoFactor(w http.ResponseWriter, r *http.Request, actor *logauth.AccountInfo) {
	setup, err := h.engine.SetupTwoFactor(r.Context(), actor.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, envelope{
		"data": envelope{
			"secret": setup.Secret,
			"uri":    setup.URI,
		},
	})
}

type twoFactorCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func (h *Handler) enableTwoFactor(w http.ResponseWriter, r *http.Request, actor *logauth.AccountInfo) {
	var req twoFactorCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.engine.EnableTwoFactor(r.Context(), actor.ID, req.Code); err != nil {
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, envelope{"message": "two-factor enabled"})
}

func (h *Handler) disableTwoFactor(w http.ResponseWriter, r *http.Request, actor *logauth.AccountInfo) {
	var req twoFactorCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.engine.DisableTwoFactor(r.Context(), actor.ID, req.Code); err != nil {
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, envelope{"message": "two-factor disabled"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request, actor *logauth.AccountInfo) {
	writeSuccess(w, http.StatusOK, envelope{"data": envelope{"user": actor}})
}

// decode parses and validates the JSON request body. On failure it writes
// the response itself and reports false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFail(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeFail(w, http.StatusUnprocessableEntity, "invalid field: "+strings.ToLower(verrs[0].Field()))
			return false
		}
		writeFail(w, http.StatusUnprocessableEntity, "invalid request")
		return false
	}
	return true
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, r *http.Request, tokenValue string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    tokenValue,
		Path:     "/",
		MaxAge:   int(h.engine.RefreshTTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   h.secureCookies || r.TLS != nil,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   h.secureCookies || r.TLS != nil,
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return auth[7:]
	}
	return ""
}
