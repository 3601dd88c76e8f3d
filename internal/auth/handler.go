package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/pawhub/pawhub/internal/platform/errutil"
	"github.com/pawhub/pawhub/internal/platform/httpx"
	"github.com/pawhub/pawhub/internal/shared"
)

// RateLimit bounds requests per client IP on the rate-sensitive routes.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Handler exposes the auth operations as JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	limit     RateLimit
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, limit RateLimit) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if limit.Requests <= 0 {
		limit.Requests = 10
	}
	if limit.Window <= 0 {
		limit.Window = time.Minute
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{logger: logger, service: service, validator: v, limit: limit}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(h.limit.Requests, h.limit.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
		}),
	)

	r.Post("/refresh", h.handleRefresh)
	r.With(RequireAccessToken(h.service)).Post("/logout", h.handleLogout)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/register", h.handleRegister)
		gr.Post("/login", h.handleLogin)
		gr.Post("/forgot-password", h.handleForgotPassword)
		gr.Post("/reset-password", h.handleResetPassword)
		gr.Post("/verify-email", h.handleVerifyEmail)
		gr.Get("/verify-email", h.handleVerifyEmail)
		gr.Post("/resend-verification", h.handleResendVerification)
	})
}

type registerRequest struct {
	Email         string `json:"email" validate:"required,email,max=254"`
	Username      string `json:"username" validate:"required,min=3,max=32"`
	Password      string `json:"password" validate:"required,min=6,max=72"`
	FirstName     string `json:"firstName" validate:"max=100"`
	LastName      string `json:"lastName" validate:"max=100"`
	Role          Role   `json:"role" validate:"omitempty,oneof=owner provider"`
	TermsAccepted bool   `json:"termsAccepted"`
	Phone         string `json:"phone" validate:"omitempty,e164"`
	AvatarURL     string `json:"avatarUrl" validate:"omitempty,url,max=2048"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

type verifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

type messageResponse struct {
	Message string      `json:"message"`
	User    *PublicUser `json:"user,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Register(r.Context(), RegisterInput{
		Email:         req.Email,
		Username:      req.Username,
		Password:      req.Password,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Role:          req.Role,
		TermsAccepted: req.TermsAccepted,
		Phone:         req.Phone,
		AvatarURL:     req.AvatarURL,
	})
	if err != nil {
		h.respondError(w, "register", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, "login", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair, err := h.service.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(w, "refresh", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pair)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), shared.UserIDFromContext(r.Context())); err != nil {
		h.respondError(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	msg, err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.respondError(w, "forgot_password", err)
		return
	}
	httpx.JSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.respondError(w, "reset_password", err)
		return
	}
	httpx.JSON(w, http.StatusOK, messageResponse{Message: "password has been reset"})
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if r.Method == http.MethodGet {
		req.Token = r.URL.Query().Get("token")
		if !h.validate(w, &req) {
			return
		}
	} else if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		h.respondError(w, "verify_email", err)
		return
	}
	httpx.JSON(w, http.StatusOK, messageResponse{Message: "email verified", User: user})
}

func (h *Handler) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ResendVerificationEmail(r.Context(), req.Email); err != nil {
		h.respondError(w, "resend_verification", err)
		return
	}
	httpx.JSON(w, http.StatusOK, messageResponse{Message: "verification email sent"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return h.validate(w, target)
}

func (h *Handler) validate(w http.ResponseWriter, target any) bool {
	err := h.validator.Struct(target)
	if err == nil {
		return true
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		httpx.RespondError(w, err)
		return false
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		fields[fieldErr.Field()] = validationMessage(fieldErr)
	}
	httpx.ValidationProblem(w, fields)
	return false
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "e164":
		return "must be an E.164 phone number"
	case "url":
		return "must be a valid URL"
	}
	return "is invalid"
}

func (h *Handler) respondError(w http.ResponseWriter, operation string, err error) {
	status := httpx.StatusOf(err)
	switch {
	case status >= http.StatusInternalServerError:
		errutil.LogError(h.logger, operation+" failed", err)
	case status == http.StatusTooManyRequests:
		h.logger.Warn(operation+" throttled", slog.String("error", err.Error()))
	}
	httpx.RespondError(w, err)
}
