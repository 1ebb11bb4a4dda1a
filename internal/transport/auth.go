package transport

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/observability"
	"github.com/pitabwire/shopdesk/model"
)

// AuthService is the authentication surface used by the API.
type AuthService interface {
	Login(ctx context.Context, email, password string, remember bool) (*model.Session, error)
	Logout(ctx context.Context) error
	Session(ctx context.Context) (*model.Session, error)
	ForgotPassword(ctx context.Context, email string) (bool, error)
	ResetPassword(ctx context.Context, token, password string) (bool, error)
	Register(ctx context.Context, name, email, password string) (*model.Session, error)
}

// RequireSession rejects requests when no admin is signed in and stores the
// session in the context otherwise.
func RequireSession(auth AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := auth.Session(r.Context())
			if err != nil {
				WriteError(w, err)
				return
			}
			if !s.HasRole(model.RoleOwner, model.RoleAdmin) && s.Role != "" {
				WriteError(w, model.NewNotAuthenticatedError("Only Owners and Admins can log in."))
				return
			}
			trace.SpanFromContext(r.Context()).SetAttributes(observability.AttrSubjectID.String(s.SubjectID))
			ctx := model.WithSession(r.Context(), s)
			ctx = observability.WithLogger(ctx, observability.SessionLogger(ctx, observability.LoggerFrom(ctx, zap.NewNop())))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type authHandler struct {
	auth   AuthService
	logger *zap.Logger
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteError(w, model.NewValidationRejectedError("Email and password are required", nil))
		return
	}
	observability.LoggerFrom(r.Context(), h.logger).Debug("login attempt",
		zap.Any("body", observability.Redact(map[string]any{"email": req.Email, "password": req.Password})),
	)

	s, err := h.auth.Login(r.Context(), req.Email, req.Password, req.Remember)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

func (h *authHandler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	s, err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, s)
}

func (h *authHandler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *authHandler) session(w http.ResponseWriter, r *http.Request) {
	s, err := h.auth.Session(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

type resultResponse struct {
	Success bool `json:"success"`
}

func (h *authHandler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	ok, err := h.auth.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resultResponse{Success: ok})
}

func (h *authHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	ok, err := h.auth.ResetPassword(r.Context(), req.Token, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resultResponse{Success: ok})
}
