// Package auth signs the admin in and out and supplies the bearer token used
// by every backend call.
package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/model"
)

// Credentials reads the current token: the persistent store wins over the
// session store. It implements apiclient.TokenSource.
type Credentials struct {
	Persistent CredentialStore
	Session    CredentialStore
}

// Token implements apiclient.TokenSource.
func (c *Credentials) Token(ctx context.Context) (string, error) {
	token, _, err := c.lookup(ctx)
	return token, err
}

func (c *Credentials) lookup(ctx context.Context) (token string, persisted bool, err error) {
	if c.Persistent != nil {
		token, err = c.Persistent.Get(ctx)
		if err != nil {
			return "", false, err
		}
		if token != "" {
			return token, true, nil
		}
	}
	if c.Session != nil {
		token, err = c.Session.Get(ctx)
		if err != nil {
			return "", false, err
		}
	}
	return token, false, nil
}

// Status is the observable state of the auth service.
type Status struct {
	Loading bool                 `json:"loading"`
	Error   *model.ErrorEnvelope `json:"error,omitempty"`
}

// Service performs the authentication calls.
type Service struct {
	client *apiclient.Client
	creds  *Credentials
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	status Status
}

// NewService creates a Service.
func NewService(client *apiclient.Client, creds *Credentials, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, creds: creds, logger: logger, now: time.Now}
}

// Status returns the loading flag and last error.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Token implements apiclient.TokenSource.
func (s *Service) Token(ctx context.Context) (string, error) {
	return s.creds.Token(ctx)
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a token. The token is written to the
// persistent store when remember is set and to the session store otherwise.
func (s *Service) Login(ctx context.Context, email, password string, remember bool) (*model.Session, error) {
	s.begin()
	env, err := s.client.Do(ctx, apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Body:      map[string]string{"email": email, "password": password},
		Anonymous: true,
	})
	if err != nil {
		ee := loginError(env, err)
		s.logger.Warn("login rejected", zap.String("email", email), zap.String("code", ee.Code))
		return nil, s.end(ee)
	}

	var data loginResponse
	if err := env.DecodeData(&data); err != nil || !env.Succeeded() || data.Token == "" {
		return nil, s.end(model.NewUnknownError("Login request failed"))
	}

	sess, err := s.sessionFromToken(data.Token, remember)
	if err != nil {
		return nil, s.end(err)
	}
	if !sess.HasRole(model.RoleOwner, model.RoleAdmin) && sess.Role != "" {
		return nil, s.end(model.NewNotAuthenticatedError("Only Owners and Admins can log in."))
	}

	if remember {
		err = s.creds.Persistent.Set(ctx, data.Token)
	} else {
		if clearErr := s.creds.Persistent.Clear(ctx); clearErr != nil {
			s.logger.Warn("clearing remembered token failed", zap.Error(clearErr))
		}
		err = s.creds.Session.Set(ctx, data.Token)
	}
	if err != nil {
		s.logger.Error("storing token failed", zap.Error(err))
		return nil, s.end(model.NewUnknownError("Could not store credentials"))
	}

	s.logger.Info("signed in", zap.String("subject", sess.SubjectID), zap.Bool("remember", remember))
	s.end(nil)
	return sess, nil
}

func loginError(env *apiclient.Envelope, err error) *model.ErrorEnvelope {
	ee := model.AsEnvelope(err)
	if env == nil {
		return ee
	}
	switch env.HTTPStatus {
	case http.StatusForbidden:
		return model.NewNotAuthenticatedError("Only Owners and Admins can log in.")
	case 0:
		return ee
	}
	msg := env.Message
	if msg == "" {
		msg = "Invalid email or password"
	}
	out := *ee
	out.Message = msg
	return &out
}

// Logout tells the backend and forgets both stored tokens. Backend errors
// are logged and ignored.
func (s *Service) Logout(ctx context.Context) error {
	if _, err := s.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/auth/logout"}); err != nil {
		s.logger.Warn("logout call failed", zap.Error(err))
	}
	errP := s.creds.Persistent.Clear(ctx)
	errS := s.creds.Session.Clear(ctx)
	if err := errors.Join(errP, errS); err != nil {
		s.logger.Error("clearing tokens failed", zap.Error(err))
		return err
	}
	s.logger.Info("signed out")
	return nil
}

// ForgotPassword asks the backend to send a reset link.
func (s *Service) ForgotPassword(ctx context.Context, email string) (bool, error) {
	return s.post(ctx, "/auth/forgot-password", map[string]string{"email": email}, "Failed to send reset link")
}

// ResetPassword sets a new password using a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) (bool, error) {
	return s.post(ctx, "/auth/reset-password", map[string]string{"token": token, "password": password}, "Password reset failed")
}

// Register creates an account and signs in with it. Accounts without the
// Owner or Admin role are created but not signed in.
func (s *Service) Register(ctx context.Context, name, email, password string) (*model.Session, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	var missing []model.FieldError
	for field, v := range map[string]string{"name": name, "email": email, "password": password} {
		if v == "" {
			missing = append(missing, model.FieldError{Field: field, Message: "required"})
		}
	}
	if len(missing) > 0 {
		slices.SortFunc(missing, func(a, b model.FieldError) int { return strings.Compare(a.Field, b.Field) })
		return nil, s.end(model.NewValidationRejectedError("Name, email and password are required", missing))
	}
	ok, err := s.post(ctx, "/auth/register", map[string]string{"name": name, "email": email, "password": password}, "Registration failed")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.end(model.NewUnknownError("Registration failed"))
	}
	s.logger.Info("registered", zap.String("email", email))
	return s.Login(ctx, email, password, false)
}

func (s *Service) post(ctx context.Context, path string, body any, fallback string) (bool, error) {
	s.begin()
	env, err := s.client.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: path, Body: body, Anonymous: true})
	if err != nil {
		ee := model.AsEnvelope(err)
		if env != nil && env.HTTPStatus != 0 && env.Message == "" {
			cp := *ee
			cp.Message = fallback
			ee = &cp
		}
		return false, s.end(ee)
	}
	s.end(nil)
	return env.Succeeded(), nil
}

// Session returns the signed-in session. It fails with NOT_AUTHENTICATED
// when no token is stored or the token has expired.
func (s *Service) Session(ctx context.Context) (*model.Session, error) {
	token, persisted, err := s.creds.lookup(ctx)
	if err != nil {
		return nil, model.NewUnknownError("Could not read credentials")
	}
	if token == "" {
		return nil, model.NewNotAuthenticatedError("")
	}
	sess, err := s.sessionFromToken(token, persisted)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		return nil, model.NewNotAuthenticatedError("Session expired")
	}
	return sess, nil
}

// IsAuthenticated reports whether a valid session exists.
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	_, err := s.Session(ctx)
	return err == nil
}

// sessionFromToken reads the token's claims without verifying the signature;
// the backend verifies it on every call.
func (s *Service) sessionFromToken(token string, persisted bool) (*model.Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, model.NewNotAuthenticatedError("Malformed token")
	}
	sess := &model.Session{Persisted: persisted}
	for _, key := range []string{"sub", "id", "_id", "userId"} {
		if v, ok := claims[key].(string); ok && v != "" {
			sess.SubjectID = v
			break
		}
	}
	sess.Email, _ = claims["email"].(string)
	sess.Role, _ = claims["role"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		sess.ExpiresAt = exp.Time
	}
	return sess, nil
}

func (s *Service) begin() {
	s.mu.Lock()
	s.status = Status{Loading: true}
	s.mu.Unlock()
}

func (s *Service) end(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Loading = false
	if err == nil {
		s.status.Error = nil
		return nil
	}
	s.status.Error = model.AsEnvelope(err)
	return s.status.Error
}
