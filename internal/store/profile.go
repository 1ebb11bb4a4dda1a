package store

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/model"
)

// Profile holds the signed-in user's account profile.
type Profile struct {
	client *apiclient.Client
	logger *zap.Logger
	ops    tracker

	mu      sync.Mutex
	profile model.UserProfile
}

// NewProfile creates the profile store.
func NewProfile(d Deps) *Profile {
	return &Profile{client: d.Client, logger: d.logger().Named("profile")}
}

// profileUser is the backend's user record.
type profileUser struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Thumbnail string `json:"thumbnail"`
	Role      string `json:"role"`
	Phone     string `json:"phone"`
	Bio       string `json:"bio"`
	Country   string `json:"country"`
	City      string `json:"city"`
}

func (u profileUser) profile() model.UserProfile {
	p := model.UserProfile{
		Email:     u.Email,
		Thumbnail: u.Thumbnail,
		Role:      u.Role,
		Phone:     u.Phone,
		Bio:       u.Bio,
		Country:   u.Country,
		City:      u.City,
	}
	if p.Role == "" {
		p.Role = "User"
	}
	p.SplitName(u.Username)
	return p
}

// Fetch loads the profile. On failure the previous profile is kept.
func (p *Profile) Fetch(ctx context.Context) (model.UserProfile, error) {
	p.ops.begin()
	prof, err := p.fetch(ctx)
	return prof, p.ops.end(err)
}

func (p *Profile) fetch(ctx context.Context) (model.UserProfile, error) {
	env, err := p.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/users/profile"})
	if err != nil {
		if model.CodeOf(err) == model.ErrNotAuthenticated {
			return p.Current(), model.NewNotAuthenticatedError("Session expired. Please login again.")
		}
		return p.Current(), err
	}
	var data struct {
		User *profileUser `json:"user"`
	}
	if err := env.DecodeData(&data); err != nil {
		return p.Current(), err
	}
	if data.User == nil {
		return p.Current(), model.NewUnknownError("Failed to fetch profile")
	}
	prof := data.User.profile()
	p.mu.Lock()
	p.profile = prof
	p.mu.Unlock()
	return prof, nil
}

// Save sends the changed profile fields and reloads the profile.
func (p *Profile) Save(ctx context.Context, changes model.Patch) (model.UserProfile, error) {
	if len(changes) == 0 {
		return p.Current(), model.NewValidationRejectedError("Nothing to update", nil)
	}
	p.ops.begin()
	env, err := p.client.Do(ctx, apiclient.Request{Method: http.MethodPut, Path: "/users/profile", Body: changes})
	if err != nil {
		return p.Current(), p.ops.end(withFallback(env, err, "Error updating profile"))
	}
	p.logger.Info("profile saved", zap.Strings("fields", changes.Fields()))
	prof, err := p.fetch(ctx)
	return prof, p.ops.end(err)
}

// UpdateImage points the profile picture at imageURL. The image itself is
// uploaded elsewhere.
func (p *Profile) UpdateImage(ctx context.Context, imageURL string) error {
	imageURL = strings.TrimSpace(imageURL)
	if u, err := url.Parse(imageURL); err != nil || u.Scheme == "" || u.Host == "" {
		return model.NewValidationRejectedError("Invalid image URL", []model.FieldError{
			{Field: "thumbnail", Message: "must be an absolute URL"},
		})
	}
	p.ops.begin()
	env, err := p.client.Do(ctx, apiclient.Request{
		Method: http.MethodPut,
		Path:   "/users/profile/change-img",
		Body:   map[string]string{"thumbnail": imageURL},
	})
	if err != nil {
		return p.ops.end(withFallback(env, err, "Error updating profile picture"))
	}
	p.mu.Lock()
	p.profile.Thumbnail = imageURL
	p.mu.Unlock()
	return p.ops.end(nil)
}

// Current returns the last loaded profile.
func (p *Profile) Current() model.UserProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile
}

// Status returns the loading flag and last error.
func (p *Profile) Status() OpStatus { return p.ops.status() }

// withFallback uses msg when the backend answered without a message of its
// own.
func withFallback(env *apiclient.Envelope, err error, msg string) error {
	ee := *model.AsEnvelope(err)
	if env != nil && env.HTTPStatus != 0 && env.Message == "" {
		ee.Message = msg
	}
	return &ee
}
