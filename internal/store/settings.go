package store

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/model"
)

// Settings holds the signed-in admin's preferences. Edits are local until
// Save.
type Settings struct {
	client *apiclient.Client
	logger *zap.Logger
	ops    tracker

	mu       sync.Mutex
	settings model.Settings
}

// NewSettings creates the settings store initialised to the defaults.
func NewSettings(d Deps) *Settings {
	return &Settings{
		client:   d.Client,
		logger:   d.logger().Named("settings"),
		settings: model.DefaultSettings(),
	}
}

// Current returns the local settings.
func (s *Settings) Current() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Apply overlays p, e.g. {"theme": {"mode": "dark"}}. Nested sections are
// merged field by field.
func (s *Settings) Apply(p model.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.settings
	if err := model.MergePatch(&next, p); err != nil {
		return model.NewValidationRejectedError(err.Error(), nil)
	}
	if err := validateSettings(next); err != nil {
		return err
	}
	s.settings = next
	return nil
}

type settingsData struct {
	Settings *model.Settings `json:"settings"`
}

// Fetch loads the settings from the backend.
func (s *Settings) Fetch(ctx context.Context) (model.Settings, error) {
	s.ops.begin()
	env, err := s.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/settings"})
	if err != nil {
		return s.Current(), s.ops.end(err)
	}
	return s.adopt(env, "Failed to fetch settings")
}

// Save sends the local settings and adopts the backend's copy.
func (s *Settings) Save(ctx context.Context) (model.Settings, error) {
	s.ops.begin()
	env, err := s.client.Do(ctx, apiclient.Request{Method: http.MethodPatch, Path: "/settings", Body: s.Current()})
	if err != nil {
		return s.Current(), s.ops.end(err)
	}
	s.logger.Info("settings saved")
	return s.adopt(env, "Failed to save settings")
}

// Reset restores the default preferences, keeping the profile, and saves
// them.
func (s *Settings) Reset(ctx context.Context) (model.Settings, error) {
	s.mu.Lock()
	profile := s.settings.Profile
	s.settings = model.DefaultSettings()
	s.settings.Profile = profile
	s.mu.Unlock()
	return s.Save(ctx)
}

// Status returns the loading flag and last error of Fetch and Save.
func (s *Settings) Status() OpStatus { return s.ops.status() }

func (s *Settings) adopt(env *apiclient.Envelope, failure string) (model.Settings, error) {
	var data settingsData
	if err := env.DecodeData(&data); err != nil {
		return s.Current(), s.ops.end(err)
	}
	if data.Settings == nil {
		return s.Current(), s.ops.end(model.NewUnknownError(failure))
	}
	s.mu.Lock()
	s.settings = *data.Settings
	s.mu.Unlock()
	return *data.Settings, s.ops.end(nil)
}

func validateSettings(st model.Settings) error {
	switch st.Theme.Mode {
	case model.ThemeLight, model.ThemeDark, model.ThemeSystem:
	default:
		return model.NewValidationRejectedError(fmt.Sprintf("Unknown theme mode %q", st.Theme.Mode), []model.FieldError{
			{Field: "theme.mode", Message: "must be light, dark or system"},
		})
	}
	return nil
}
