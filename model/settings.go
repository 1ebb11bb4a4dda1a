package model

// ThemeMode selects the dashboard colour scheme.
type ThemeMode string

const (
	ThemeLight  ThemeMode = "light"
	ThemeDark   ThemeMode = "dark"
	ThemeSystem ThemeMode = "system"
)

// Settings holds the signed-in admin's personal preferences.
type Settings struct {
	Profile       Profile       `json:"profile"`
	Theme         Theme         `json:"theme"`
	Notifications Notifications `json:"notifications"`
	Security      Security      `json:"security"`
}

type Profile struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

type Theme struct {
	Mode         ThemeMode `json:"mode"`
	PrimaryColor string    `json:"primaryColor"`
}

type Notifications struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
	SMS   bool `json:"sms"`
}

type Security struct {
	TwoFactor string `json:"twoFactor"`
}

// DefaultSettings returns the preferences applied on reset.
func DefaultSettings() Settings {
	return Settings{
		Theme:         Theme{Mode: ThemeLight, PrimaryColor: "#4f46e5"},
		Notifications: Notifications{Email: true, Push: true},
		Security:      Security{TwoFactor: "disabled"},
	}
}
