package config

// LLMConfig configures the unified transport's providers (spec §4.2).
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig is one provider's credentials and defaults. APIKey is
// the key the CLI hands to the LLM client (typically an env-expanded
// ${VAR}); the vault is not consulted for LLM credentials.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}

// OAuthConfig configures the PKCE/device-code client registrations the
// oauth manager exchanges against (spec §4.6).
type OAuthConfig struct {
	Providers map[string]OAuthProviderConfig `yaml:"providers"`
}

// OAuthProviderConfig is one OAuth2 client registration.
type OAuthProviderConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	DeviceURL    string   `yaml:"device_url"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}
