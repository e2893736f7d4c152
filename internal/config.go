package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/zettel/internal/classifier"
	"github.com/starford/zettel/internal/enrich"
	"github.com/starford/zettel/internal/noteservice"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Classifier ClassifierConfig  `yaml:"classifier"`
	Enrich     EnrichConfig      `yaml:"enrich"`
	Projects   ProjectsConfig    `yaml:"projects"`
	Inbox      InboxConfig       `yaml:"inbox"`
	SSE        SSEConfig         `yaml:"sse"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.SQLite, &c.Auth, &c.Classifier, &c.Enrich, &c.Projects, &c.Inbox, &c.SSE,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// TokenConfig maps one bearer token to the owner it authenticates.
type TokenConfig struct {
	Token   string `yaml:"token"`
	OwnerID int64  `yaml:"owner_id"`
}

// Validate validates the token entry.
func (c TokenConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Token, validation.Required),
		validation.Field(&c.OwnerID, validation.Required, validation.Min(int64(1))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): every request runs as DefaultOwner, suitable for local use.
//   - "token": Bearer token authentication. Token authenticates DefaultOwner,
//     Tokens adds further token/owner pairs. At least one token is required.
type AuthConfig struct {
	Mode         string        `yaml:"mode"`
	Token        string        `yaml:"token"`
	Tokens       []TokenConfig `yaml:"tokens"`
	DefaultOwner int64         `yaml:"default_owner"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if c.DefaultOwner == 0 {
		c.DefaultOwner = 1
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.DefaultOwner, validation.Min(int64(1))),
		validation.Field(&c.Tokens),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" && len(c.Tokens) == 0 {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// TokenOwners returns the token to owner mapping used by the API middleware.
func (c *AuthConfig) TokenOwners() map[string]int64 {
	m := make(map[string]int64, len(c.Tokens)+1)
	if c.Token != "" {
		m[c.Token] = c.DefaultOwner
	}
	for _, t := range c.Tokens {
		m[t.Token] = t.OwnerID
	}
	return m
}

// ClassifierConfig selects the metadata classifier provider.
type ClassifierConfig struct {
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"api_key"`
	APIURL   string        `yaml:"api_url"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Validate validates the classifier configuration.
func (c *ClassifierConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = classifier.ProviderDisabled
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.In(
			classifier.ProviderDeepSeek, classifier.ProviderOpenAI, classifier.ProviderDisabled)),
		validation.Field(&c.APIKey, validation.When(c.Provider != classifier.ProviderDisabled, validation.Required)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// Enabled reports whether a real provider is configured.
func (c *ClassifierConfig) Enabled() bool {
	return c.Provider != "" && c.Provider != classifier.ProviderDisabled
}

// Settings converts the section for classifier.New.
func (c *ClassifierConfig) Settings() classifier.Settings {
	return classifier.Settings{
		Provider: c.Provider,
		APIKey:   c.APIKey,
		APIURL:   c.APIURL,
		Model:    c.Model,
		Timeout:  c.Timeout,
	}
}

// EnrichConfig tunes the background metadata enrichment.
type EnrichConfig struct {
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Backoff      time.Duration `yaml:"backoff"`
	Sweep        time.Duration `yaml:"sweep_interval"`
	SkipIfEdited bool          `yaml:"skip_if_edited"`
}

// Validate validates the enrichment configuration.
func (c *EnrichConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1)),
		validation.Field(&c.QueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.Backoff, validation.Min(time.Duration(0))),
		validation.Field(&c.Sweep, validation.Required, validation.Min(time.Second)),
	)
}

// Options converts the section for enrich.New.
func (c *EnrichConfig) Options() enrich.Options {
	return enrich.Options{
		Workers:       c.Workers,
		QueueSize:     c.QueueSize,
		MaxAttempts:   c.MaxAttempts,
		Backoff:       c.Backoff,
		SweepInterval: c.Sweep,
		SkipIfEdited:  c.SkipIfEdited,
	}
}

// ProjectsConfig tunes automatic project assignment.
type ProjectsConfig struct {
	MinConfidence int `yaml:"min_confidence"`
}

// Validate validates the projects configuration.
func (c *ProjectsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MinConfidence, validation.Min(0), validation.Max(100)),
	)
}

// InboxConfig enables capturing files dropped into a directory.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	OwnerID int64  `yaml:"owner_id"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.OwnerID, validation.When(c.Enabled, validation.Required, validation.Min(int64(1)))),
	)
}

// SSEConfig holds event stream settings.
type SSEConfig struct {
	GraphThrottle time.Duration `yaml:"graph_throttle"`
}

// Validate validates the SSE configuration.
func (c *SSEConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.GraphThrottle, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	eo := enrich.DefaultOptions()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./zettel.db",
		},
		Auth: AuthConfig{
			Mode:         AuthModeDisabled,
			DefaultOwner: 1,
		},
		Classifier: ClassifierConfig{
			Provider: classifier.ProviderDisabled,
			Timeout:  30 * time.Second,
		},
		Enrich: EnrichConfig{
			Workers:     eo.Workers,
			QueueSize:   eo.QueueSize,
			MaxAttempts: eo.MaxAttempts,
			Backoff:     eo.Backoff,
			Sweep:       eo.SweepInterval,
		},
		Projects: ProjectsConfig{
			MinConfidence: noteservice.DefaultMinConfidence,
		},
		Inbox: InboxConfig{
			Path:    "./inbox",
			OwnerID: 1,
		},
		SSE: SSEConfig{
			GraphThrottle: 2 * time.Second,
		},
	}
}
