// Package classifier talks to the external language model that proposes titles,
// tags, capture types and projects for captures.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Providers accepted by New.
const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"
	ProviderDisabled = "disabled"
)

var (
	// ErrClassifier matches every error returned by a classifier call.
	ErrClassifier = errors.New("classifier error")
	// ErrDisabled is returned by the disabled provider.
	ErrDisabled = errors.New("classifier disabled")
)

// Error describes a failed classifier operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("classifier: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrClassifier, e.Err}
}

// CandidateType is a capture type the model may choose from.
type CandidateType struct {
	ID          int64
	Name        string
	Symbol      string
	Description string
}

// CandidateProject is a project the model may assign a capture to.
type CandidateProject struct {
	ID          int64
	Name        string
	Description string
}

// Metadata is the model's proposal for a capture.
type Metadata struct {
	Title  string
	Tags   []string
	TypeID *int64
}

// ProjectSuggestion is the model's pick of a project, with confidence 0..100.
type ProjectSuggestion struct {
	ProjectID  int64
	Confidence int
}

// MetadataGenerator proposes a title, tags and, when types are given, a type.
type MetadataGenerator interface {
	GenerateMetadata(ctx context.Context, content string, types []CandidateType) (*Metadata, error)
}

// ProjectSuggester returns a nil suggestion when the model picks no project.
type ProjectSuggester interface {
	SuggestProject(ctx context.Context, content string, projects []CandidateProject) (*ProjectSuggestion, error)
}

// Classifier provides both capabilities.
type Classifier interface {
	MetadataGenerator
	ProjectSuggester
}

// Settings selects and configures a provider.
type Settings struct {
	Provider string
	APIKey   string
	APIURL   string
	Model    string
	Timeout  time.Duration
}

var providerDefaults = map[string]struct{ url, model string }{
	ProviderDeepSeek: {url: "https://api.deepseek.com/v1", model: "deepseek-chat"},
	ProviderOpenAI:   {url: "https://api.openai.com/v1", model: "gpt-4o-mini"},
}

// New builds the classifier for s.Provider.
func New(s Settings) (Classifier, error) {
	return NewWithHTTPClient(s, nil)
}

// NewWithHTTPClient is New with a custom HTTP client, used by tests.
func NewWithHTTPClient(s Settings, httpClient *http.Client) (Classifier, error) {
	provider := strings.ToLower(strings.TrimSpace(s.Provider))
	if provider == "" || provider == ProviderDisabled {
		return Disabled{}, nil
	}
	def, ok := providerDefaults[provider]
	if !ok {
		return nil, fmt.Errorf("classifier: unknown provider %q", s.Provider)
	}
	if s.APIURL == "" {
		s.APIURL = def.url
	}
	if s.Model == "" {
		s.Model = def.model
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &chatClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(s.APIURL), "/"),
		apiKey:     strings.TrimSpace(s.APIKey),
		model:      s.Model,
		timeout:    s.Timeout,
		httpClient: httpClient,
	}, nil
}

// Disabled rejects every call with ErrDisabled.
type Disabled struct{}

func (Disabled) GenerateMetadata(context.Context, string, []CandidateType) (*Metadata, error) {
	return nil, &Error{Op: "generate metadata", Err: ErrDisabled}
}

func (Disabled) SuggestProject(context.Context, string, []CandidateProject) (*ProjectSuggestion, error) {
	return nil, &Error{Op: "suggest project", Err: ErrDisabled}
}
