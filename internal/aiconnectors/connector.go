package aiconnectors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/totalrecall/pkg/models"
)

// Provider represents an AI provider type
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

const (
	summaryInstruction = "Summarize the following conversation with key points. " +
		"The summary should be as short as possible and only include the minimum required to maintain context."
	contextPrefix = "Use the following summary to maintain context: "

	defaultSummaryMaxTokens   = 50
	defaultAnthropicMaxTokens = 1024
)

var (
	ErrUnsupportedProvider   = errors.New("unsupported provider")
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrEmptyResponse         = errors.New("provider returned no choices")
)

// ParseProvider maps a request value to a known provider
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(name))); p {
	case ProviderOpenAI, ProviderAnthropic:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
}

// DefaultModel returns the model used when none is configured
func DefaultModel(provider Provider) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-3.5-turbo"
	case ProviderAnthropic:
		return "claude-3-5-sonnet-20240620"
	default:
		return ""
	}
}

// ModelConfig contains the configuration for a specific model
type ModelConfig struct {
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"` // nil leaves the provider default
}

// ConnectorOptions contains options for creating a connector
type ConnectorOptions struct {
	Provider         Provider    `json:"provider"`
	APIKey           string      `json:"api_key"`
	BaseURL          string      `json:"base_url,omitempty"`
	ModelConfig      ModelConfig `json:"model_config,omitempty"`
	SummaryMaxTokens int         `json:"summary_max_tokens,omitempty"`
}

// Connector sends chat requests to one provider
type Connector struct {
	provider Provider
	llm      llms.Model
	options  ConnectorOptions
}

// NewConnector creates a new connector for the specified provider
func NewConnector(ctx context.Context, options ConnectorOptions) (*Connector, error) {
	if options.ModelConfig.Model == "" {
		options.ModelConfig.Model = DefaultModel(options.Provider)
	}

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.ModelConfig.Model).
		Msg("Creating new connector")

	var model llms.Model
	var err error
	switch options.Provider {
	case ProviderOpenAI:
		model, err = createOpenAIModel(options)
	case ProviderAnthropic:
		model, err = createAnthropicModel(options)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, options.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	return NewConnectorWithModel(options, model), nil
}

// NewConnectorWithModel wraps an already constructed model
func NewConnectorWithModel(options ConnectorOptions, model llms.Model) *Connector {
	if options.ModelConfig.Model == "" {
		options.ModelConfig.Model = DefaultModel(options.Provider)
	}
	if options.Provider == ProviderAnthropic && options.ModelConfig.MaxTokens <= 0 {
		options.ModelConfig.MaxTokens = defaultAnthropicMaxTokens
	}
	if options.SummaryMaxTokens <= 0 {
		options.SummaryMaxTokens = defaultSummaryMaxTokens
	}
	return &Connector{
		provider: options.Provider,
		llm:      model,
		options:  options,
	}
}

func createOpenAIModel(options ConnectorOptions) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(options.ModelConfig.Model),
		openai.WithToken(options.APIKey),
	}
	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}
	return openai.New(opts...)
}

func createAnthropicModel(options ConnectorOptions) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(options.APIKey),
		anthropic.WithModel(options.ModelConfig.Model),
	}
	if options.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(options.BaseURL))
	}
	return anthropic.New(opts...)
}

// Send asks the provider for the next assistant turn. A non-empty summary is
// passed along as context ahead of the history.
func (c *Connector) Send(ctx context.Context, messages []models.Message, summary string) (models.Message, error) {
	instruction := ""
	if summary != "" {
		instruction = contextPrefix + summary
	}
	text, err := c.generate(ctx, messages, instruction, c.options.ModelConfig.MaxTokens)
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{Role: models.RoleAssistant, Content: text}, nil
}

// Summarize condenses messages into a short context string
func (c *Connector) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	return c.generate(ctx, messages, summaryInstruction, c.options.SummaryMaxTokens)
}

func (c *Connector) generate(ctx context.Context, messages []models.Message, instruction string, maxTokens int) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages to send")
	}

	var content []llms.MessageContent
	switch c.provider {
	case ProviderOpenAI:
		content = openAIMessages(messages, instruction)
	case ProviderAnthropic:
		content = anthropicMessages(messages, instruction)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, c.provider)
	}

	callOptions := []llms.CallOption{llms.WithModel(c.options.ModelConfig.Model)}
	if maxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(maxTokens))
	}
	if t := c.options.ModelConfig.Temperature; t != nil {
		callOptions = append(callOptions, llms.WithTemperature(*t))
	}

	resp, err := c.llm.GenerateContent(ctx, content, callOptions...)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", c.provider, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// openAIMessages keeps every role and puts the instruction in a leading system message
func openAIMessages(messages []models.Message, instruction string) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages)+1)
	if instruction != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, instruction))
	}
	for _, m := range messages {
		out = append(out, llms.TextParts(openAIRole(m.Role), m.Content))
	}
	return out
}

func openAIRole(role models.Role) llms.ChatMessageType {
	switch role {
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}

// anthropicMessages produces a strictly user/assistant sequence. System turns
// become user turns, the instruction leads the first user turn, and adjacent
// turns with the same role are merged.
func anthropicMessages(messages []models.Message, instruction string) []llms.MessageContent {
	type turn struct {
		role  llms.ChatMessageType
		texts []string
	}

	var turns []turn
	push := func(role llms.ChatMessageType, text string) {
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].texts = append(turns[n-1].texts, text)
			return
		}
		turns = append(turns, turn{role: role, texts: []string{text}})
	}

	if instruction != "" {
		push(llms.ChatMessageTypeHuman, instruction)
	}
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		push(role, m.Content)
	}

	out := make([]llms.MessageContent, 0, len(turns))
	for _, t := range turns {
		out = append(out, llms.TextParts(t.role, strings.Join(t.texts, "\n\n")))
	}
	return out
}

// GetProvider returns the provider of this connector
func (c *Connector) GetProvider() Provider {
	return c.provider
}

// GetModel returns the model name from the config
func (c *Connector) GetModel() string {
	return c.options.ModelConfig.Model
}
