package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/veridoc/rescribo/internal/common"
	"github.com/veridoc/rescribo/internal/interfaces"
)

// Service routes completion requests to the provider implied by the model
// name and handles rate limiting and retry for both. Clients are created
// lazily on first use so the server can start without API keys configured;
// the first inference call surfaces the missing key instead.
type Service struct {
	geminiConfig *common.GeminiConfig
	claudeConfig *common.ClaudeConfig
	llmConfig    *common.LLMConfig
	kvStorage    interfaces.KeyValueStorage
	logger       arbor.ILogger
	retryConfig  *RetryConfig

	geminiLimiter *rate.Limiter
	claudeLimiter *rate.Limiter
	geminiTimeout time.Duration
	claudeTimeout time.Duration

	mu           sync.Mutex
	geminiClient *genai.Client
	claudeClient anthropic.Client
	claudeReady  bool
}

var _ interfaces.CompletionService = (*Service)(nil)

// NewService creates a completion service over the configured providers.
func NewService(cfg *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		geminiConfig:  &cfg.Gemini,
		claudeConfig:  &cfg.Claude,
		llmConfig:     &cfg.LLM,
		kvStorage:     kvStorage,
		logger:        logger,
		retryConfig:   NewDefaultRetryConfig(),
		geminiLimiter: newLimiter(cfg.Gemini.RateLimit),
		claudeLimiter: newLimiter(cfg.Claude.RateLimit),
		geminiTimeout: parseTimeout(cfg.Gemini.Timeout),
		claudeTimeout: parseTimeout(cfg.Claude.Timeout),
	}
}

func newLimiter(callsPerSecond float64) *rate.Limiter {
	if callsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(callsPerSecond), 1)
}

func parseTimeout(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-haiku-4-5" -> Claude
// - "claude/claude-haiku-4-5" -> Claude (with prefix)
// - "gemini-2.5-flash" -> Gemini
// - "gemini/gemini-2.5-flash" -> Gemini (with prefix)
// - Empty string -> uses default provider from config
func (s *Service) DetectProvider(model string) common.LLMProvider {
	if model == "" {
		return s.llmConfig.DefaultProvider
	}

	model = strings.ToLower(model)

	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") {
		return common.LLMProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") {
		return common.LLMProviderGemini
	}

	if strings.HasPrefix(model, "claude-") {
		return common.LLMProviderClaude
	}
	if strings.HasPrefix(model, "gemini-") {
		return common.LLMProviderGemini
	}

	return s.llmConfig.DefaultProvider
}

// normalizeModel removes the provider prefix from a model name if present
func normalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// Complete generates text for the request using the provider implied by the
// request's model, falling back to the configured default provider.
func (s *Service) Complete(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("completion request requires a non-empty prompt")
	}

	provider := s.DetectProvider(req.Model)
	model := normalizeModel(req.Model)

	s.logger.Debug().
		Str("provider", string(provider)).
		Str("model", model).
		Int("prompt_length", len(req.Prompt)).
		Msg("Generating completion")

	switch provider {
	case common.LLMProviderClaude:
		return s.completeWithClaude(ctx, req, model)
	default:
		return s.completeWithGemini(ctx, req, model)
	}
}

// Close resets provider clients. Neither SDK holds connections that need
// explicit teardown.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geminiClient = nil
	s.claudeClient = anthropic.Client{}
	s.claudeReady = false
	return nil
}

// getGeminiClient returns the Gemini client, creating one if necessary.
func (s *Service) getGeminiClient(ctx context.Context) (*genai.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.geminiClient != nil {
		return s.geminiClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, s.kvStorage, "gemini_api_key", s.geminiConfig.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	s.geminiClient = client
	return client, nil
}

// getClaudeClient returns the Claude client, creating one if necessary.
func (s *Service) getClaudeClient(ctx context.Context) (anthropic.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claudeReady {
		return s.claudeClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, s.kvStorage, "anthropic_api_key", s.claudeConfig.APIKey)
	if err != nil {
		return anthropic.Client{}, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	s.claudeClient = client
	s.claudeReady = true
	return client, nil
}

func (s *Service) completeWithClaude(ctx context.Context, req *interfaces.CompletionRequest, model string) (*interfaces.CompletionResponse, error) {
	client, err := s.getClaudeClient(ctx)
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = s.claudeConfig.Model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.claudeConfig.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	temp := req.Temperature
	if temp <= 0 {
		temp = s.claudeConfig.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	var resp *anthropic.Message
	var apiErr error

	for attempt := 0; attempt <= s.retryConfig.MaxRetries; attempt++ {
		if err := s.claudeLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, s.claudeTimeout)
		resp, apiErr = client.Messages.New(callCtx, params)
		cancel()
		if apiErr == nil {
			break
		}

		if attempt == s.retryConfig.MaxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * 2 * time.Second
		if IsRateLimitError(apiErr) {
			backoff = s.retryConfig.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))
		}

		s.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Claude API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return nil, fmt.Errorf("Claude API call failed after %d retries: %w", s.retryConfig.MaxRetries, apiErr)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	return &interfaces.CompletionResponse{
		Text:     text.String(),
		Model:    model,
		Provider: string(common.LLMProviderClaude),
	}, nil
}

func (s *Service) completeWithGemini(ctx context.Context, req *interfaces.CompletionRequest, model string) (*interfaces.CompletionResponse, error) {
	client, err := s.getGeminiClient(ctx)
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = s.geminiConfig.Model
	}

	temp := req.Temperature
	if temp <= 0 {
		temp = s.geminiConfig.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	contents := []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(req.Prompt)},
		},
	}

	var resp *genai.GenerateContentResponse
	var apiErr error

	for attempt := 0; attempt <= s.retryConfig.MaxRetries; attempt++ {
		if err := s.geminiLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, s.geminiTimeout)
		resp, apiErr = client.Models.GenerateContent(callCtx, model, contents, config)
		cancel()
		if apiErr == nil {
			break
		}

		if attempt == s.retryConfig.MaxRetries {
			break
		}

		var backoff time.Duration
		if IsRateLimitError(apiErr) {
			backoff = s.retryConfig.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))
		} else {
			backoff = time.Duration(attempt+1) * 2 * time.Second
		}

		s.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Gemini API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return nil, fmt.Errorf("Gemini API call failed after %d retries: %w", s.retryConfig.MaxRetries, apiErr)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	responseText := resp.Text()
	if responseText == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	return &interfaces.CompletionResponse{
		Text:     responseText,
		Model:    model,
		Provider: string(common.LLMProviderGemini),
	}, nil
}
