package describe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/iamgilwell/procguard/internal/monitor"
)

// ErrRateLimited is returned when the per-minute request budget is spent.
var ErrRateLimited = errors.New("describe: request budget exhausted")

// MessageClient is the subset of the Anthropic messages API the resolver uses.
type MessageClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AIResolver asks Claude about processes the catalog does not recognize.
// Catalog hits never reach the API.
type AIResolver struct {
	client   anthropic.Client
	messages MessageClient
	model    anthropic.Model
	cache    *Cache
	fallback *CatalogResolver
	limiter  *rate.Limiter
	timeout  time.Duration
}

// AIOption configures an AIResolver.
type AIOption func(*AIResolver)

// WithMessageClient replaces the Anthropic client.
func WithMessageClient(c MessageClient) AIOption {
	return func(r *AIResolver) { r.messages = c }
}

// WithRequestsPerMinute bounds API calls. Zero or less means unlimited.
func WithRequestsPerMinute(n int) AIOption {
	return func(r *AIResolver) {
		if n <= 0 {
			r.limiter = nil
			return
		}
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
}

// NewAIResolver creates a resolver. cache and fallback must be non-nil.
func NewAIResolver(apiKey, model string, cache *Cache, fallback *CatalogResolver, opts ...AIOption) *AIResolver {
	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}

	r := &AIResolver{
		client:   anthropic.NewClient(reqOpts...),
		model:    anthropic.Model(model),
		cache:    cache,
		fallback: fallback,
		timeout:  20 * time.Second,
	}
	r.messages = &r.client.Messages
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Describe implements Resolver. Known processes are answered from the
// catalog; unknown ones are cached after a successful API answer. On API
// failure the catalog's fallback description is returned with the error.
func (r *AIResolver) Describe(ctx context.Context, rec *monitor.ProcessRecord) (Description, error) {
	base, known := r.fallback.lookup(rec)
	if known {
		return base, nil
	}

	sig := Signature(rec)
	if cached, ok := r.cache.Get(sig); ok {
		return cached, nil
	}

	if r.limiter != nil && !r.limiter.Allow() {
		return base, ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(rec))),
		},
	})
	if err != nil {
		return base, fmt.Errorf("API call failed: %w", err)
	}

	var responseText string
	for _, block := range msg.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}

	d, err := parseResponse(responseText, rec)
	if err != nil {
		return base, err
	}
	r.cache.Put(sig, d)
	return d, nil
}

const systemPrompt = `You describe running operating system processes for a process manager.
Given a process name, executable path and command line, explain in one or two plain sentences what the
process is and what stops working if it is terminated. Do not speculate about malware.

Respond ONLY with valid JSON in this exact format:
{
  "description": "what the process is",
  "category": "service|user_app|background_app|startup_item|unknown",
  "kill_impact": "what happens if it is terminated"
}`

func buildPrompt(rec *monitor.ProcessRecord) string {
	var sb strings.Builder
	sb.WriteString("Describe this process:\n\n")
	sb.WriteString(fmt.Sprintf("Process: %s (PID: %d)\n", rec.Name, rec.PID))
	if rec.ExePath != "" {
		sb.WriteString(fmt.Sprintf("Executable: %s\n", rec.ExePath))
	}
	if rec.CommandLine != "" {
		sb.WriteString(fmt.Sprintf("Command: %s\n", truncate(rec.CommandLine, 400)))
	}
	if rec.ParentName != "" {
		sb.WriteString(fmt.Sprintf("Parent: %s (PID: %d)\n", rec.ParentName, rec.ParentPID))
	}
	if rec.Username != "" {
		sb.WriteString(fmt.Sprintf("User: %s\n", rec.Username))
	}
	if len(rec.HostedServices) > 0 {
		sb.WriteString(fmt.Sprintf("Hosted services: %s\n", strings.Join(rec.HostedServices, ", ")))
	}
	return sb.String()
}

func parseResponse(text string, rec *monitor.ProcessRecord) (Description, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 || end <= start {
		return Description{}, fmt.Errorf("no JSON found in response")
	}

	var raw struct {
		Description string `json:"description"`
		Category    string `json:"category"`
		KillImpact  string `json:"kill_impact"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return Description{}, fmt.Errorf("parsing JSON response: %w", err)
	}
	if strings.TrimSpace(raw.Description) == "" {
		return Description{}, fmt.Errorf("empty description in response")
	}

	return Description{
		Name:       rec.Name,
		Text:       strings.TrimSpace(raw.Description),
		Category:   raw.Category,
		KillImpact: raw.KillImpact,
		Source:     SourceAI,
	}, nil
}
