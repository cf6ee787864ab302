package tagging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/ollama/ollama/api"
)

// generator is the slice of *api.Client the classifier needs.
type generator interface {
	Generate(ctx context.Context, req *api.GenerateRequest, fn api.GenerateResponseFunc) error
}

// OllamaClassifier asks a local model which of the known tags apply and
// falls back to keyword rules when the model fails or answers nonsense.
type OllamaClassifier struct {
	client      generator
	model       string
	temperature float64
	fallback    *KeywordClassifier
	logger      *slog.Logger
}

type tagResponse struct {
	Tags []string `json:"tags"`
}

// NewOllamaClassifier creates a classifier backed by Ollama at baseURL, or
// at OLLAMA_HOST when baseURL is empty. The tag set and fallback come from
// the keyword classifier.
func NewOllamaClassifier(baseURL, model string, temperature float64, fallback *KeywordClassifier, logger *slog.Logger) (*OllamaClassifier, error) {
	var client *api.Client
	if baseURL != "" {
		parsedURL, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client = api.NewClient(parsedURL, http.DefaultClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
	}
	if fallback == nil {
		fallback = NewKeywordClassifier(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClassifier{
		client:      client,
		model:       model,
		temperature: temperature,
		fallback:    fallback,
		logger:      logger,
	}, nil
}

func (o *OllamaClassifier) Classify(ctx context.Context, title, summary string) ([]string, error) {
	tags, err := o.generate(ctx, title, summary)
	if err != nil {
		o.logger.Warn("model tagging failed, using keyword rules", "model", o.model, "error", err)
		return o.fallback.Classify(ctx, title, summary)
	}
	return tags, nil
}

func (o *OllamaClassifier) generate(ctx context.Context, title, summary string) ([]string, error) {
	known := o.fallback.Tags()
	prompt := fmt.Sprintf(`You classify news articles. Choose which of these tags apply: %s.

Title: %s

Summary: %s

Respond ONLY with valid JSON in this exact format:
{"tags": ["<tag>", ...]}
Use an empty list when none apply.`, strings.Join(known, ", "), title, truncateText(summary, 2000))

	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: new(bool), // false
		Options: map[string]interface{}{
			"temperature": o.temperature,
		},
	}

	var fullResponse strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		fullResponse.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama tagging failed: %w", err)
	}

	var result tagResponse
	if err := json.Unmarshal([]byte(extractJSON(fullResponse.String())), &result); err != nil {
		return nil, fmt.Errorf("parse tagging response: %w", err)
	}
	return filterKnown(result.Tags, known), nil
}

// filterKnown keeps only tags from the known set, deduplicated and sorted.
func filterKnown(tags, known []string) []string {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if allowed[t] && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// truncateText truncates text to maxLen runes
func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}

// extractJSON attempts to extract JSON from a text response that might contain extra text
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
