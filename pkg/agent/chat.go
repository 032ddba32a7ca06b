package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	invokeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "verdict",
		Subsystem: "agent",
		Name:      "invoke_duration_seconds",
		Help:      "Duration of agent invocations",
	}, []string{"agent"})

	invokeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "verdict",
		Subsystem: "agent",
		Name:      "invoke_failures_total",
		Help:      "Number of agent invocation failures",
	}, []string{"agent", "kind"})
)

// ChatConfig defines configuration options for a chat-completion backed agent.
// A custom BaseURL serves any OpenAI-compatible provider, DeepSeek included.
type ChatConfig struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	Weight      float64
	Specialties []string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// ChatAgent implements Agent against an OpenAI-compatible chat completion API.
type ChatAgent struct {
	client *openai.Client
	cfg    ChatConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewChatAgent builds a chat-completion agent using the provided configuration.
func NewChatAgent(cfg ChatConfig) (*ChatAgent, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("agent %s: api key is required", cfg.Name)
	}

	if cfg.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 768
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	if cfg.Weight <= 0 || cfg.Weight > 1 {
		cfg.Weight = 1
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &ChatAgent{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/verdictlabs/verdict-api/pkg/agent"),
		logger: cfg.Logger.With().Str("component", "agent").Str("agent", cfg.Name).Logger(),
	}, nil
}

// Descriptor returns the static manifest entry for this agent.
func (a *ChatAgent) Descriptor() Descriptor {
	return Descriptor{Name: a.cfg.Name, Weight: a.cfg.Weight, Specialties: a.cfg.Specialties}
}

// Invoke sends the analysis request to the model and parses the response.
// The configured timeout bounds the whole call.
func (a *ChatAgent) Invoke(parent context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(parent, a.cfg.Timeout)
	defer cancel()

	ctx, span := a.tracer.Start(ctx, "agent.invoke", trace.WithAttributes(
		attribute.String("agent", a.cfg.Name),
		attribute.String("model", a.cfg.Model),
		attribute.String("validation_type", req.ValidationType),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: analystSystemPrompt(req.ValidationType, req.HeightenedScrutiny),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildAnalysisPrompt(req),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := a.client.CreateChatCompletion(ctx, request)
	duration := time.Since(start)
	invokeDuration.WithLabelValues(a.cfg.Name).Observe(duration.Seconds())
	if err != nil {
		kind := KindTransport
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			kind = KindTimeout
		}
		invokeFailures.WithLabelValues(a.cfg.Name, string(kind)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, NewError(a.cfg.Name, kind, err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned")
		invokeFailures.WithLabelValues(a.cfg.Name, string(KindMalformedResponse)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, NewError(a.cfg.Name, KindMalformedResponse, err)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := parseAnalysisResponse(content)
	if err != nil {
		invokeFailures.WithLabelValues(a.cfg.Name, string(KindMalformedResponse)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, NewError(a.cfg.Name, KindMalformedResponse, err)
	}

	result.Agent = a.cfg.Name
	result.Duration = duration
	return result, nil
}

func analystSystemPrompt(validationType string, heightened bool) string {
	base := "You are an automated code analyst. Respond with a JSON object containing confidence (0-1), " +
		"issues (array of strings), suggestions (array of strings), and rationale (string)."

	switch validationType {
	case "crypto_audit":
		base += " Focus on cryptographic misuse: weak hashes, predictable randomness, key handling."
	case "betting_algorithm":
		base += " Focus on numerical correctness: odds math, rounding, float precision, edge cases."
	case "security_testing":
		base += " Focus on exploitable flaws: injection, unsafe execution, exposed secrets."
	default:
		base += " Focus on correctness, code quality, and edge cases."
	}

	if heightened {
		base += " Apply heightened scrutiny: report anything suspicious even at low certainty."
	}

	return base
}

func buildAnalysisPrompt(req Request) string {
	builder := strings.Builder{}
	builder.WriteString("# Language\n")
	if req.Language != "" {
		builder.WriteString(req.Language)
	} else {
		builder.WriteString("unknown")
	}
	builder.WriteString("\n\n# Code\n")
	builder.WriteString(req.Code)
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseAnalysisResponse(content string) (Result, error) {
	type payload struct {
		Confidence  float64  `json:"confidence"`
		Issues      []string `json:"issues"`
		Suggestions []string `json:"suggestions"`
		Rationale   string   `json:"rationale"`
	}

	var data payload
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return Result{}, fmt.Errorf("parse analysis json: %w", err)
	}

	if data.Confidence < 0 {
		data.Confidence = 0
	}
	if data.Confidence > 1 {
		data.Confidence = 1
	}

	return Result{
		Confidence:  data.Confidence,
		Issues:      data.Issues,
		Suggestions: data.Suggestions,
		Rationale:   data.Rationale,
	}, nil
}
