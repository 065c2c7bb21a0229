package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yanqian/weather-insight/internal/domain/insight"
	"github.com/yanqian/weather-insight/internal/infra/llm/chatgpt"
	apperrors "github.com/yanqian/weather-insight/pkg/errors"
)

// Service answers analysis requests with a short correlation message and citations.
type Service interface {
	Analyze(ctx context.Context, req insight.AnalyzeRequest) (insight.AnalyzeResponse, error)
}

type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req chatgpt.ChatCompletionRequest) (chatgpt.ChatCompletionResponse, error)
}

type service struct {
	cfg    Config
	client ChatClient
	logger *slog.Logger

	countOnce   sync.Once
	countTokens tokenCounter
}

// NewService wires up the analysis domain.
func NewService(cfg Config, client ChatClient, logger *slog.Logger) Service {
	return &service{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "analysis.service"),
	}
}

func (s *service) Analyze(ctx context.Context, req insight.AnalyzeRequest) (insight.AnalyzeResponse, error) {
	if len(req.Symptoms) == 0 && len(req.Weather) == 0 {
		return insight.AnalyzeResponse{}, apperrors.Wrap(apperrors.CodeInvalidInput, "symptoms or weather required", nil)
	}
	payload, err := normalizeRequest(req)
	if err != nil {
		return insight.AnalyzeResponse{}, apperrors.Wrap(apperrors.CodeInvalidInput, err.Error(), err)
	}

	system := s.buildSystemPrompt()
	payload, dropped := s.fitBudget(system, payload)
	if dropped > 0 {
		s.logger.Info("analysis prompt trimmed", "dropped", dropped, "symptoms", len(payload.Symptoms), "weather", len(payload.Weather))
	}

	completion, err := s.client.CreateChatCompletion(ctx, chatgpt.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []chatgpt.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: buildUserPrompt(payload)},
		},
		Temperature:    s.cfg.Temperature,
		ResponseFormat: &chatgpt.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return insight.AnalyzeResponse{}, apperrors.Wrap(apperrors.CodeLLM, "chatgpt request failed", err)
	}
	if len(completion.Choices) == 0 {
		return insight.AnalyzeResponse{}, apperrors.Wrap(apperrors.CodeLLM, "chatgpt returned no choices", nil)
	}
	content := completion.Choices[0].Message.Content
	s.logger.Debug("analysis completion", "content", content, "prompt_tokens", completion.Usage.PromptTokens)

	resp, err := parseReply(content)
	if err != nil {
		return insight.AnalyzeResponse{}, apperrors.Wrap(apperrors.CodeLLM, "chatgpt response malformed", err)
	}
	s.logger.Info("analysis completed", "symptoms", len(payload.Symptoms), "weather", len(payload.Weather), "citations", len(resp.Citations))
	return resp, nil
}

// normalizeRequest validates entries and returns a copy ordered by timestamp.
func normalizeRequest(req insight.AnalyzeRequest) (insight.AnalyzeRequest, error) {
	out := insight.AnalyzeRequest{
		Symptoms:  append([]insight.WireSymptom(nil), req.Symptoms...),
		Weather:   append([]insight.WireWeather(nil), req.Weather...),
		Diagnosis: strings.TrimSpace(req.Diagnosis),
	}
	symptomTimes := make([]time.Time, len(out.Symptoms))
	for i, sym := range out.Symptoms {
		ts, err := insight.ParseTimestamp(sym.Timestamp)
		if err != nil {
			return insight.AnalyzeRequest{}, fmt.Errorf("symptoms[%d].timestamp is not ISO-8601", i)
		}
		if strings.TrimSpace(sym.SymptomType) == "" {
			return insight.AnalyzeRequest{}, fmt.Errorf("symptoms[%d].symptom_type is required", i)
		}
		if sym.Severity < 1 || sym.Severity > 10 {
			return insight.AnalyzeRequest{}, fmt.Errorf("symptoms[%d].severity must be between 1 and 10", i)
		}
		symptomTimes[i] = ts
	}
	weatherTimes := make([]time.Time, len(out.Weather))
	for i, w := range out.Weather {
		ts, err := insight.ParseTimestamp(w.Timestamp)
		if err != nil {
			return insight.AnalyzeRequest{}, fmt.Errorf("weather[%d].timestamp is not ISO-8601", i)
		}
		weatherTimes[i] = ts
	}
	sort.Stable(byTime[insight.WireSymptom]{items: out.Symptoms, times: symptomTimes})
	sort.Stable(byTime[insight.WireWeather]{items: out.Weather, times: weatherTimes})
	return out, nil
}

type byTime[T any] struct {
	items []T
	times []time.Time
}

func (b byTime[T]) Len() int           { return len(b.items) }
func (b byTime[T]) Less(i, j int) bool { return b.times[i].Before(b.times[j]) }
func (b byTime[T]) Swap(i, j int) {
	b.items[i], b.items[j] = b.items[j], b.items[i]
	b.times[i], b.times[j] = b.times[j], b.times[i]
}

// fitBudget drops the oldest entries until the prompt fits MaxPromptTokens. At least one
// entry is always kept.
func (s *service) fitBudget(system string, req insight.AnalyzeRequest) (insight.AnalyzeRequest, int) {
	budget := s.cfg.MaxPromptTokens
	if budget <= 0 {
		return req, 0
	}
	count := s.tokenCounter()
	dropped := 0
	for len(req.Symptoms)+len(req.Weather) > 1 {
		if count(system)+count(buildUserPrompt(req)) <= budget {
			break
		}
		switch oldestKind(req) {
		case kindSymptom:
			req.Symptoms = req.Symptoms[1:]
		case kindWeather:
			req.Weather = req.Weather[1:]
		}
		dropped++
	}
	return req, dropped
}

func (s *service) tokenCounter() tokenCounter {
	s.countOnce.Do(func() {
		if s.countTokens != nil {
			return
		}
		counter, err := newTokenCounter(s.cfg.Model)
		if err != nil {
			s.logger.Warn("tiktoken unavailable, counting words", "model", s.cfg.Model, "error", err)
		}
		s.countTokens = counter
	})
	return s.countTokens
}

func oldestKind(req insight.AnalyzeRequest) entryKind {
	if len(req.Symptoms) == 0 {
		return kindWeather
	}
	if len(req.Weather) == 0 {
		return kindSymptom
	}
	// timestamps were validated by normalizeRequest
	s, _ := insight.ParseTimestamp(req.Symptoms[0].Timestamp)
	w, _ := insight.ParseTimestamp(req.Weather[0].Timestamp)
	if w.Before(s) {
		return kindWeather
	}
	return kindSymptom
}

func buildUserPrompt(req insight.AnalyzeRequest) string {
	data, err := json.Marshal(req)
	if err != nil {
		data = []byte("{}")
	}
	var b strings.Builder
	b.WriteString("Look for correlations between these self-reported symptoms and the weather recorded over the same period. ")
	if req.Diagnosis != "" {
		fmt.Fprintf(&b, "The person has been diagnosed with %s. ", req.Diagnosis)
	}
	b.WriteString("Data: ")
	b.Write(data)
	return b.String()
}

func (s *service) buildSystemPrompt() string {
	base := strings.TrimSpace(s.cfg.Prompt)
	if base == "" {
		base = "You help people notice how weather may relate to their chronic symptoms. You never diagnose or recommend treatment."
	}
	enforcer := " Respond ONLY with valid minified JSON using this shape: {\"message\":string,\"citations\":string[]}. The message is at most three sentences. Citations reference published research (DOI or URL); use an empty array when none apply."
	return base + enforcer
}

func parseReply(raw string) (insight.AnalyzeResponse, error) {
	sanitized := strings.TrimSpace(raw)
	sanitized = strings.TrimPrefix(sanitized, "```json")
	sanitized = strings.TrimSuffix(sanitized, "```")
	sanitized = strings.Trim(sanitized, "`")
	sanitized = strings.TrimSpace(strings.TrimPrefix(sanitized, "json"))

	var wire struct {
		Message   string          `json:"message"`
		Citations json.RawMessage `json:"citations"`
	}
	if err := json.Unmarshal([]byte(sanitized), &wire); err != nil {
		return insight.AnalyzeResponse{}, err
	}
	message := strings.TrimSpace(wire.Message)
	if message == "" {
		return insight.AnalyzeResponse{}, errors.New("message missing")
	}
	citations, err := coerceStringArray(wire.Citations)
	if err != nil {
		return insight.AnalyzeResponse{}, err
	}
	return insight.AnalyzeResponse{Message: message, Citations: normalizeList(citations)}, nil
}

func coerceStringArray(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, err
		}
		return []string{single}, nil
	case '[':
		var many []string
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, err
		}
		return many, nil
	default:
		return nil, errors.New("unsupported citations format")
	}
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{})
	for _, item := range items {
		clean := strings.TrimSpace(item)
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}
