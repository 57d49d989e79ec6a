package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"go.uber.org/zap"

	"faculty-quiz-service/internal/domain"
)

const (
	DefaultBaseURL       = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel         = "gemini-3-flash-preview"
	DefaultQuestionCount = 50
	defaultTimeout       = 90 * time.Second
)

// Config describes how the question source reaches the model.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	Retries       int
	QuestionCount int
}

// QuestionSource asks the Gemini generateContent endpoint for a fresh batch of questions.
type QuestionSource struct {
	client *req.Client
	cfg    Config
	log    *zap.Logger
}

func NewQuestionSource(cfg Config, logger *zap.Logger) *QuestionSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.QuestionCount <= 0 {
		cfg.QuestionCount = DefaultQuestionCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := req.C().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal)
	return &QuestionSource{client: client, cfg: cfg, log: logger}
}

// RequestBatch returns a validated batch in the order the model produced it.
func (s *QuestionSource) RequestBatch(ctx context.Context) ([]domain.Question, error) {
	request := s.client.R().
		SetContext(ctx).
		SetPathParam("model", s.cfg.Model).
		SetQueryParam("key", s.cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetBodyJsonMarshal(newGenerateRequest(s.cfg.QuestionCount))
	if s.cfg.Retries > 0 {
		request.
			SetRetryCount(s.cfg.Retries).
			SetRetryBackoffInterval(500*time.Millisecond, 5*time.Second).
			SetRetryHook(func(resp *req.Response, err error) {
				if err != nil {
					s.log.Warn("question request failed, retrying", zap.Error(err))
				} else {
					s.log.Warn("question request rejected, retrying", zap.Int("status", resp.GetStatusCode()))
				}
			}).
			SetRetryCondition(func(resp *req.Response, err error) bool {
				return err != nil || resp.GetStatusCode() >= http.StatusInternalServerError || resp.GetStatusCode() == http.StatusTooManyRequests
			})
	}

	resp, err := request.Post("/models/{model}:generateContent")
	if err != nil {
		return nil, fmt.Errorf("request questions: %w", err)
	}
	data, err := resp.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("read questions response: %w", err)
	}
	if code := resp.GetStatusCode(); code < 200 || code > 299 {
		return nil, fmt.Errorf("request questions: unexpected status %d: %s", code, truncate(string(data), 256))
	}

	batch, err := decodeBatch(data)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateBatch(batch); err != nil {
		return nil, err
	}
	s.log.Info("question batch generated", zap.Int("questions", len(batch)), zap.String("model", s.cfg.Model))
	return batch, nil
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func decodeBatch(data []byte) ([]domain.Question, error) {
	var envelope generateResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode questions response: %w", err)
	}
	if len(envelope.Candidates) == 0 {
		return nil, fmt.Errorf("decode questions response: no candidates")
	}
	var text strings.Builder
	for _, part := range envelope.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	raw := strings.TrimSpace(text.String())
	if raw == "" {
		return nil, fmt.Errorf("decode questions response: empty text")
	}
	var batch []domain.Question
	if err := json.Unmarshal([]byte(raw), &batch); err != nil {
		return nil, fmt.Errorf("decode question batch: %w", err)
	}
	return batch, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
