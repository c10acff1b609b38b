package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cooklab/api/internal/config"
)

var (
	// ErrUpstream is returned when the email provider call fails.
	ErrUpstream = errors.New("email provider request failed")
)

// Service renders a language-specific template and hands the result to the
// external transactional-email provider.
type Service struct {
	registry *Registry
	baseURL  string
	apiKey   string
	from     string
	client   *http.Client
	logger   *slog.Logger
}

// NewService creates a mail service from config.
func NewService(cfg config.MailConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		registry: NewRegistry(cfg.DefaultLanguage),
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		from:     cfg.From,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Registry exposes the template registry, mainly for handlers that need
// language resolution without sending.
func (s *Service) Registry() *Registry {
	return s.registry
}

type providerRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Send renders the named template in the given language (with fallback) and
// posts it to the email provider.
func (s *Service) Send(ctx context.Context, to, templateName, lang string, vars map[string]string) error {
	msg, err := s.registry.Render(templateName, lang, vars)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(providerRequest{
		From:    s.from,
		To:      to,
		Subject: msg.Subject,
		Text:    msg.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, body)
	}

	s.logger.Info("mail dispatched",
		slog.String("template", templateName),
		slog.String("language", s.registry.ResolveLanguage(lang)),
	)

	return nil
}
