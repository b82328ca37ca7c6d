package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	config "github.com/anjiri1684/crypto_academy/configs"
	"github.com/rs/zerolog"
)

// Notifier delivers an HTML email to one recipient.
type Notifier interface {
	SendEmail(ctx context.Context, toName, toEmail, subject, htmlContent string) error
}

type BrevoService struct {
	APIKey      string
	BaseURL     string
	SenderEmail string
	SenderName  string

	client *http.Client
	log    zerolog.Logger
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

// NewEmailService returns a Brevo client, or a no-op notifier when the
// service is not configured.
func NewEmailService(cfg *config.Config, log zerolog.Logger) Notifier {
	if cfg.BrevoAPIKey == "" || cfg.EmailSender == "" || cfg.EmailSenderName == "" {
		log.Warn().Msg("email service not configured, notifications disabled")
		return Nop{}
	}

	log.Info().Str("sender", cfg.EmailSender).Msg("email service initialized")
	return &BrevoService{
		APIKey:      cfg.BrevoAPIKey,
		BaseURL:     strings.TrimRight(cfg.BrevoBaseURL, "/"),
		SenderEmail: cfg.EmailSender,
		SenderName:  cfg.EmailSenderName,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
}

func (s *BrevoService) SendEmail(ctx context.Context, toName, toEmail, subject, htmlContent string) error {
	if toEmail == "" || !strings.Contains(toEmail, "@") {
		return fmt.Errorf("invalid recipient email: %s", toEmail)
	}

	recipientName := toName
	if recipientName == "" {
		recipientName = toEmail[:strings.Index(toEmail, "@")]
	}

	payload := brevoPayload{
		Sender:      map[string]string{"name": s.SenderName, "email": s.SenderEmail},
		To:          []map[string]string{{"email": toEmail, "name": recipientName}},
		Subject:     subject,
		HTMLContent: htmlContent,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/v3/smtp/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", s.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("brevo returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	s.log.Debug().Str("to", toEmail).Str("subject", subject).Msg("email sent")
	return nil
}

type Nop struct{}

func (Nop) SendEmail(context.Context, string, string, string, string) error { return nil }

// Send delivers in the background so request handlers never wait on the mail
// provider. Failures are only logged.
func Send(n Notifier, log zerolog.Logger, toName, toEmail, subject, htmlContent string) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := n.SendEmail(ctx, toName, toEmail, subject, htmlContent); err != nil {
			log.Error().Err(err).Str("to", toEmail).Msg("failed to send email")
		}
	}()
}
