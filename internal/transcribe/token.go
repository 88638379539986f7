package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenIssuer mints a short-lived credential scoped to one transcription
// session. The realtime client asks for a fresh token on every Start.
type TokenIssuer interface {
	IssueToken(ctx context.Context) (string, error)
}

const defaultTokenURL = "https://api.openai.com/v1/realtime/transcription_sessions"

// OpenAITokenIssuer trades a long-lived API key for an ephemeral session
// token via the transcription-sessions endpoint.
type OpenAITokenIssuer struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

func NewOpenAITokenIssuer(apiKey string) *OpenAITokenIssuer {
	return &OpenAITokenIssuer{
		apiKey:     apiKey,
		url:        defaultTokenURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewOpenAITokenIssuerWithURL points the issuer at a different endpoint.
// Tests use this with a local server.
func NewOpenAITokenIssuerWithURL(apiKey, url string) *OpenAITokenIssuer {
	issuer := NewOpenAITokenIssuer(apiKey)
	issuer.url = url
	return issuer
}

func (i *OpenAITokenIssuer) IssueToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.url, strings.NewReader("{}"))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+i.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request ephemeral token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("ephemeral token request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.ClientSecret.Value == "" {
		return "", fmt.Errorf("token response missing client_secret.value")
	}

	return payload.ClientSecret.Value, nil
}
