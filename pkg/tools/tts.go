package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zen-systems/contentflow/pkg/workspace"
)

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	defaultTTSModel        = "eleven_multilingual_v2"
	defaultTTSOutputFormat = "mp3_44100_128"
	defaultTTSOutputPath   = "output.mp3"
)

// TTSTool converts text to speech with ElevenLabs and writes the audio under
// the output root.
type TTSTool struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	ws         *workspace.Workspace
}

// TTSOption configures a TTSTool.
type TTSOption func(*TTSTool)

// WithTTSAPIKey sets the ElevenLabs API key.
func WithTTSAPIKey(key string) TTSOption {
	return func(t *TTSTool) { t.apiKey = key }
}

// WithTTSBaseURL points the tool at another endpoint.
func WithTTSBaseURL(u string) TTSOption {
	return func(t *TTSTool) { t.baseURL = strings.TrimRight(u, "/") }
}

// WithTTSHTTPClient sets the HTTP client.
func WithTTSHTTPClient(c *http.Client) TTSOption {
	return func(t *TTSTool) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// NewTTSTool returns the "elevenlabs_tts" tool.
func NewTTSTool(ws *workspace.Workspace, opts ...TTSOption) *TTSTool {
	t := &TTSTool{
		baseURL:    elevenLabsBaseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		ws:         ws,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TTSTool) Name() string { return "elevenlabs_tts" }

func (t *TTSTool) Description() string {
	return "Synthesises speech with ElevenLabs and saves the audio. Args: text, voice_id, model_id, output_format, output_path."
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (t *TTSTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	if t.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs API key not configured")
	}
	text, err := requireString(args, "text")
	if err != nil {
		return nil, err
	}
	voice, err := requireString(args, "voice_id")
	if err != nil {
		return nil, err
	}
	model := optString(args, defaultTTSModel, "model_id")
	format := optString(args, defaultTTSOutputFormat, "output_format")
	outPath := optString(args, defaultTTSOutputPath, "output_path")

	// Validate the destination before paying for synthesis.
	if _, err := t.ws.Path(outPath); err != nil {
		return nil, err
	}

	body, err := json.Marshal(ttsRequest{Text: text, ModelID: model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		t.baseURL, url.PathEscape(voice), url.QueryEscape(format))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Tool: t.Name(), Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs returned no audio")
	}
	return t.ws.WriteFile(outPath, audio)
}
