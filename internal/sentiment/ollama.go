package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// OllamaScorer asks a local Ollama model to rate the text. The prompt wants
// a bare number; word answers (positive / negative / neutral) are accepted
// too since small models get chatty.
type OllamaScorer struct {
	host   string
	model  string
	client *http.Client
}

func NewOllamaScorer(host, model string) *OllamaScorer {
	if host == "" {
		host = "http://localhost:11434"
	}
	return &OllamaScorer{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		client: &http.Client{Timeout: 90 * time.Second},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

const scorePrompt = `Rate the sentiment of this news text on a scale from -1.0 (very negative) to 1.0 (very positive). Reply with the number only.

Text:
`

func (s *OllamaScorer) Score(ctx context.Context, text string) (float64, error) {
	payload, err := json.Marshal(generateRequest{Model: s.model, Prompt: scorePrompt + text})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ollama status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, fmt.Errorf("ollama unexpected response: %s", raw)
	}
	return parseScore(parsed.Response)
}

func parseScore(answer string) (float64, error) {
	answer = strings.ToLower(strings.TrimSpace(answer))
	if fields := strings.Fields(answer); len(fields) > 0 {
		if v, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "."), 64); err == nil {
			return clamp(v), nil
		}
	}
	switch {
	case strings.Contains(answer, "positive"):
		return 1, nil
	case strings.Contains(answer, "negative"):
		return -1, nil
	case strings.Contains(answer, "neutral"):
		return 0, nil
	}
	return 0, fmt.Errorf("unscoreable answer %q", answer)
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
