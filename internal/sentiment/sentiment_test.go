package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLexiconScore(t *testing.T) {
	s := NewLexiconScorer()

	score, err := s.Score(context.Background(), "Markets rally as strong growth beats expectations")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score <= 0 {
		t.Errorf("upbeat text scored %v, want > 0", score)
	}

	score, err = s.Score(context.Background(), "Factory fire kills three, shares plunge amid crisis")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score >= 0 {
		t.Errorf("grim text scored %v, want < 0", score)
	}

	score, err = s.Score(context.Background(), "One win and one loss on the day")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 0 {
		t.Errorf("balanced text scored %v, want 0", score)
	}
}

func TestLexiconNoSignal(t *testing.T) {
	s := NewLexiconScorer()
	if _, err := s.Score(context.Background(), "the committee met on tuesday"); !errors.Is(err, ErrNoSignal) {
		t.Errorf("error = %v, want ErrNoSignal", err)
	}
	if _, err := s.Score(context.Background(), ""); !errors.Is(err, ErrNoSignal) {
		t.Errorf("empty text error = %v, want ErrNoSignal", err)
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.5, "positive"},
		{0.11, "positive"},
		{0.1, "neutral"},
		{0, "neutral"},
		{-0.1, "neutral"},
		{-0.11, "negative"},
		{-1, "negative"},
	}
	for _, tt := range tests {
		if got := Label(tt.score); got != tt.want {
			t.Errorf("Label(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestOllamaScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "mistral" {
			t.Errorf("model = %q, want mistral", req.Model)
		}
		if req.Stream {
			t.Error("request should disable streaming")
		}
		json.NewEncoder(w).Encode(generateResponse{Response: " -0.75 ", Done: true})
	}))
	defer srv.Close()

	s := NewOllamaScorer(srv.URL, "mistral")
	score, err := s.Score(context.Background(), "Plant closure announced")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != -0.75 {
		t.Errorf("score = %v, want -0.75", score)
	}
}

func TestOllamaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewOllamaScorer(srv.URL, "mistral")
	if _, err := s.Score(context.Background(), "anything"); err == nil {
		t.Fatal("want error on 500 response")
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		answer  string
		want    float64
		wantErr bool
	}{
		{"0.8", 0.8, false},
		{"-0.25", -0.25, false},
		{"0.7.", 0.7, false},
		{"1.5", 1, false},
		{"-3", -1, false},
		{"Positive", 1, false},
		{"The sentiment is negative.", -1, false},
		{"neutral", 0, false},
		{"I cannot help with that", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := parseScore(tt.answer)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseScore(%q): want error, got %v", tt.answer, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseScore(%q): %v", tt.answer, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseScore(%q) = %v, want %v", tt.answer, got, tt.want)
		}
	}
}
