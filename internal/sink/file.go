package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"newspipe/pkg/models"
)

// openAppend opens path for appending, creating missing parent directories
// so a fresh checkout can write into data/ without setup.
func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// wireRecord is the downstream contract: field names and their order are
// load-bearing for consumers, so they live here and nowhere else.
type wireRecord struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary"`
	PublishedAt *string `json:"publishedAt"`
	Source      string  `json:"source"`
	Fingerprint string  `json:"fingerprint"`
}

// wireRecordScored adds the sentiment field. It only appears on the wire
// when the sentiment stage is enabled; a scorer failure shows as null.
type wireRecordScored struct {
	wireRecord
	SentimentScore *float64 `json:"sentimentScore"`
}

func toWire(rec models.ArticleRecord, sentiment bool) any {
	w := wireRecord{
		URL:         rec.URL,
		Title:       rec.Title,
		Summary:     rec.Summary,
		PublishedAt: isoTime(rec.PublishedAt),
		Source:      rec.Source,
		Fingerprint: rec.Fingerprint,
	}
	if !sentiment {
		return w
	}
	return wireRecordScored{wireRecord: w, SentimentScore: rec.SentimentScore}
}

func isoTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// JSONLSink appends one JSON object per line. Appending keeps scheduled
// runs accumulating into the same file.
type JSONLSink struct {
	mu        sync.Mutex
	f         *os.File
	enc       *json.Encoder
	sentiment bool
}

func NewJSONL(path string, sentiment bool) (*JSONLSink, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open jsonl sink: %w", err)
	}
	return &JSONLSink{f: f, enc: json.NewEncoder(f), sentiment: sentiment}, nil
}

func (s *JSONLSink) Emit(_ context.Context, rec models.ArticleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(toWire(rec, s.sentiment))
}

func (s *JSONLSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// CSVSink writes one row per record. The header is written only when the
// file starts empty, so appended runs stay machine-readable.
type CSVSink struct {
	mu        sync.Mutex
	f         *os.File
	w         *csv.Writer
	sentiment bool
}

func NewCSV(path string, sentiment bool) (*CSVSink, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open csv sink: %w", err)
	}
	s := &CSVSink{f: f, w: csv.NewWriter(f), sentiment: sentiment}

	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		header := []string{"url", "title", "summary", "publishedAt", "source", "fingerprint"}
		if sentiment {
			header = append(header, "sentimentScore")
		}
		s.w.Write(header)
		s.w.Flush()
	}
	if err := s.w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return s, nil
}

func (s *CSVSink) Emit(_ context.Context, rec models.ArticleRecord) error {
	row := []string{rec.URL, rec.Title, rec.Summary, "", rec.Source, rec.Fingerprint}
	if rec.PublishedAt != nil {
		row[3] = rec.PublishedAt.UTC().Format(time.RFC3339)
	}
	if s.sentiment {
		cell := ""
		if rec.SentimentScore != nil {
			cell = strconv.FormatFloat(*rec.SentimentScore, 'f', -1, 64)
		}
		row = append(row, cell)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Write(row)
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
