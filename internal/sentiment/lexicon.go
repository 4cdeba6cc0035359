package sentiment

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"newspipe/internal/textutil"
)

//go:embed positive.txt
var positiveWords string

//go:embed negative.txt
var negativeWords string

// ErrNoSignal reports text carrying none of the lexicon's words.
var ErrNoSignal = errors.New("no sentiment-bearing words")

// LexiconScorer is the offline scorer: a polarity count over two embedded
// word lists, scored as (positive - negative) / (positive + negative).
// Crude but dependency-free and fast enough to run inline per record.
type LexiconScorer struct {
	polarity map[string]int
}

func NewLexiconScorer() *LexiconScorer {
	s := &LexiconScorer{polarity: make(map[string]int)}
	for _, w := range strings.Fields(positiveWords) {
		s.polarity[w] = 1
	}
	for _, w := range strings.Fields(negativeWords) {
		s.polarity[w] = -1
	}
	return s
}

func (s *LexiconScorer) Score(_ context.Context, text string) (float64, error) {
	var pos, neg int
	for _, tok := range textutil.Tokens(text) {
		switch s.polarity[tok] {
		case 1:
			pos++
		case -1:
			neg++
		}
	}
	if pos+neg == 0 {
		return 0, ErrNoSignal
	}
	return float64(pos-neg) / float64(pos+neg), nil
}
