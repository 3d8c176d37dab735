// Package analyze turns raw document text into the term stream an index
// builder consumes. It sits outside the inverted-index core: the builder
// only ever sees strings, and nothing in pkg/index or pkg/query imports
// this package directly. cmd/blazeidx and test fixtures use it to avoid
// hand-writing token streams.
package analyze

import (
	"strings"
	"unicode"

	snowballeng "github.com/kljensen/snowball/english"
)

// Config controls the analysis pipeline.
type Config struct {
	MinTokenLength  int
	EnableStemming  bool
	EnableStopwords bool
}

// DefaultConfig applies stemming and stopword removal with a minimum
// token length of 2, matching common IR test-collection conventions.
func DefaultConfig() Config {
	return Config{
		MinTokenLength:  2,
		EnableStemming:  true,
		EnableStopwords: true,
	}
}

// Analyze runs text through the default pipeline: tokenize, lowercase,
// drop stopwords, drop short tokens, stem.
func Analyze(text string) []string {
	return AnalyzeWithConfig(text, DefaultConfig())
}

// AnalyzeWithConfig runs text through the pipeline under a custom
// configuration.
func AnalyzeWithConfig(text string, cfg Config) []string {
	tokens := tokenize(text)
	tokens = lowercase(tokens)
	if cfg.EnableStopwords {
		tokens = dropStopwords(tokens)
	}
	tokens = dropShort(tokens, cfg.MinTokenLength)
	if cfg.EnableStemming {
		tokens = stem(tokens)
	}
	return tokens
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func lowercase(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = strings.ToLower(t)
	}
	return out
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "that": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "will": {}, "with": {},
}

func dropStopwords(tokens []string) []string {
	out := tokens[:0]
	for _, t := range tokens {
		if _, stop := stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func dropShort(tokens []string, minLen int) []string {
	out := tokens[:0]
	for _, t := range tokens {
		if len(t) >= minLen {
			out = append(out, t)
		}
	}
	return out
}

func stem(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = snowballeng.Stem(t, false)
	}
	return out
}
