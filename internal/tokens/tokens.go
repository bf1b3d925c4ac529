// Package tokens estimates how many model tokens a piece of thread text
// occupies. Counts are informational and feed the usage report.
package tokens

import (
	"math"
	"strings"
)

// Counter counts tokens in plain text.
type Counter interface {
	// Count returns the token count of text.
	Count(text string) int

	// Estimated reports whether counts are approximations.
	Estimated() bool
}

// New returns a tiktoken counter for model, falling back to the character
// estimator when no encoding is available.
func New(model string) Counter {
	counter, err := NewTiktokenCounter(model)
	if err != nil {
		return NewEstimator()
	}
	return counter
}

// Estimator provides token count estimation based on character analysis.
// This is a fallback when no tokenizer encoding can be loaded.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

var _ Counter = (*Estimator)(nil)

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0,
	}
}

// Count estimates the token count, rounding up so non-empty text is never zero.
func (e *Estimator) Count(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / e.CharsPerToken))
}

// Estimated is always true.
func (e *Estimator) Estimated() bool {
	return true
}
