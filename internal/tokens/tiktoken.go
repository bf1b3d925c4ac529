package tokens

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// DefaultModel selects cl100k_base, the encoding of the Assistants-era models.
const DefaultModel = "gpt-4"

// TiktokenCounter counts tokens with an OpenAI tiktoken encoding.
type TiktokenCounter struct {
	model string
	codec tokenizer.Codec
}

var _ Counter = (*TiktokenCounter)(nil)

// NewTiktokenCounter loads the encoding for model. An empty model uses
// DefaultModel.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	if model == "" {
		model = DefaultModel
	}

	codec, err := tokenizer.ForModel(mapModelName(model))
	if err != nil {
		// Fall back to encoding based on model prefix
		codec, err = tokenizer.Get(modelToEncoding(model))
		if err != nil {
			return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
		}
	}

	return &TiktokenCounter{model: model, codec: codec}, nil
}

// Count returns the number of tokens in text. Encoding errors count as zero.
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

// Estimated is false: tiktoken provides exact counts.
func (c *TiktokenCounter) Estimated() bool {
	return false
}

// Model returns the model the encoding was chosen for.
func (c *TiktokenCounter) Model() string {
	return c.model
}

// mapModelName maps a model string to tokenizer.Model
func mapModelName(model string) tokenizer.Model {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4.1") || strings.HasPrefix(model, "gpt-41"):
		return tokenizer.GPT41
	case strings.HasPrefix(model, "gpt-4o"):
		return tokenizer.GPT4o
	case strings.HasPrefix(model, "gpt-4"):
		return tokenizer.GPT4
	case strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.GPT35Turbo
	case strings.HasPrefix(model, "text-embedding"):
		return tokenizer.TextEmbeddingAda002
	default:
		return tokenizer.Model(model)
	}
}

// modelToEncoding maps model names to encoding names for fallback.
//
// Encoding reference:
// - O200kBase: GPT-5, GPT-4.1, GPT-4o, O-series
// - Cl100kBase: GPT-4, GPT-3.5-turbo, text-embedding-ada-002
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-41"),
		strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	default:
		return tokenizer.Cl100kBase
	}
}
