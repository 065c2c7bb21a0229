package analysis

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// tokenCounter returns the number of prompt tokens in text.
type tokenCounter func(text string) int

// newTokenCounter resolves a tiktoken encoding for model. When no encoding can be
// loaded it falls back to a word count, which undercounts BPE tokens by a small factor.
func newTokenCounter(model string) (tokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return wordCount, err
		}
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
