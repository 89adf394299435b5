package generation

import (
	tiktoken "github.com/pkoukk/tiktoken-go"
)

// TokenEstimator estimates token usage of a prompt.
type TokenEstimator func(text string) int

// NewTikTokenEstimator returns a TokenEstimator backed by tiktoken-go for the given model.
// The count is an approximation for non-OpenAI providers; it is only logged.
// If the model is unknown, EncodingForModel returns an error.
func NewTikTokenEstimator(model string) (TokenEstimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}
