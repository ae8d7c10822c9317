package usage

import (
	"math"
	"unicode"
)

// Estimator approximates token counts without a model tokenizer.
// Han, kana and hangul runes count as one token each; any other
// non-space text counts as one token per CharsPerToken characters.
type Estimator struct {
	CharsPerToken float64
}

// Count returns the estimated token count of text.
func (e Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = 4
	}

	var cjk, other int
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
			cjk++
		case unicode.IsSpace(r):
		default:
			other++
		}
	}

	tokens := cjk + int(math.Ceil(float64(other)/ratio))
	if tokens == 0 {
		// whitespace-only text still costs a token
		return 1
	}
	return tokens
}
