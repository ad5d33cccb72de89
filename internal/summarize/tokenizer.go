// Package summarize packs articles into token-bounded batches and turns each
// batch into a Markdown briefing.
package summarize

import "unicode/utf8"

// CharsPerToken is the approximation used by CharTokenizer.
const CharsPerToken = 4

// Tokenizer counts model tokens in text.
type Tokenizer interface {
	Count(text string) int
}

// CharTokenizer estimates one token per four characters, rounded up.
type CharTokenizer struct{}

// Count implements Tokenizer.
func (CharTokenizer) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}
