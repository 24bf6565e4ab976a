// Package tokenizer splits document text into terms. Terms are maximal runs
// of non-whitespace; case and punctuation are kept, so "Cat", "cat" and
// "cat." are three different terms.
package tokenizer

import "iter"

// isSpace matches the C-locale whitespace bytes: space, \t, \n, \v, \f and
// \r. Non-ASCII spaces such as U+00A0 and U+0085 are part of a term.
func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// Tokens returns a lazy sequence over the whitespace-delimited tokens of
// text, in document order. The sequence can be ranged over any number of
// times.
func Tokens(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := -1
		for i := 0; i < len(text); i++ {
			if isSpace(text[i]) {
				if start >= 0 {
					if !yield(text[start:i]) {
						return
					}
					start = -1
				}
			} else if start < 0 {
				start = i
			}
		}
		if start >= 0 {
			yield(text[start:])
		}
	}
}

// Tokenize collects Tokens into a slice.
func Tokenize(text string) []string {
	tokens := make([]string, 0, len(text)/6)
	for tok := range Tokens(text) {
		tokens = append(tokens, tok)
	}
	return tokens
}

// Frequencies counts occurrences of each token in text.
func Frequencies(text string) map[string]int32 {
	freqs := make(map[string]int32)
	for tok := range Tokens(text) {
		freqs[tok]++
	}
	return freqs
}
