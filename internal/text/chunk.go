package text

import (
	"strings"
	"unicode/utf8"
)

// closers may trail a sentence terminator, as in `"Really?"` or `(done.)`.
const closers = `"')]}»”’`

// ChunkSentences groups the sentences of s into chunks of at most maxChars
// bytes. Words are re-joined with single spaces, so the words of all chunks
// concatenated equal strings.Fields(s). A sentence longer than maxChars
// becomes a chunk of its own. maxChars <= 0 returns s as the only chunk.
func ChunkSentences(s string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{s}
	}

	sents := sentences(strings.Fields(s))
	if len(sents) <= 1 {
		return []string{s}
	}

	chunks := make([]string, 0, len(sents))
	cur := sents[0]
	for _, next := range sents[1:] {
		if len(cur)+1+len(next) > maxChars {
			chunks = append(chunks, cur)
			cur = next
			continue
		}
		cur += " " + next
	}

	return append(chunks, cur)
}

// sentences joins words into sentences ending at a word whose last
// non-closer rune is '.', '!', '?' or '…'.
func sentences(words []string) []string {
	var (
		out   []string
		start int
	)
	for i, w := range words {
		if endsSentence(w) {
			out = append(out, strings.Join(words[start:i+1], " "))
			start = i + 1
		}
	}
	if start < len(words) {
		out = append(out, strings.Join(words[start:], " "))
	}

	return out
}

func endsSentence(word string) bool {
	word = strings.TrimRight(word, closers)
	r, _ := utf8.DecodeLastRuneInString(word)
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}
