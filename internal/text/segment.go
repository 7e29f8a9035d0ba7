package text

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Segment is one unit of speech. Expression names the expression or motion
// applied before Text is spoken; an empty Expression means untagged.
type Segment struct {
	Expression string `json:"expression,omitempty"`
	Text       string `json:"text"`
}

// ExtractSegments splits annotated text into ordered segments. A word of the
// form "(label)" whose label is in labels (or matches a label with its
// underscores removed) starts a new segment tagged with that label. Unknown
// parenthesised words are kept as ordinary text.
func ExtractSegments(input string, labels []string) []Segment {
	words := strings.Fields(norm.NFC.String(input))
	if len(words) == 0 {
		return nil
	}

	lookup := labelIndex(labels)

	var (
		segs    []Segment
		current Segment
		started bool
		body    []string
	)

	flush := func() {
		if !started && len(body) == 0 {
			return
		}
		current.Text = strings.Join(body, " ")
		segs = append(segs, current)
		current = Segment{}
		body = body[:0]
		started = false
	}

	for _, w := range words {
		if label, ok := matchTag(w, lookup); ok {
			flush()
			current.Expression = label
			started = true
			continue
		}
		body = append(body, w)
	}
	flush()

	return segs
}

// SplitLongSegments splits segments whose text exceeds maxChars at sentence
// boundaries. Only the first piece keeps the tag. maxChars <= 0 returns segs
// unchanged.
func SplitLongSegments(segs []Segment, maxChars int) []Segment {
	if maxChars <= 0 {
		return segs
	}

	out := make([]Segment, 0, len(segs))
	for _, s := range segs {
		if len(s.Text) <= maxChars {
			out = append(out, s)
			continue
		}
		for i, chunk := range ChunkSentences(s.Text, maxChars) {
			piece := Segment{Text: chunk}
			if i == 0 {
				piece.Expression = s.Expression
			}
			out = append(out, piece)
		}
	}

	return out
}

// Words returns the concatenated words of all segment texts.
func Words(segs []Segment) []string {
	var words []string
	for _, s := range segs {
		words = append(words, strings.Fields(s.Text)...)
	}

	return words
}

func labelIndex(labels []string) map[string]string {
	idx := make(map[string]string, len(labels)*2)
	for _, l := range labels {
		if l == "" {
			continue
		}
		if _, ok := idx[l]; !ok {
			idx[l] = l
		}
		compact := strings.ReplaceAll(l, "_", "")
		if _, ok := idx[compact]; !ok {
			idx[compact] = l
		}
	}

	return idx
}

func matchTag(word string, lookup map[string]string) (string, bool) {
	w := strings.TrimRight(word, ".?!,")
	if len(w) < 3 || w[0] != '(' || w[len(w)-1] != ')' {
		return "", false
	}
	label, ok := lookup[w[1:len(w)-1]]

	return label, ok
}
