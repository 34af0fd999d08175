package huggingface

import (
	"strings"
	"unicode"

	"github.com/daulet/tokenizers"
)

// IgnoreIndex marks sub-word positions that carry no label so the backend's
// loss function skips them: special tokens and every continuation piece of a
// split word.
const IgnoreIndex = -100

// WordIDs derives, for each sub-word token, the index of the whitespace word
// it came from. Special tokens (zero-width offsets) map to -1. A token opens
// a new word when it starts at a word boundary; BPE offsets that swallow the
// leading space and WordPiece offsets that start at the first letter are both
// handled.
func WordIDs(text string, offsets []tokenizers.Offset) []int {
	wordIDs := make([]int, len(offsets))
	cur, lastEnd := -1, -1
	for i, off := range offsets {
		start, end := int(off[0]), int(off[1])
		if start == 0 && end == 0 {
			wordIDs[i] = -1
		} else {
			atBoundary := start == 0 ||
				unicode.IsSpace(rune(text[start])) ||
				unicode.IsSpace(rune(text[start-1]))
			if atBoundary && start >= lastEnd {
				cur++
			}
			wordIDs[i] = cur
		}
		lastEnd = end
	}
	return wordIDs
}

// AlignWordLabels spreads word-level tags over sub-word tokens: the first
// piece of each word carries the word's tag, every following piece and every
// special token carries IgnoreIndex. A word split into k pieces therefore
// yields exactly one real tag and k-1 ignore markers.
func AlignWordLabels(wordIDs []int, wordTags []int) []int {
	aligned := make([]int, len(wordIDs))
	prev := -1
	for i, w := range wordIDs {
		switch {
		case w < 0:
			aligned[i] = IgnoreIndex
		case w != prev && w < len(wordTags):
			aligned[i] = wordTags[w]
		default:
			aligned[i] = IgnoreIndex
		}
		prev = w
	}
	return aligned
}

// Aligner tokenizes word sequences with the base model's tokenizer and
// aligns word-level tags to the resulting sub-word tokens.
type Aligner struct {
	tk *tokenizers.Tokenizer
}

func NewAligner(baseModel string) (*Aligner, error) {
	tk, err := tokenizers.FromPretrained(baseModel)
	if err != nil {
		return nil, err
	}
	return &Aligner{tk: tk}, nil
}

// LoadAligner is the production AlignerFactory.
func LoadAligner(baseModel string) (TagAligner, error) {
	aligner, err := NewAligner(baseModel)
	if err != nil {
		return nil, err
	}
	return aligner, nil
}

func (a *Aligner) AlignTokens(tokens []string, tags []int) []int {
	text := strings.Join(tokens, " ")
	enc := a.tk.EncodeWithOptions(text, false, tokenizers.WithReturnAllAttributes())
	return AlignWordLabels(WordIDs(text, enc.Offsets), tags)
}

func (a *Aligner) Release() {
	if a.tk != nil {
		a.tk.Close()
		a.tk = nil
	}
}
