package tokenizer

import (
	"strings"
	"sync"
	"unicode"
)

// Vocab is a reversible segment tokenizer. Text is segmented into
// alphanumeric runs, whitespace runs, and single symbol runes; each
// distinct segment is interned into a growing id table.
//
// Ids are stable within one Vocab instance, which is all the engine
// needs: the same instance encodes at insert time and decodes at render
// time. Safe for concurrent use.
type Vocab struct {
	mu       sync.Mutex
	ids      map[string]int
	segments []string
}

// NewVocab creates an empty vocabulary tokenizer.
func NewVocab() *Vocab {
	return &Vocab{
		ids: make(map[string]int),
	}
}

// Encode converts text to token ids, interning unseen segments.
func (v *Vocab) Encode(text string) []int {
	segs := segment(text)
	if len(segs) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	tokens := make([]int, len(segs))
	for i, seg := range segs {
		id, ok := v.ids[seg]
		if !ok {
			id = len(v.segments)
			v.ids[seg] = id
			v.segments = append(v.segments, seg)
		}
		tokens[i] = id
	}
	return tokens
}

// Decode converts token ids back to text. Unknown ids decode to nothing.
func (v *Vocab) Decode(tokens []int) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var sb strings.Builder
	for _, id := range tokens {
		if id >= 0 && id < len(v.segments) {
			sb.WriteString(v.segments[id])
		}
	}
	return sb.String()
}

// segment splits text into alphanumeric runs, whitespace runs, and
// single symbol runes. Concatenating the segments reproduces the input.
func segment(text string) []string {
	var segs []string
	runes := []rune(text)

	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
				j++
			}
			segs = append(segs, string(runes[i:j]))
			i = j
		case unicode.IsSpace(r):
			j := i
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			segs = append(segs, string(runes[i:j]))
			i = j
		default:
			segs = append(segs, string(r))
			i++
		}
	}
	return segs
}
