// Package tokenizer defines the tokenization contract the splitter and
// document layer depend on, plus a reversible default implementation.
package tokenizer

// Tokenizer converts between text and token ids.
//
// Implementations must be round-trip faithful: Decode(Encode(t)) == t
// for every supported input.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// charsPerToken is the character-ratio heuristic used when exact
// tokenization would be too expensive.
const charsPerToken = 4

// Estimate approximates the token count of text without tokenizing it,
// using a 4-chars-per-token ratio.
func Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}
