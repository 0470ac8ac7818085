// Package splitter chunks text into token-bounded pieces with optional
// overlap, recursively descending through a separator hierarchy.
package splitter

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Stevenic/vectra-sub001/tokenizer"
)

// Chunk is one piece of split text. StartPos and EndPos are inclusive
// byte offsets into the original input. StartOverlap and EndOverlap hold
// tokens borrowed from the neighboring chunks.
type Chunk struct {
	Text         string
	Tokens       []int
	StartPos     int
	EndPos       int
	StartOverlap []int
	EndOverlap   []int
}

// Options for the splitter.
type Options struct {
	// Separators tried in order during recursive descent. Empty means
	// doc-type defaults.
	Separators []string

	// KeepSeparators keeps the matched separator attached to the
	// preceding fragment instead of dropping it.
	KeepSeparators bool

	// ChunkSize is the maximum token count per chunk. Must be >= 1.
	ChunkSize int

	// ChunkOverlap is the number of tokens borrowed from each neighbor.
	// Must satisfy 0 <= ChunkOverlap <= ChunkSize.
	ChunkOverlap int

	// DocType selects the default separator hierarchy, e.g. "md".
	DocType string
}

// DefaultOptions are the options used when none are overridden.
var DefaultOptions = Options{
	ChunkSize:    400,
	ChunkOverlap: 40,
}

// Splitter splits text into token-bounded chunks.
type Splitter struct {
	opts Options
	tk   tokenizer.Tokenizer
}

// New creates a splitter. It fails when the chunk size or overlap
// options are out of range.
func New(tk tokenizer.Tokenizer, optFns ...func(o *Options)) (*Splitter, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if tk == nil {
		return nil, fmt.Errorf("splitter: tokenizer is required")
	}
	if opts.ChunkSize < 1 {
		return nil, fmt.Errorf("splitter: chunk size must be >= 1, got %d", opts.ChunkSize)
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap > opts.ChunkSize {
		return nil, fmt.Errorf("splitter: chunk overlap must be in [0, %d], got %d", opts.ChunkSize, opts.ChunkOverlap)
	}
	if len(opts.Separators) == 0 {
		opts.Separators = separatorsForDocType(opts.DocType)
	}

	return &Splitter{opts: opts, tk: tk}, nil
}

// Split chunks text. Every returned chunk's token count is at most
// ChunkSize, except fragments that cannot be subdivided further.
func (s *Splitter) Split(text string) []Chunk {
	leaves := s.splitRecursive(text, 0, s.opts.Separators)
	chunks := s.combineChunks(leaves)
	s.addOverlaps(chunks)
	return chunks
}

// fragment is a candidate piece of text with its offset in the input.
type fragment struct {
	text string
	pos  int
}

// splitRecursive descends through the separator hierarchy, returning
// leaf chunks in input order. It is pure: each call returns an owned
// slice and shares no state with sibling calls.
func (s *Splitter) splitRecursive(text string, pos int, separators []string) []Chunk {
	if len(text) == 0 {
		return nil
	}

	var frags []fragment
	var remaining []string
	switch {
	case len(separators) == 0:
		frags = bisect(text, pos)
	case separators[0] == " ":
		// Space splitting is token aware: tokenize once and cut at
		// chunk-size boundaries so huge single-line inputs stay bounded.
		return s.splitTokenwise(text, pos)
	default:
		frags = splitOnSeparator(text, pos, separators[0], s.opts.KeepSeparators)
		remaining = separators[1:]
	}

	var leaves []Chunk
	for _, frag := range frags {
		if !containsAlphanumeric(frag.text) {
			continue
		}
		if len(frag.text)/6 > s.opts.ChunkSize {
			leaves = append(leaves, s.splitRecursive(frag.text, frag.pos, remaining)...)
			continue
		}
		tokens := s.tk.Encode(frag.text)
		if len(tokens) > s.opts.ChunkSize && len([]rune(frag.text)) > 1 {
			leaves = append(leaves, s.splitRecursive(frag.text, frag.pos, remaining)...)
			continue
		}
		leaves = append(leaves, Chunk{
			Text:     frag.text,
			Tokens:   tokens,
			StartPos: frag.pos,
			EndPos:   frag.pos + len(frag.text) - 1,
		})
	}
	return leaves
}

// splitTokenwise cuts text at chunk-size token boundaries.
func (s *Splitter) splitTokenwise(text string, pos int) []Chunk {
	tokens := s.tk.Encode(text)

	var leaves []Chunk
	for start := 0; start < len(tokens); start += s.opts.ChunkSize {
		end := min(start+s.opts.ChunkSize, len(tokens))
		piece := tokens[start:end]
		pieceText := s.tk.Decode(piece)
		if containsAlphanumeric(pieceText) {
			leaves = append(leaves, Chunk{
				Text:     pieceText,
				Tokens:   append([]int(nil), piece...),
				StartPos: pos,
				EndPos:   pos + len(pieceText) - 1,
			})
		}
		pos += len(pieceText)
	}
	return leaves
}

// combineChunks greedily merges adjacent leaves while the merged token
// count stays within the chunk size.
func (s *Splitter) combineChunks(leaves []Chunk) []Chunk {
	if len(leaves) == 0 {
		return nil
	}

	joiner := " "
	if s.opts.KeepSeparators {
		joiner = ""
	}

	var chunks []Chunk
	cur := leaves[0]
	for _, next := range leaves[1:] {
		mergedText := cur.Text + joiner + next.Text
		mergedTokens := s.tk.Encode(mergedText)
		if len(mergedTokens) <= s.opts.ChunkSize {
			cur = Chunk{
				Text:     mergedText,
				Tokens:   mergedTokens,
				StartPos: cur.StartPos,
				EndPos:   next.EndPos,
			}
			continue
		}
		chunks = append(chunks, cur)
		cur = next
	}
	return append(chunks, cur)
}

// addOverlaps borrows up to ChunkOverlap trailing tokens from the
// previous chunk and leading tokens from the next.
func (s *Splitter) addOverlaps(chunks []Chunk) {
	overlap := s.opts.ChunkOverlap
	if overlap == 0 {
		return
	}
	for i := range chunks {
		if i > 0 {
			prev := chunks[i-1].Tokens
			n := min(overlap, len(prev))
			chunks[i].StartOverlap = append([]int(nil), prev[len(prev)-n:]...)
		}
		if i < len(chunks)-1 {
			next := chunks[i+1].Tokens
			n := min(overlap, len(next))
			chunks[i].EndOverlap = append([]int(nil), next[:n]...)
		}
	}
}

// splitOnSeparator splits text on sep, tracking each fragment's offset.
// With keep, the separator stays attached to the preceding fragment.
func splitOnSeparator(text string, pos int, sep string, keep bool) []fragment {
	var frags []fragment
	for {
		idx := strings.Index(text, sep)
		if idx < 0 {
			frags = append(frags, fragment{text: text, pos: pos})
			return frags
		}
		part := text[:idx]
		if keep {
			part = text[:idx+len(sep)]
		}
		frags = append(frags, fragment{text: part, pos: pos})
		text = text[idx+len(sep):]
		pos += idx + len(sep)
	}
}

// bisect splits text at its rune midpoint.
func bisect(text string, pos int) []fragment {
	runes := []rune(text)
	if len(runes) < 2 {
		return []fragment{{text: text, pos: pos}}
	}
	head := string(runes[:len(runes)/2])
	return []fragment{
		{text: head, pos: pos},
		{text: text[len(head):], pos: pos + len(head)},
	}
}

func containsAlphanumeric(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// separatorsForDocType returns the default separator hierarchy for a
// document type. The final " " entry triggers token-aware splitting.
func separatorsForDocType(docType string) []string {
	switch strings.ToLower(strings.TrimPrefix(docType, ".")) {
	case "md", "markdown", "mdx":
		return []string{
			"\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
			"```\n\n", "\n\n***\n\n", "\n\n---\n\n", "\n\n___\n\n",
			"\n\n", "\n", " ",
		}
	case "go", "c", "cc", "cpp", "cs", "java", "js", "jsx", "ts", "tsx", "rs", "swift", "kt", "scala", "php":
		return []string{
			"\nfunc ", "\nclass ", "\nfunction ", "\nstruct ", "\ninterface ",
			"\n\n", "\n\t", "\n", " ",
		}
	case "py", "python":
		return []string{
			"\nclass ", "\ndef ", "\n\tdef ", "\n\n", "\n", " ",
		}
	case "html", "htm":
		return []string{
			"<body", "<div", "<p", "<br", "<li", "<h1", "<h2", "<h3",
			"<table", "<tr", "\n\n", "\n", " ",
		}
	default:
		return []string{"\n\n", "\n", " "}
	}
}
