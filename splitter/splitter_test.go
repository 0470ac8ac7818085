package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stevenic/vectra-sub001/tokenizer"
)

func newSplitter(t *testing.T, optFns ...func(o *Options)) *Splitter {
	t.Helper()
	s, err := New(tokenizer.NewVocab(), optFns...)
	require.NoError(t, err)
	return s
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		optFn   func(o *Options)
		wantErr bool
	}{
		{name: "defaults", optFn: func(o *Options) {}},
		{name: "zero overlap", optFn: func(o *Options) { o.ChunkOverlap = 0 }},
		{name: "overlap equals size", optFn: func(o *Options) { o.ChunkSize = 10; o.ChunkOverlap = 10 }},
		{name: "zero chunk size", optFn: func(o *Options) { o.ChunkSize = 0 }, wantErr: true},
		{name: "negative chunk size", optFn: func(o *Options) { o.ChunkSize = -1 }, wantErr: true},
		{name: "negative overlap", optFn: func(o *Options) { o.ChunkOverlap = -1 }, wantErr: true},
		{name: "overlap exceeds size", optFn: func(o *Options) { o.ChunkSize = 10; o.ChunkOverlap = 11 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tokenizer.NewVocab(), tt.optFn)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("nil tokenizer", func(t *testing.T) {
		_, err := New(nil)
		assert.Error(t, err)
	})
}

func TestSplitSmallText(t *testing.T) {
	s := newSplitter(t)

	chunks := s.Split("a short paragraph that fits in one chunk")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short paragraph that fits in one chunk", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartPos)
	assert.NotEmpty(t, chunks[0].Tokens)
}

func TestSplitEmptyAndBlank(t *testing.T) {
	s := newSplitter(t)

	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split("   \n\n \t "))
	assert.Empty(t, s.Split("!!! ... ---"))
}

func TestSplitRespectsChunkSize(t *testing.T) {
	s := newSplitter(t, func(o *Options) {
		o.ChunkSize = 10
		o.ChunkOverlap = 0
	})

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("lorem ipsum dolor sit amet consectetur adipiscing elit.\n\n")
	}
	chunks := s.Split(sb.String())
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Tokens), 10)
	}
}

func TestSplitOffsetsMonotonic(t *testing.T) {
	s := newSplitter(t, func(o *Options) {
		o.ChunkSize = 8
		o.ChunkOverlap = 0
	})

	text := "first paragraph here with words.\n\nsecond paragraph with more words in it.\n\nthird one closes the document."
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	prevStart := -1
	for _, c := range chunks {
		assert.Greater(t, c.StartPos, prevStart)
		assert.GreaterOrEqual(t, c.EndPos, c.StartPos)
		prevStart = c.StartPos
	}
}

func TestSplitOverlapBounds(t *testing.T) {
	const overlap = 3
	s := newSplitter(t, func(o *Options) {
		o.ChunkSize = 8
		o.ChunkOverlap = overlap
	})

	text := strings.Repeat("alpha beta gamma delta epsilon zeta.\n\n", 10)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		if i == 0 {
			assert.Empty(t, c.StartOverlap)
		} else {
			prev := chunks[i-1]
			assert.LessOrEqual(t, len(c.StartOverlap), min(overlap, len(prev.Tokens)))
			n := len(c.StartOverlap)
			assert.Equal(t, prev.Tokens[len(prev.Tokens)-n:], c.StartOverlap)
		}
		if i == len(chunks)-1 {
			assert.Empty(t, c.EndOverlap)
		} else {
			next := chunks[i+1]
			assert.LessOrEqual(t, len(c.EndOverlap), min(overlap, len(next.Tokens)))
			assert.Equal(t, next.Tokens[:len(c.EndOverlap)], c.EndOverlap)
		}
	}
}

func TestSplitSingleLongLine(t *testing.T) {
	// No separators apply until the token-aware space split kicks in.
	s := newSplitter(t, func(o *Options) {
		o.ChunkSize = 10
		o.ChunkOverlap = 0
	})

	text := strings.TrimSpace(strings.Repeat("word ", 200))
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Tokens), 10)
	}
}

func TestSplitTinyChunkSize(t *testing.T) {
	s := newSplitter(t, func(o *Options) {
		o.ChunkSize = 1
		o.ChunkOverlap = 0
	})

	chunks := s.Split("ab cd")
	require.Len(t, chunks, 2)
	assert.Equal(t, "ab", chunks[0].Text)
	assert.Equal(t, "cd", chunks[1].Text)
}

func TestSplitCombinesAdjacentFragments(t *testing.T) {
	s := newSplitter(t, func(o *Options) {
		o.ChunkSize = 400
		o.ChunkOverlap = 0
	})

	// Several small paragraphs merge back into one chunk.
	chunks := s.Split("one two.\n\nthree four.\n\nfive six.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "one two. three four. five six.", chunks[0].Text)
}

func TestSplitKeepSeparators(t *testing.T) {
	s := newSplitter(t, func(o *Options) {
		o.ChunkSize = 400
		o.ChunkOverlap = 0
		o.KeepSeparators = true
	})

	chunks := s.Split("one two.\n\nthree four.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "one two.\n\nthree four.", chunks[0].Text)
}

func TestSplitMarkdownSeparators(t *testing.T) {
	s := newSplitter(t, func(o *Options) {
		o.ChunkSize = 6
		o.ChunkOverlap = 0
		o.DocType = "md"
	})

	text := "intro text\n## section one\nbody of section one here\n## section two\nbody of section two here"
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Tokens), 6)
	}
}

func TestSplitPure(t *testing.T) {
	s := newSplitter(t, func(o *Options) {
		o.ChunkSize = 8
		o.ChunkOverlap = 2
	})

	text := strings.Repeat("the quick brown fox jumps over the lazy dog.\n\n", 5)
	first := s.Split(text)
	second := s.Split(text)
	assert.Equal(t, first, second)
}
