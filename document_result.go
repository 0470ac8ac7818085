package vectra

import (
	"context"
	"sort"
	"strings"
)

// DocumentSection is a rendered run of document text fitting a token
// budget.
type DocumentSection struct {
	Text       string
	TokenCount int
	Score      float32
	IsBM25     bool
}

// DocumentResult is a document matched by a query, together with its
// matched chunks and their mean score.
type DocumentResult struct {
	*Document
	chunks []QueryResult
	score  float32
}

// Chunks returns the matched chunk hits.
func (r *DocumentResult) Chunks() []QueryResult {
	return r.chunks
}

// Score returns the mean similarity score of the matched chunks.
func (r *DocumentResult) Score() float32 {
	return r.score
}

// renderedChunk is a matched chunk re-sliced from the document text.
type renderedChunk struct {
	text       string
	tokens     []int
	startPos   int
	endPos     int
	score      float32
	isBM25     bool
	tokenCount int
}

// renderChunks re-slices and re-tokenizes the matched chunks from the
// raw document text, sorted by position.
func (r *DocumentResult) renderChunks(ctx context.Context) (string, []renderedChunk, error) {
	text, err := r.GetText(ctx)
	if err != nil {
		return "", nil, err
	}

	tk := r.index.docOpts.tokenizer
	chunks := make([]renderedChunk, 0, len(r.chunks))
	for _, hit := range r.chunks {
		start := metaInt(hit.Item.Metadata, "startPos")
		end := metaInt(hit.Item.Metadata, "endPos")
		if start < 0 || end < start || end >= len(text) {
			continue
		}
		span := text[start : end+1]
		tokens := tk.Encode(span)
		isBM25, _ := hit.Item.Metadata["isBm25"].(bool)
		chunks = append(chunks, renderedChunk{
			text:       span,
			tokens:     tokens,
			startPos:   start,
			endPos:     end,
			score:      hit.Score,
			isBM25:     isBM25,
			tokenCount: len(tokens),
		})
	}
	sort.SliceStable(chunks, func(a, b int) bool {
		return chunks[a].startPos < chunks[b].startPos
	})
	return text, chunks, nil
}

// RenderAllSections renders every matched chunk into sections of at
// most maxTokens tokens. Oversized chunks are split into consecutive
// sub-pieces first; each section scores the mean of its pieces.
func (r *DocumentResult) RenderAllSections(ctx context.Context, maxTokens int) ([]DocumentSection, error) {
	_, chunks, err := r.renderChunks(ctx)
	if err != nil {
		return nil, err
	}
	tk := r.index.docOpts.tokenizer

	var pieces []renderedChunk
	for _, chunk := range chunks {
		if chunk.tokenCount <= maxTokens {
			pieces = append(pieces, chunk)
			continue
		}
		pos := chunk.startPos
		for start := 0; start < len(chunk.tokens); start += maxTokens {
			end := min(start+maxTokens, len(chunk.tokens))
			sub := chunk.tokens[start:end]
			subText := tk.Decode(sub)
			pieces = append(pieces, renderedChunk{
				text:       subText,
				tokens:     sub,
				startPos:   pos,
				endPos:     pos + len(subText) - 1,
				score:      chunk.score,
				isBM25:     chunk.isBM25,
				tokenCount: len(sub),
			})
			pos += len(subText)
		}
	}
	sort.SliceStable(pieces, func(a, b int) bool {
		return pieces[a].startPos < pieces[b].startPos
	})

	sections := packSections(pieces, maxTokens)
	return renderSectionTexts(sections), nil
}

// RenderSections renders the top maxSections best-scoring sections, each
// within maxTokens tokens. When the whole document fits the budget, it
// is returned as a single section with score 1.0. With overlap set,
// each section is expanded with surrounding document text until the
// token budget is exhausted.
func (r *DocumentResult) RenderSections(ctx context.Context, maxTokens, maxSections int, overlap bool) ([]DocumentSection, error) {
	length, err := r.GetLength(ctx)
	if err != nil {
		return nil, err
	}
	text, chunks, err := r.renderChunks(ctx)
	if err != nil {
		return nil, err
	}
	tk := r.index.docOpts.tokenizer

	if length <= maxTokens {
		return []DocumentSection{{
			Text:       text,
			TokenCount: length,
			Score:      1.0,
		}}, nil
	}

	// Chunks that alone blow the budget cannot participate in packing.
	fitting := make([]renderedChunk, 0, len(chunks))
	var best *renderedChunk
	for pos := range chunks {
		chunk := chunks[pos]
		if best == nil || chunk.score > best.score {
			best = &chunks[pos]
		}
		if chunk.tokenCount <= maxTokens {
			fitting = append(fitting, chunk)
		}
	}

	if len(fitting) == 0 {
		if best == nil {
			return nil, nil
		}
		truncated := best.tokens[:min(maxTokens, len(best.tokens))]
		return []DocumentSection{{
			Text:       tk.Decode(truncated),
			TokenCount: len(truncated),
			Score:      best.score,
			IsBM25:     best.isBM25,
		}}, nil
	}

	// Semantic and BM25 hits pack into independent section lists.
	var semantic, bm25 []renderedChunk
	for _, chunk := range fitting {
		if chunk.isBM25 {
			bm25 = append(bm25, chunk)
		} else {
			semantic = append(semantic, chunk)
		}
	}
	sections := append(packSections(semantic, maxTokens), packSections(bm25, maxTokens)...)

	sort.SliceStable(sections, func(a, b int) bool {
		return sections[a].score > sections[b].score
	})
	if len(sections) > maxSections {
		sections = sections[:maxSections]
	}

	if overlap {
		for pos := range sections {
			r.expandSection(&sections[pos], text, maxTokens)
		}
	}
	return renderSectionTexts(sections), nil
}

// section is a packed run of rendered chunks.
type section struct {
	chunks     []renderedChunk
	tokenCount int
	score      float32
	isBM25     bool
	prefix     string
	suffix     string
}

// packSections greedily groups position-sorted chunks into sections
// while the running token count stays within the budget.
func packSections(chunks []renderedChunk, maxTokens int) []section {
	var sections []section
	var cur *section
	for _, chunk := range chunks {
		if cur == nil || cur.tokenCount+chunk.tokenCount > maxTokens {
			sections = append(sections, section{isBM25: chunk.isBM25})
			cur = &sections[len(sections)-1]
		}
		cur.chunks = append(cur.chunks, chunk)
		cur.tokenCount += chunk.tokenCount
	}
	for pos := range sections {
		var total float32
		for _, chunk := range sections[pos].chunks {
			total += chunk.score
		}
		sections[pos].score = total / float32(len(sections[pos].chunks))
	}
	return sections
}

// expandSection grows a section with the document text surrounding its
// boundary chunks, spending whatever token budget remains.
func (r *DocumentResult) expandSection(s *section, text string, maxTokens int) {
	budget := maxTokens - s.tokenCount
	if budget <= 0 || len(s.chunks) == 0 {
		return
	}
	tk := r.index.docOpts.tokenizer

	before := text[:s.chunks[0].startPos]
	after := ""
	if end := s.chunks[len(s.chunks)-1].endPos + 1; end < len(text) {
		after = text[end:]
	}

	if before != "" {
		tokens := tk.Encode(before)
		n := min(budget/2, len(tokens))
		if n > 0 {
			s.prefix = tk.Decode(tokens[len(tokens)-n:])
			s.tokenCount += n
			budget -= n
		}
	}
	if after != "" && budget > 0 {
		tokens := tk.Encode(after)
		n := min(budget, len(tokens))
		if n > 0 {
			s.suffix = tk.Decode(tokens[:n])
			s.tokenCount += n
		}
	}
}

// renderSectionTexts materializes packed sections into their final form.
func renderSectionTexts(sections []section) []DocumentSection {
	out := make([]DocumentSection, len(sections))
	for pos, s := range sections {
		texts := make([]string, len(s.chunks))
		for i, chunk := range s.chunks {
			texts[i] = chunk.text
		}
		out[pos] = DocumentSection{
			Text:       s.prefix + strings.Join(texts, "\n\n") + s.suffix,
			TokenCount: s.tokenCount,
			Score:      s.score,
			IsBM25:     s.isBM25,
		}
	}
	return out
}

// metaInt reads an integer metadata value, tolerating the numeric types
// produced by JSON decoding.
func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	default:
		return -1
	}
}
