package vectra

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stevenic/vectra-sub001/splitter"
)

func queryOneDocument(t *testing.T, docIndex *LocalDocumentIndex, uri, text, query string) *DocumentResult {
	t.Helper()
	ctx := context.Background()

	_, err := docIndex.UpsertDocument(ctx, uri, text)
	require.NoError(t, err)

	results, err := docIndex.QueryDocuments(ctx, query, func(o *QueryDocumentsOptions) {
		o.MaxChunks = 100
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, result := range results {
		if result.URI() == uri {
			return result
		}
	}
	t.Fatalf("document %s not in results", uri)
	return nil
}

func TestRenderSectionsWholeDocumentFits(t *testing.T) {
	ctx := context.Background()
	docIndex := newTestDocumentIndex(t, &fakeModel{})

	text := "a small document that fits in one section"
	result := queryOneDocument(t, docIndex, "doc", text, "small document")

	sections, err := result.RenderSections(ctx, 1000, 3, true)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, text, sections[0].Text)
	assert.Equal(t, float32(1.0), sections[0].Score)

	length, err := result.GetLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, length, sections[0].TokenCount)
}

func TestRenderSectionsRespectsBudgets(t *testing.T) {
	ctx := context.Background()
	docIndex := newTestDocumentIndex(t, &fakeModel{}, WithChunkOptions(func(o *splitter.Options) {
		o.ChunkSize = 10
		o.ChunkOverlap = 0
	}))

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("assorted filler words keep arriving in this paragraph.\n\n")
	}
	result := queryOneDocument(t, docIndex, "doc", sb.String(), "filler words")

	sections, err := result.RenderSections(ctx, 25, 2, false)
	require.NoError(t, err)
	require.NotEmpty(t, sections)
	assert.LessOrEqual(t, len(sections), 2)
	for _, section := range sections {
		assert.LessOrEqual(t, section.TokenCount, 25)
		assert.NotEmpty(t, section.Text)
	}
}

func TestRenderSectionsTruncationFallback(t *testing.T) {
	ctx := context.Background()
	docIndex := newTestDocumentIndex(t, &fakeModel{}, WithChunkOptions(func(o *splitter.Options) {
		o.ChunkSize = 40
		o.ChunkOverlap = 0
	}))

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("every chunk in this document is far larger than the render budget allows.\n\n")
	}
	result := queryOneDocument(t, docIndex, "doc", sb.String(), "render budget")

	// Budget below any chunk's own size forces the truncation path.
	sections, err := result.RenderSections(ctx, 5, 3, false)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.LessOrEqual(t, sections[0].TokenCount, 5)
	assert.NotEmpty(t, sections[0].Text)
}

func TestRenderSectionsOverlapExpansion(t *testing.T) {
	ctx := context.Background()
	docIndex := newTestDocumentIndex(t, &fakeModel{}, WithChunkOptions(func(o *splitter.Options) {
		o.ChunkSize = 10
		o.ChunkOverlap = 0
	}))

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("surrounding context words fill the rest of the document body.\n\n")
	}
	result := queryOneDocument(t, docIndex, "doc", sb.String(), "context words")

	plain, err := result.RenderSections(ctx, 40, 1, false)
	require.NoError(t, err)
	require.Len(t, plain, 1)

	expanded, err := result.RenderSections(ctx, 40, 1, true)
	require.NoError(t, err)
	require.Len(t, expanded, 1)

	// Overlap spends leftover budget on surrounding text.
	assert.GreaterOrEqual(t, expanded[0].TokenCount, plain[0].TokenCount)
	assert.LessOrEqual(t, expanded[0].TokenCount, 40)
	assert.GreaterOrEqual(t, len(expanded[0].Text), len(plain[0].Text))
}

func TestRenderAllSectionsSplitsOversizedChunks(t *testing.T) {
	ctx := context.Background()
	docIndex := newTestDocumentIndex(t, &fakeModel{}, WithChunkOptions(func(o *splitter.Options) {
		o.ChunkSize = 40
		o.ChunkOverlap = 0
	}))

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("every stored chunk carries far more tokens than the section budget permits here.\n\n")
	}
	result := queryOneDocument(t, docIndex, "doc", sb.String(), "section budget")

	// Budget below the chunk size forces each chunk into sub-pieces.
	sections, err := result.RenderAllSections(ctx, 15)
	require.NoError(t, err)
	require.NotEmpty(t, sections)
	assert.Greater(t, len(sections), len(result.Chunks()))
	for _, section := range sections {
		assert.LessOrEqual(t, section.TokenCount, 15)
		assert.NotEmpty(t, section.Text)
	}
}

func TestRenderAllSections(t *testing.T) {
	ctx := context.Background()
	docIndex := newTestDocumentIndex(t, &fakeModel{}, WithChunkOptions(func(o *splitter.Options) {
		o.ChunkSize = 10
		o.ChunkOverlap = 0
	}))

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("steady stream of prose continues through the entire document.\n\n")
	}
	result := queryOneDocument(t, docIndex, "doc", sb.String(), "steady prose")

	sections, err := result.RenderAllSections(ctx, 30)
	require.NoError(t, err)
	require.NotEmpty(t, sections)
	for _, section := range sections {
		assert.LessOrEqual(t, section.TokenCount, 30)
		assert.NotEmpty(t, section.Text)
		assert.Greater(t, section.Score, float32(0))
	}
}
