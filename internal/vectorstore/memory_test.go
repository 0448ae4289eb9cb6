package vectorstore

import (
	"context"
	"testing"

	"github.com/cortexai/coursebot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func seedMemory(t *testing.T) *MemoryIndex {
	t.Helper()
	ctx := context.Background()
	m := NewMemoryIndex()
	require.NoError(t, m.UpsertCourse(ctx, models.Course{Title: "Alpha"}, []float32{1, 0, 0}))
	require.NoError(t, m.UpsertCourse(ctx, models.Course{Title: "Beta"}, []float32{0, 1, 0}))
	require.NoError(t, m.UpsertChunks(ctx,
		[]models.CourseChunk{
			{Content: "a0", CourseTitle: "Alpha", LessonNumber: intPtr(0), ChunkIndex: 0},
			{Content: "a1", CourseTitle: "Alpha", LessonNumber: intPtr(1), ChunkIndex: 1},
			{Content: "b0", CourseTitle: "Beta", ChunkIndex: 0},
		},
		[][]float32{{1, 0, 0}, {0.8, 0.6, 0}, {0, 1, 0}},
	))
	return m
}

func TestMemoryIndex_NearestOrdersByDistance(t *testing.T) {
	m := seedMemory(t)
	hits, err := m.Nearest(context.Background(), []float32{1, 0, 0}, 5, Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "a0", hits[0].Document)
	assert.Equal(t, "a1", hits[1].Document)
	assert.Equal(t, "b0", hits[2].Document)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
	assert.InDelta(t, 2, hits[2].Distance, 1e-6)
	assert.Equal(t, "Alpha#0", hits[0].ID)
}

func TestMemoryIndex_NearestFilters(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	hits, err := m.Nearest(ctx, []float32{1, 0, 0}, 5, Filter{CourseTitle: "Alpha", LessonNumber: intPtr(1)})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a1", hits[0].Document)

	hits, err = m.Nearest(ctx, []float32{1, 0, 0}, 1, Filter{CourseTitle: "Beta"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b0", hits[0].Document)

	hits, err = m.Nearest(ctx, []float32{1, 0, 0}, 5, Filter{LessonNumber: intPtr(7)})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndex_UpsertReplaces(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	require.NoError(t, m.UpsertChunks(ctx,
		[]models.CourseChunk{{Content: "a0 v2", CourseTitle: "Alpha", ChunkIndex: 0}},
		[][]float32{{1, 0, 0}},
	))
	assert.Equal(t, 3, m.Len())

	require.NoError(t, m.UpsertCourse(ctx, models.Course{Title: "Alpha", Instructor: "New"}, []float32{1, 0, 0}))
	courses, err := m.Courses(ctx)
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, "New", courses[0].Instructor)

	err = m.UpsertChunks(ctx, []models.CourseChunk{{CourseTitle: "Alpha"}}, nil)
	assert.Error(t, err)
}

func TestMemoryIndex_Catalog(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	hit, err := m.NearestCourse(ctx, []float32{0.1, 0.9, 0})
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "Beta", hit.Course.Title)

	c, err := m.Course(ctx, "Alpha")
	require.NoError(t, err)
	require.NotNil(t, c)

	c, err = m.Course(ctx, "alpha")
	require.NoError(t, err)
	assert.Nil(t, c)

	empty, err := NewMemoryIndex().NearestCourse(ctx, []float32{1})
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestMemoryIndex_DeleteChunks(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	require.NoError(t, m.DeleteChunks(ctx, "Alpha"))
	assert.Equal(t, 1, m.Len())

	hits, err := m.Nearest(ctx, []float32{1, 0, 0}, 5, Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b0", hits[0].Document)

	// Positions are rebuilt, so upserting an existing id still replaces it.
	require.NoError(t, m.UpsertChunks(ctx,
		[]models.CourseChunk{{Content: "b0 v2", CourseTitle: "Beta", ChunkIndex: 0}},
		[][]float32{{0, 1, 0}},
	))
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.DeleteChunks(ctx, "Unknown"))
	assert.Equal(t, 1, m.Len())
}
