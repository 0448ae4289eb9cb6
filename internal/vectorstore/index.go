// Package vectorstore holds the similarity-searchable course index: a small
// catalog of courses (used to resolve course names) and the chunked course
// content. Distances are squared euclidean distances between unit vectors,
// so 0 is identical and 4 is opposite.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/cortexai/coursebot/internal/models"
)

// Filter narrows content search. Zero values mean "no restriction".
type Filter struct {
	CourseTitle  string
	LessonNumber *int
}

// Hit is one content chunk returned by Nearest.
type Hit struct {
	ID           string
	Document     string
	CourseTitle  string
	LessonNumber *int
	ChunkIndex   int
	Distance     float64
}

// CourseHit is the closest catalog entry for a query vector.
type CourseHit struct {
	Course   models.Course
	Distance float64
}

// Index is implemented by every index backend.
type Index interface {
	// Nearest returns up to k content hits ordered by ascending distance.
	Nearest(ctx context.Context, vec []float32, k int, f Filter) ([]Hit, error)
	// NearestCourse returns the closest catalog entry, or nil when the catalog is empty.
	NearestCourse(ctx context.Context, vec []float32) (*CourseHit, error)
	// Course returns the catalog entry with exactly this title, or nil.
	Course(ctx context.Context, title string) (*models.Course, error)
	// Courses lists every catalog entry.
	Courses(ctx context.Context) ([]models.Course, error)
	// UpsertCourse adds or replaces the catalog entry keyed by course title.
	UpsertCourse(ctx context.Context, course models.Course, vec []float32) error
	// UpsertChunks adds or replaces content chunks keyed by (course title, chunk index).
	UpsertChunks(ctx context.Context, chunks []models.CourseChunk, vecs [][]float32) error
	// DeleteChunks removes every content chunk of the course with this exact title.
	DeleteChunks(ctx context.Context, courseTitle string) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// ChunkID is the stable identifier of a content chunk.
func ChunkID(courseTitle string, chunkIndex int) string {
	return fmt.Sprintf("%s#%d", courseTitle, chunkIndex)
}

func checkChunkInput(chunks []models.CourseChunk, vecs [][]float32) error {
	if len(chunks) != len(vecs) {
		return fmt.Errorf("got %d chunks but %d embeddings", len(chunks), len(vecs))
	}
	return nil
}
