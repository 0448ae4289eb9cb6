package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/cortexai/coursebot/internal/embedding"
	"github.com/cortexai/coursebot/internal/models"
)

type memoryCourse struct {
	course models.Course
	vec    []float32
}

type memoryChunk struct {
	id    string
	chunk models.CourseChunk
	vec   []float32
}

// MemoryIndex is a brute-force in-process index. Safe for concurrent use.
type MemoryIndex struct {
	mu      sync.RWMutex
	courses []memoryCourse
	chunks  []memoryChunk
	byID    map[string]int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{byID: make(map[string]int)}
}

func (m *MemoryIndex) Nearest(ctx context.Context, vec []float32, k int, f Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.chunks))
	for _, c := range m.chunks {
		if f.CourseTitle != "" && c.chunk.CourseTitle != f.CourseTitle {
			continue
		}
		if f.LessonNumber != nil && (c.chunk.LessonNumber == nil || *c.chunk.LessonNumber != *f.LessonNumber) {
			continue
		}
		hits = append(hits, Hit{
			ID:           c.id,
			Document:     c.chunk.Content,
			CourseTitle:  c.chunk.CourseTitle,
			LessonNumber: c.chunk.LessonNumber,
			ChunkIndex:   c.chunk.ChunkIndex,
			Distance:     embedding.Distance(vec, c.vec),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryIndex) NearestCourse(ctx context.Context, vec []float32) (*CourseHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *CourseHit
	for _, c := range m.courses {
		d := embedding.Distance(vec, c.vec)
		if best == nil || d < best.Distance {
			best = &CourseHit{Course: c.course, Distance: d}
		}
	}
	return best, nil
}

func (m *MemoryIndex) Course(ctx context.Context, title string) (*models.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.courses {
		if c.course.Title == title {
			course := c.course
			return &course, nil
		}
	}
	return nil, nil
}

func (m *MemoryIndex) Courses(ctx context.Context) ([]models.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Course, len(m.courses))
	for i, c := range m.courses {
		out[i] = c.course
	}
	return out, nil
}

func (m *MemoryIndex) UpsertCourse(ctx context.Context, course models.Course, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.courses {
		if c.course.Title == course.Title {
			m.courses[i] = memoryCourse{course: course, vec: vec}
			return nil
		}
	}
	m.courses = append(m.courses, memoryCourse{course: course, vec: vec})
	return nil
}

func (m *MemoryIndex) UpsertChunks(ctx context.Context, chunks []models.CourseChunk, vecs [][]float32) error {
	if err := checkChunkInput(chunks, vecs); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range chunks {
		id := ChunkID(c.CourseTitle, c.ChunkIndex)
		entry := memoryChunk{id: id, chunk: c, vec: vecs[i]}
		if pos, ok := m.byID[id]; ok {
			m.chunks[pos] = entry
			continue
		}
		m.byID[id] = len(m.chunks)
		m.chunks = append(m.chunks, entry)
	}
	return nil
}

func (m *MemoryIndex) DeleteChunks(ctx context.Context, courseTitle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.chunk.CourseTitle != courseTitle {
			kept = append(kept, c)
		}
	}
	for i := len(kept); i < len(m.chunks); i++ {
		m.chunks[i] = memoryChunk{}
	}
	m.chunks = kept
	m.byID = make(map[string]int, len(kept))
	for i, c := range kept {
		m.byID[c.id] = i
	}
	return nil
}

func (m *MemoryIndex) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len reports the number of indexed chunks.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}
