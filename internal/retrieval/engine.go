// Package retrieval resolves course references and runs threshold-gated
// content search over a vectorstore.Index.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cortexai/coursebot/internal/embedding"
	"github.com/cortexai/coursebot/internal/models"
	"github.com/cortexai/coursebot/internal/vectorstore"
	"github.com/rs/zerolog/log"
)

const resolveTimeout = 30 * time.Second

// Config holds the retrieval limits and relevance thresholds. Distances use
// the vectorstore metric (0 identical, 4 opposite).
type Config struct {
	MaxResults         int
	CourseNameDistance float64
	ContentDistance    float64
	ResolveCacheTTL    time.Duration
}

// Engine wraps an index with course-name resolution and relevance filtering.
type Engine struct {
	index    vectorstore.Index
	embedder embedding.Provider
	cfg      Config
	cache    *resolveCache
}

func NewEngine(index vectorstore.Index, embedder embedding.Provider, cfg Config) *Engine {
	return &Engine{
		index:    index,
		embedder: embedder,
		cfg:      cfg,
		cache:    newResolveCache(cfg.ResolveCacheTTL),
	}
}

// ResolveCourse maps a free-text course reference to a stored course title.
// An exact case-insensitive title match always wins; otherwise the nearest
// catalog entry is accepted only within CourseNameDistance. found is false
// for an empty reference or when nothing is close enough.
func (e *Engine) ResolveCourse(ctx context.Context, reference string) (title string, found bool, err error) {
	key := strings.ToLower(strings.TrimSpace(reference))
	if key == "" {
		return "", false, nil
	}

	if res, ok := e.cache.get(key); ok {
		return res.title, res.found, nil
	}

	// The shared resolution outlives any single caller; each caller still
	// stops waiting when its own ctx is done.
	ch := e.cache.sf.DoChan(key, func() (interface{}, error) {
		if res, ok := e.cache.get(key); ok {
			return res, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		res, err := e.resolve(rctx, reference)
		if err != nil {
			return nil, err
		}
		e.cache.set(key, res)
		return res, nil
	})

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", false, r.Err
		}
		res := r.Val.(resolution)
		return res.title, res.found, nil
	}
}

func (e *Engine) resolve(ctx context.Context, reference string) (resolution, error) {
	courses, err := e.index.Courses(ctx)
	if err != nil {
		return resolution{}, fmt.Errorf("list courses: %w", err)
	}
	trimmed := strings.TrimSpace(reference)
	for _, c := range courses {
		if strings.EqualFold(c.Title, trimmed) {
			return resolution{title: c.Title, found: true}, nil
		}
	}

	vec, err := e.embedder.EmbedQuery(ctx, reference)
	if err != nil {
		return resolution{}, fmt.Errorf("embed course reference: %w", err)
	}
	hit, err := e.index.NearestCourse(ctx, vec)
	if err != nil {
		return resolution{}, fmt.Errorf("nearest course: %w", err)
	}
	if hit == nil {
		return resolution{}, nil
	}
	if hit.Distance > e.cfg.CourseNameDistance {
		log.Debug().
			Str("reference", reference).
			Str("nearest", hit.Course.Title).
			Float64("distance", hit.Distance).
			Msg("course reference rejected by threshold")
		return resolution{}, nil
	}
	return resolution{title: hit.Course.Title, found: true}, nil
}

// Search runs a filtered nearest-neighbour search and drops weak matches.
// It never returns a Go error: failures are reported in SearchResults.Error.
func (e *Engine) Search(ctx context.Context, q Query) SearchResults {
	var filter vectorstore.Filter
	if strings.TrimSpace(q.CourseName) != "" {
		title, found, err := e.ResolveCourse(ctx, q.CourseName)
		if err != nil {
			return failedResults(fmt.Sprintf("Search error: %v", err))
		}
		if !found {
			return failedResults(fmt.Sprintf("No course found matching '%s'", q.CourseName))
		}
		filter.CourseTitle = title
	}
	filter.LessonNumber = q.LessonNumber

	vec, err := e.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return failedResults(fmt.Sprintf("Search error: %v", err))
	}
	hits, err := e.index.Nearest(ctx, vec, e.cfg.MaxResults, filter)
	if err != nil {
		return failedResults(fmt.Sprintf("Search error: %v", err))
	}

	var res SearchResults
	dropped := 0
	for _, h := range hits {
		if h.Distance > e.cfg.ContentDistance {
			dropped++
			continue
		}
		res.Documents = append(res.Documents, h.Document)
		res.Metadata = append(res.Metadata, ChunkMeta{CourseTitle: h.CourseTitle, LessonNumber: h.LessonNumber})
		res.Distances = append(res.Distances, h.Distance)
	}

	log.Debug().
		Str("course", filter.CourseTitle).
		Int("hits", len(hits)).
		Int("dropped", dropped).
		Msg("content search")
	return res
}

// GetOutline returns the outline of the referenced course, or nil when the
// reference does not resolve.
func (e *Engine) GetOutline(ctx context.Context, reference string) (*Outline, error) {
	title, found, err := e.ResolveCourse(ctx, reference)
	if err != nil || !found {
		return nil, err
	}
	course, err := e.index.Course(ctx, title)
	if err != nil || course == nil {
		return nil, err
	}

	out := &Outline{
		Title:      course.Title,
		CourseLink: course.CourseLink,
		Instructor: course.Instructor,
	}
	for _, l := range course.Lessons {
		out.Lessons = append(out.Lessons, OutlineLesson{Number: l.Number, Title: l.Title})
	}
	return out, nil
}

// Course returns the stored course with exactly this title, or nil.
func (e *Engine) Course(ctx context.Context, title string) (*models.Course, error) {
	return e.index.Course(ctx, title)
}

// CourseLink returns the course link, or "" when unknown.
func (e *Engine) CourseLink(ctx context.Context, title string) string {
	c, err := e.index.Course(ctx, title)
	if err != nil || c == nil {
		return ""
	}
	return c.CourseLink
}

// LessonLink returns the link of one lesson, or "" when unknown.
func (e *Engine) LessonLink(ctx context.Context, title string, lesson int) string {
	c, err := e.index.Course(ctx, title)
	if err != nil || c == nil {
		return ""
	}
	return c.LessonLink(lesson)
}

// CourseTitles lists every course title in the catalog.
func (e *Engine) CourseTitles(ctx context.Context) ([]string, error) {
	courses, err := e.index.Courses(ctx)
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(courses))
	for i, c := range courses {
		titles[i] = c.Title
	}
	return titles, nil
}

// CourseCount reports how many courses the catalog holds.
func (e *Engine) CourseCount(ctx context.Context) (int, error) {
	courses, err := e.index.Courses(ctx)
	if err != nil {
		return 0, err
	}
	return len(courses), nil
}

// AddCourse embeds and stores a course with its chunks, replacing any
// previous version with the same title.
func (e *Engine) AddCourse(ctx context.Context, doc models.CourseDocument) error {
	if strings.TrimSpace(doc.Course.Title) == "" {
		return fmt.Errorf("course title is required")
	}

	titleVec, err := e.embedder.EmbedQuery(ctx, doc.Course.Title)
	if err != nil {
		return fmt.Errorf("embed course title: %w", err)
	}

	chunks := make([]models.CourseChunk, len(doc.Chunks))
	var vecs [][]float32
	if len(doc.Chunks) > 0 {
		texts := make([]string, len(doc.Chunks))
		for i, c := range doc.Chunks {
			c.CourseTitle = doc.Course.Title
			chunks[i] = c
			texts[i] = c.Content
		}
		if vecs, err = e.embedder.EmbedBatch(ctx, texts); err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
	}

	if err := e.index.UpsertCourse(ctx, doc.Course, titleVec); err != nil {
		return fmt.Errorf("store course: %w", err)
	}
	// Chunks of a previous version may outnumber the new ones.
	if err := e.index.DeleteChunks(ctx, doc.Course.Title); err != nil {
		return fmt.Errorf("remove old chunks: %w", err)
	}
	if len(chunks) > 0 {
		if err := e.index.UpsertChunks(ctx, chunks, vecs); err != nil {
			return fmt.Errorf("store chunks: %w", err)
		}
	}

	e.cache.invalidateAll()
	log.Info().
		Str("course", doc.Course.Title).
		Int("lessons", len(doc.Course.Lessons)).
		Int("chunks", len(doc.Chunks)).
		Msg("course indexed")
	return nil
}
