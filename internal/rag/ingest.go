package rag

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cortexai/coursebot/internal/models"
	"github.com/cortexai/coursebot/internal/retrieval"
	"github.com/rs/zerolog/log"
)

// IngestStats counts what an ingest run stored.
type IngestStats struct {
	Courses int
	Chunks  int
	Skipped int
}

// LoadCourseFile reads a JSON array of course documents.
func LoadCourseFile(path string) ([]models.CourseDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read course file: %w", err)
	}
	var docs []models.CourseDocument
	if err := sonic.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse course file %s: %w", path, err)
	}
	return docs, nil
}

// Ingest stores docs in the engine. With skipExisting, courses whose title is
// already in the catalog are left untouched; otherwise they are replaced.
// Documents are processed in order and the first failure stops the run.
func Ingest(ctx context.Context, engine *retrieval.Engine, docs []models.CourseDocument, skipExisting bool) (IngestStats, error) {
	var stats IngestStats

	existing := map[string]bool{}
	if skipExisting {
		titles, err := engine.CourseTitles(ctx)
		if err != nil {
			return stats, fmt.Errorf("list existing courses: %w", err)
		}
		for _, t := range titles {
			existing[strings.ToLower(t)] = true
		}
	}

	for i, doc := range docs {
		title := strings.TrimSpace(doc.Course.Title)
		if title == "" {
			return stats, fmt.Errorf("course %d: title is required", i)
		}
		if existing[strings.ToLower(title)] {
			stats.Skipped++
			log.Debug().Str("course", title).Msg("course already indexed, skipping")
			continue
		}
		doc.Course.Title = title
		if err := engine.AddCourse(ctx, doc); err != nil {
			return stats, fmt.Errorf("course %q: %w", title, err)
		}
		existing[strings.ToLower(title)] = true
		stats.Courses++
		stats.Chunks += len(doc.Chunks)
	}
	return stats, nil
}

// IngestFile loads path and ingests it.
func IngestFile(ctx context.Context, engine *retrieval.Engine, path string, skipExisting bool) (IngestStats, error) {
	docs, err := LoadCourseFile(path)
	if err != nil {
		return IngestStats{}, err
	}
	stats, err := Ingest(ctx, engine, docs, skipExisting)
	if err != nil {
		return stats, err
	}
	log.Info().
		Str("file", path).
		Int("courses", stats.Courses).
		Int("chunks", stats.Chunks).
		Int("skipped", stats.Skipped).
		Msg("course file ingested")
	return stats, nil
}
