package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cortexai/coursebot/internal/retrieval"
)

const CourseSearchToolName = "search_course_content"

// ContentSearcher is the part of the retrieval engine the search tool needs.
type ContentSearcher interface {
	Search(ctx context.Context, q retrieval.Query) retrieval.SearchResults
	CourseLink(ctx context.Context, title string) string
	LessonLink(ctx context.Context, title string, lesson int) string
}

// CourseSearchTool searches course content with optional course and lesson filters.
func CourseSearchTool(engine ContentSearcher) Tool {
	return Func{
		Name:        CourseSearchToolName,
		Description: "Search course materials with smart course name matching and lesson filtering",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What to search for in the course content",
				},
				"course_name": map[string]interface{}{
					"type":        "string",
					"description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
				"lesson_number": map[string]interface{}{
					"type":        "integer",
					"description": "Specific lesson number to search within (e.g. 1, 2, 3)",
				},
			},
			"required": []string{"query"},
		},
		Run: func(ctx context.Context, input map[string]interface{}) (Output, error) {
			query, err := stringArg(input, "query", true)
			if err != nil {
				return Output{}, err
			}
			course, err := stringArg(input, "course_name", false)
			if err != nil {
				return Output{}, err
			}
			lesson, err := intArg(input, "lesson_number")
			if err != nil {
				return Output{}, err
			}

			res := engine.Search(ctx, retrieval.Query{Text: query, CourseName: course, LessonNumber: lesson})
			if res.Error != "" {
				return Output{Content: res.Error}, nil
			}
			if res.IsEmpty() {
				return Output{Content: emptySearchMessage(course, lesson)}, nil
			}
			return formatSearchResults(ctx, engine, res), nil
		},
	}
}

func emptySearchMessage(course string, lesson *int) string {
	var sb strings.Builder
	sb.WriteString("No relevant content found")
	if course != "" {
		fmt.Fprintf(&sb, " in course '%s'", course)
	}
	if lesson != nil {
		fmt.Fprintf(&sb, " in lesson %d", *lesson)
	}
	sb.WriteString(".")
	return sb.String()
}

func formatSearchResults(ctx context.Context, engine ContentSearcher, res retrieval.SearchResults) Output {
	entries := make([]string, 0, res.Len())
	citations := make([]Citation, 0, res.Len())
	for i, doc := range res.Documents {
		meta := res.Metadata[i]
		label := meta.CourseTitle
		if label == "" {
			label = "unknown"
		}
		var link string
		if meta.LessonNumber != nil {
			label = fmt.Sprintf("%s - Lesson %d", label, *meta.LessonNumber)
			link = engine.LessonLink(ctx, meta.CourseTitle, *meta.LessonNumber)
		} else {
			link = engine.CourseLink(ctx, meta.CourseTitle)
		}
		entries = append(entries, fmt.Sprintf("[%s]\n%s", label, doc))
		citations = append(citations, NewCitation(label, link))
	}
	return Output{Content: strings.Join(entries, "\n\n"), Citations: citations}
}
