package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cortexai/coursebot/internal/retrieval"
)

const CourseOutlineToolName = "get_course_outline"

// OutlineSource resolves a course reference to its outline.
type OutlineSource interface {
	GetOutline(ctx context.Context, reference string) (*retrieval.Outline, error)
}

// CourseOutlineTool returns a course's title, link, instructor and lesson list.
func CourseOutlineTool(engine OutlineSource) Tool {
	return Func{
		Name:        CourseOutlineToolName,
		Description: "Get the complete outline of a course: title, course link, instructor and the numbered list of lessons",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"course_name": map[string]interface{}{
					"type":        "string",
					"description": "Course title or partial course name (e.g. 'MCP', 'Computer Use')",
				},
			},
			"required": []string{"course_name"},
		},
		Run: func(ctx context.Context, input map[string]interface{}) (Output, error) {
			course, err := stringArg(input, "course_name", true)
			if err != nil {
				return Output{}, err
			}
			outline, err := engine.GetOutline(ctx, course)
			if err != nil {
				return Output{}, fmt.Errorf("outline lookup: %w", err)
			}
			if outline == nil {
				return Output{Content: fmt.Sprintf("No course found matching '%s'", course)}, nil
			}
			return Output{
				Content:   formatOutline(outline),
				Citations: []Citation{NewCitation(outline.Title+" - Course Outline", outline.CourseLink)},
			}, nil
		},
	}
}

func formatOutline(o *retrieval.Outline) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\n", o.Title)
	if o.Instructor != "" {
		fmt.Fprintf(&sb, "Instructor: %s\n", o.Instructor)
	}
	if o.CourseLink != "" {
		fmt.Fprintf(&sb, "Course Link: %s\n", o.CourseLink)
	}
	sb.WriteString("\n**Course Outline:**\n")
	if len(o.Lessons) == 0 {
		sb.WriteString("No lessons available\n")
	}
	for _, l := range o.Lessons {
		title := l.Title
		if title == "" {
			title = "Untitled Lesson"
		}
		fmt.Fprintf(&sb, "Lesson %d: %s\n", l.Number, title)
	}
	return sb.String()
}
