package testutil

import "github.com/cortexai/coursebot/internal/models"

const (
	SampleCourseTitle = "Building Towards Computer Use with Anthropic"
	SampleCourseLink  = "https://www.deeplearning.ai/short-courses/building-toward-computer-use-with-anthropic/"
	SampleLesson0Link = "https://learn.deeplearning.ai/courses/building-toward-computer-use-with-anthropic/lesson/a6k0z/introduction"
	SampleLesson1Link = "https://learn.deeplearning.ai/courses/building-toward-computer-use-with-anthropic/lesson/b7l1m/background"
)

func IntPtr(n int) *int { return &n }

// SampleCourse returns a small course with two lessons and three chunks.
func SampleCourse() models.CourseDocument {
	return models.CourseDocument{
		Course: models.Course{
			Title:      SampleCourseTitle,
			CourseLink: SampleCourseLink,
			Instructor: "Colt Steele",
			Lessons: []models.Lesson{
				{Number: 0, Title: "Introduction", Link: SampleLesson0Link},
				{Number: 1, Title: "Anthropic Background", Link: SampleLesson1Link},
			},
		},
		Chunks: []models.CourseChunk{
			{
				Content:      "Lesson 0 content: Welcome to Building Toward Computer Use with Anthropic. This course teaches about computer use capabilities.",
				LessonNumber: IntPtr(0),
				ChunkIndex:   0,
			},
			{
				Content:      "More content about computer use and its applications in AI systems.",
				LessonNumber: IntPtr(0),
				ChunkIndex:   1,
			},
			{
				Content:      "Lesson 1 content: Anthropic is an AI safety company focused on developing safe AI systems.",
				LessonNumber: IntPtr(1),
				ChunkIndex:   2,
			},
		},
	}
}
