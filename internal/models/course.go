package models

// Lesson is one numbered lesson of a course.
type Lesson struct {
	Number int    `json:"lesson_number"`
	Title  string `json:"title"`
	Link   string `json:"lesson_link,omitempty"`
}

// Course is the catalog record for a course. Title is the unique key.
type Course struct {
	Title      string   `json:"title"`
	CourseLink string   `json:"course_link,omitempty"`
	Instructor string   `json:"instructor,omitempty"`
	Lessons    []Lesson `json:"lessons,omitempty"`
}

// LessonLink returns the link of lesson n, or "" when unknown.
func (c *Course) LessonLink(n int) string {
	for _, l := range c.Lessons {
		if l.Number == n {
			return l.Link
		}
	}
	return ""
}

// CourseChunk is a pre-split piece of course text ready for indexing.
type CourseChunk struct {
	Content      string `json:"content"`
	CourseTitle  string `json:"course_title"`
	LessonNumber *int   `json:"lesson_number,omitempty"`
	ChunkIndex   int    `json:"chunk_index"`
}

// CourseDocument is the ingest unit: a course and its chunks.
type CourseDocument struct {
	Course Course        `json:"course"`
	Chunks []CourseChunk `json:"chunks"`
}
