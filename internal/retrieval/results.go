package retrieval

// Query is one content search request.
type Query struct {
	Text         string
	CourseName   string // free-text course reference, resolved before searching
	LessonNumber *int
}

// ChunkMeta describes where a document came from.
type ChunkMeta struct {
	CourseTitle  string
	LessonNumber *int
}

// SearchResults is the uniform search envelope. Documents, Metadata and
// Distances are parallel slices. When Error is set all three are empty.
type SearchResults struct {
	Documents []string
	Metadata  []ChunkMeta
	Distances []float64
	Error     string
}

// IsEmpty reports whether there are no documents. An errored result is also
// empty; check Error first to tell them apart.
func (r SearchResults) IsEmpty() bool {
	return len(r.Documents) == 0
}

// Len returns the number of documents.
func (r SearchResults) Len() int {
	return len(r.Documents)
}

func failedResults(msg string) SearchResults {
	return SearchResults{Error: msg}
}

// Outline is the structured course outline returned by GetOutline.
type Outline struct {
	Title      string
	CourseLink string
	Instructor string
	Lessons    []OutlineLesson
}

type OutlineLesson struct {
	Number int
	Title  string
}
