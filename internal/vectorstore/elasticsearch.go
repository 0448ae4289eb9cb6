package vectorstore

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cortexai/coursebot/internal/models"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticsearchOptions configures an Elasticsearch backed index.
type ElasticsearchOptions struct {
	Addresses    []string // overrides Scheme/Host/Port when set
	Scheme       string
	Host         string
	Port         int
	User         string
	Password     string
	VerifyCerts  bool
	MaxRetries   int
	Timeout      int // seconds
	CatalogIndex string
	ContentIndex string
	Dims         int
}

// ElasticsearchIndex stores catalog and content as dense_vector documents and
// searches them with approximate kNN.
type ElasticsearchIndex struct {
	client       *elasticsearch.Client
	catalogIndex string
	contentIndex string
	dims         int
}

// NewElasticsearchIndex creates an ES client using go-elasticsearch/v8
func NewElasticsearchIndex(opts ElasticsearchOptions) (*ElasticsearchIndex, error) {
	addrs := opts.Addresses
	if len(addrs) == 0 {
		addrs = []string{fmt.Sprintf("%s://%s:%d", opts.Scheme, opts.Host, opts.Port)}
	}

	cfg := elasticsearch.Config{
		Addresses:  addrs,
		MaxRetries: opts.MaxRetries,
	}
	if opts.User != "" {
		cfg.Username = opts.User
		cfg.Password = opts.Password
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Timeout > 0 {
		transport.ResponseHeaderTimeout = time.Duration(opts.Timeout) * time.Second
	}
	if !opts.VerifyCerts {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, // #nosec G402 - user explicitly disabled cert verification
		}
	}
	cfg.Transport = transport

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch.NewClient: %w", err)
	}

	idx := &ElasticsearchIndex{
		client:       client,
		catalogIndex: opts.CatalogIndex,
		contentIndex: opts.ContentIndex,
		dims:         opts.Dims,
	}
	if idx.catalogIndex == "" {
		idx.catalogIndex = "course_catalog"
	}
	if idx.contentIndex == "" {
		idx.contentIndex = "course_content"
	}
	return idx, nil
}

// Ping checks the cluster is reachable.
func (s *ElasticsearchIndex) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping error: %s", res.Status())
	}
	return nil
}

// EnsureIndices creates the catalog and content indices when they are missing.
func (s *ElasticsearchIndex) EnsureIndices(ctx context.Context) error {
	if s.dims <= 0 {
		return fmt.Errorf("embedding dimensions must be set to create indices")
	}
	vectorField := map[string]interface{}{
		"type":       "dense_vector",
		"dims":       s.dims,
		"index":      true,
		"similarity": "cosine",
	}
	mappings := map[string]map[string]interface{}{
		s.catalogIndex: {
			"properties": map[string]interface{}{
				"title":       map[string]interface{}{"type": "keyword"},
				"instructor":  map[string]interface{}{"type": "keyword"},
				"course_link": map[string]interface{}{"type": "keyword", "index": false},
				"lessons":     map[string]interface{}{"type": "object", "enabled": false},
				"embedding":   vectorField,
			},
		},
		s.contentIndex: {
			"properties": map[string]interface{}{
				"content":       map[string]interface{}{"type": "text"},
				"course_title":  map[string]interface{}{"type": "keyword"},
				"lesson_number": map[string]interface{}{"type": "integer"},
				"chunk_index":   map[string]interface{}{"type": "integer"},
				"embedding":     vectorField,
			},
		},
	}

	for _, name := range []string{s.catalogIndex, s.contentIndex} {
		res, err := s.client.Indices.Exists([]string{name}, s.client.Indices.Exists.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("check index %s: %w", name, err)
		}
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			continue
		}

		body, err := json.Marshal(map[string]interface{}{"mappings": mappings[name]})
		if err != nil {
			return err
		}
		res, err = s.client.Indices.Create(name,
			s.client.Indices.Create.WithContext(ctx),
			s.client.Indices.Create.WithBody(bytes.NewReader(body)),
		)
		if err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
		_, err = decodeBody(res.Body, res.Status())
		res.Body.Close()
		if err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}

func (s *ElasticsearchIndex) Nearest(ctx context.Context, vec []float32, k int, f Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	knn := map[string]interface{}{
		"field":          "embedding",
		"query_vector":   vec,
		"k":              k,
		"num_candidates": numCandidates(k),
	}
	var filters []interface{}
	if f.CourseTitle != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"course_title": f.CourseTitle}})
	}
	if f.LessonNumber != nil {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"lesson_number": *f.LessonNumber}})
	}
	if len(filters) > 0 {
		knn["filter"] = map[string]interface{}{"bool": map[string]interface{}{"filter": filters}}
	}

	raw, err := s.search(ctx, s.contentIndex, map[string]interface{}{
		"knn":     knn,
		"size":    k,
		"_source": []string{"content", "course_title", "lesson_number", "chunk_index"},
	})
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for _, h := range searchHits(raw) {
		src, _ := h["_source"].(map[string]interface{})
		hit := Hit{
			ID:          ChunkID(stringField(src, "course_title"), intField(src, "chunk_index")),
			Document:    stringField(src, "content"),
			CourseTitle: stringField(src, "course_title"),
			ChunkIndex:  intField(src, "chunk_index"),
			Distance:    scoreToDistance(h["_score"]),
		}
		if v, ok := src["lesson_number"].(float64); ok {
			n := int(v)
			hit.LessonNumber = &n
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *ElasticsearchIndex) NearestCourse(ctx context.Context, vec []float32) (*CourseHit, error) {
	raw, err := s.search(ctx, s.catalogIndex, map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "embedding",
			"query_vector":   vec,
			"k":              1,
			"num_candidates": numCandidates(1),
		},
		"size":    1,
		"_source": map[string]interface{}{"excludes": []string{"embedding"}},
	})
	if err != nil {
		return nil, err
	}
	hits := searchHits(raw)
	if len(hits) == 0 {
		return nil, nil
	}
	course, err := courseFromSource(hits[0]["_source"])
	if err != nil {
		return nil, err
	}
	return &CourseHit{Course: course, Distance: scoreToDistance(hits[0]["_score"])}, nil
}

func (s *ElasticsearchIndex) Course(ctx context.Context, title string) (*models.Course, error) {
	raw, err := s.search(ctx, s.catalogIndex, map[string]interface{}{
		"query":   map[string]interface{}{"term": map[string]interface{}{"title": title}},
		"size":    1,
		"_source": map[string]interface{}{"excludes": []string{"embedding"}},
	})
	if err != nil {
		return nil, err
	}
	hits := searchHits(raw)
	if len(hits) == 0 {
		return nil, nil
	}
	course, err := courseFromSource(hits[0]["_source"])
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (s *ElasticsearchIndex) Courses(ctx context.Context) ([]models.Course, error) {
	raw, err := s.search(ctx, s.catalogIndex, map[string]interface{}{
		"query":   map[string]interface{}{"match_all": map[string]interface{}{}},
		"size":    1000,
		"sort":    []interface{}{map[string]interface{}{"title": "asc"}},
		"_source": map[string]interface{}{"excludes": []string{"embedding"}},
	})
	if err != nil {
		return nil, err
	}
	var courses []models.Course
	for _, h := range searchHits(raw) {
		course, err := courseFromSource(h["_source"])
		if err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, nil
}

func (s *ElasticsearchIndex) UpsertCourse(ctx context.Context, course models.Course, vec []float32) error {
	body, err := json.Marshal(map[string]interface{}{
		"title":       course.Title,
		"instructor":  course.Instructor,
		"course_link": course.CourseLink,
		"lessons":     course.Lessons,
		"embedding":   vec,
	})
	if err != nil {
		return fmt.Errorf("marshal course: %w", err)
	}

	res, err := s.client.Index(s.catalogIndex, bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(docID(course.Title)),
		s.client.Index.WithRefresh("true"),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, err = decodeBody(res.Body, res.Status())
	return err
}

func (s *ElasticsearchIndex) UpsertChunks(ctx context.Context, chunks []models.CourseChunk, vecs [][]float32) error {
	if err := checkChunkInput(chunks, vecs); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, c := range chunks {
		action := map[string]interface{}{"index": map[string]interface{}{"_id": docID(ChunkID(c.CourseTitle, c.ChunkIndex))}}
		doc := map[string]interface{}{
			"content":      c.Content,
			"course_title": c.CourseTitle,
			"chunk_index":  c.ChunkIndex,
			"embedding":    vecs[i],
		}
		if c.LessonNumber != nil {
			doc["lesson_number"] = *c.LessonNumber
		}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	opts := []func(*esapi.BulkRequest){
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithIndex(s.contentIndex),
		s.client.Bulk.WithRefresh("true"),
	}
	res, err := s.client.Bulk(&buf, opts...)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := decodeBody(res.Body, res.Status())
	if err != nil {
		return err
	}
	if failed, _ := raw["errors"].(bool); failed {
		return fmt.Errorf("bulk index reported item errors")
	}
	return nil
}

func (s *ElasticsearchIndex) DeleteChunks(ctx context.Context, courseTitle string) error {
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"course_title": courseTitle},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal delete query: %w", err)
	}

	res, err := s.client.DeleteByQuery([]string{s.contentIndex}, bytes.NewReader(body),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
		s.client.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := decodeBody(res.Body, res.Status())
	if err != nil {
		return err
	}
	if failures, _ := raw["failures"].([]interface{}); len(failures) > 0 {
		return fmt.Errorf("delete by query reported %d failures", len(failures))
	}
	return nil
}

func (s *ElasticsearchIndex) search(ctx context.Context, index string, body map[string]interface{}) (map[string]interface{}, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(bytes.NewReader(bodyBytes)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	return decodeBody(res.Body, res.Status())
}

// scoreToDistance converts an ES cosine score, (1+cos)/2, into 2*(1-cos).
func scoreToDistance(v interface{}) float64 {
	score, _ := v.(float64)
	return 4 * (1 - score)
}

func numCandidates(k int) int {
	if n := k * 10; n > 100 {
		return n
	}
	return 100
}

func docID(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func searchHits(raw map[string]interface{}) []map[string]interface{} {
	hitsObj, ok := raw["hits"].(map[string]interface{})
	if !ok {
		return nil
	}
	list, ok := hitsObj["hits"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, h := range list {
		if hm, ok := h.(map[string]interface{}); ok {
			out = append(out, hm)
		}
	}
	return out
}

func courseFromSource(src interface{}) (models.Course, error) {
	var course models.Course
	b, err := json.Marshal(src)
	if err != nil {
		return course, err
	}
	if err := json.Unmarshal(b, &course); err != nil {
		return course, fmt.Errorf("decode course: %w", err)
	}
	return course, nil
}

func stringField(src map[string]interface{}, key string) string {
	v, _ := src[key].(string)
	return v
}

func intField(src map[string]interface{}, key string) int {
	v, _ := src[key].(float64)
	return int(v)
}

func decodeBody(r io.Reader, status string) (map[string]interface{}, error) {
	var result map[string]interface{}
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if strings.HasPrefix(status, "4") || strings.HasPrefix(status, "5") {
		if errObj, ok := result["error"]; ok {
			return nil, fmt.Errorf("elasticsearch error [%s]: %v", status, errObj)
		}
		return nil, fmt.Errorf("elasticsearch error: %s", status)
	}
	return result, nil
}
