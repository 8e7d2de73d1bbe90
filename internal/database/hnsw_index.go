package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/attendance-tracker/internal/facematch"
)

// StudentIndexMetadata stores metadata for validating a cached student index.
type StudentIndexMetadata struct {
	StudentCount  int       `json:"student_count"`
	LastTrainedAt time.Time `json:"last_trained_at"`
	BuildTime     time.Time `json:"build_time"`
	Version       int       `json:"version"`
}

const studentIndexVersion = 1

// DuplicatePair is two students whose embeddings are suspiciously close,
// usually the same person enrolled twice. A sorts before B.
type DuplicatePair struct {
	A        string  `json:"a"`
	B        string  `json:"b"`
	Distance float64 `json:"distance"`
}

// StudentIndex wraps an HNSW graph over trained student embeddings.
type StudentIndex struct {
	graph *hnsw.Graph[string]
	names map[string]string
	mu    sync.RWMutex
}

// NewStudentIndex creates an empty index.
func NewStudentIndex() *StudentIndex {
	return &StudentIndex{names: make(map[string]string)}
}

func newStudentGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the trained students.
func (h *StudentIndex) Build(students []StoredStudent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g := newStudentGraph()
	names := make(map[string]string, len(students))
	for i := range students {
		s := &students[i]
		if len(s.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(s.ID, s.Embedding))
		names[s.ID] = s.Name
	}
	h.graph = g
	h.names = names
}

// Upsert adds or replaces one student. An empty embedding removes it.
func (h *StudentIndex) Upsert(id, name string, embedding []float32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newStudentGraph()
	}
	if _, ok := h.names[id]; ok {
		h.graph.Delete(id)
		delete(h.names, id)
	}
	if len(embedding) == 0 {
		return
	}
	h.graph.Add(hnsw.MakeNode(id, embedding))
	h.names[id] = name
}

// Remove drops a student from the index.
func (h *StudentIndex) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.names[id]; !ok || h.graph == nil {
		return
	}
	h.graph.Delete(id)
	delete(h.names, id)
}

// Nearest returns up to k students closest to query, skipping excludeID.
// Distances are exact cosine distances, not the graph's approximation.
func (h *StudentIndex) Nearest(query []float32, k int, excludeID string) []SimilarStudent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || h.graph.Len() == 0 || k <= 0 {
		return nil
	}
	nodes := h.graph.Search(query, k*HNSWSearchMultiplier)

	out := make([]SimilarStudent, 0, k)
	for _, n := range nodes {
		if n.Key == excludeID {
			continue
		}
		out = append(out, SimilarStudent{
			StudentID: n.Key,
			Name:      h.names[n.Key],
			Distance:  1 - facematch.CosineSimilarity(query, n.Value),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Duplicates returns every pair of students within maxDistance of each other.
func (h *StudentIndex) Duplicates(maxDistance float64) []DuplicatePair {
	h.mu.RLock()
	ids := make([]string, 0, len(h.names))
	for id := range h.names {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)

	seen := make(map[[2]string]bool)
	var pairs []DuplicatePair
	for _, id := range ids {
		h.mu.RLock()
		vec, ok := h.graph.Lookup(id)
		h.mu.RUnlock()
		if !ok {
			continue
		}
		for _, n := range h.Nearest(vec, HNSWMaxNeighbors, id) {
			if n.Distance > maxDistance {
				break
			}
			a, b := id, n.StudentID
			if b < a {
				a, b = b, a
			}
			key := [2]string{a, b}
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, DuplicatePair{A: a, B: b, Distance: n.Distance})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Distance < pairs[j].Distance })
	return pairs
}

// Count returns the number of indexed students.
func (h *StudentIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.names)
}

// SaveWithMetadata persists the graph to path and metadata to path.meta.
// An empty index removes both files.
func (h *StudentIndex) SaveWithMetadata(path string, metadata StudentIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || len(h.names) == 0 {
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create student index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("failed to export student graph: %w", err)
	}

	metadata.Version = studentIndexVersion
	metadata.StudentCount = len(h.names)
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadStudentIndexMetadata reads path.meta.
func LoadStudentIndexMetadata(path string) (StudentIndexMetadata, error) {
	var metadata StudentIndexMetadata
	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// ErrIndexStale is returned by Load when the cached index does not match the roster.
var ErrIndexStale = errors.New("student index is stale")

// Load reads a cached index and accepts it only if its metadata matches the
// trained students; otherwise the caller should Build.
func (h *StudentIndex) Load(path string, students []StoredStudent) error {
	metadata, err := LoadStudentIndexMetadata(path)
	if err != nil {
		return err
	}
	if metadata.Version != studentIndexVersion {
		return fmt.Errorf("%w: version %d", ErrIndexStale, metadata.Version)
	}

	names := make(map[string]string, len(students))
	for _, s := range students {
		if len(s.Embedding) > 0 {
			names[s.ID] = s.Name
		}
	}
	// storage keeps microseconds, so allow for rounding
	drift := metadata.LastTrainedAt.Sub(LastTrained(students)).Abs()
	if metadata.StudentCount != len(names) || drift > time.Millisecond {
		return fmt.Errorf("%w: %d students cached, %d trained", ErrIndexStale, metadata.StudentCount, len(names))
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load student index: %w", err)
	}
	saved.Graph.Distance = hnsw.CosineDistance

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = saved.Graph
	h.names = names
	return nil
}

// LastTrained returns the newest training time among students, used as index metadata.
func LastTrained(students []StoredStudent) time.Time {
	var last time.Time
	for _, s := range students {
		if len(s.Embedding) > 0 && s.TrainedAt != nil && s.TrainedAt.After(last) {
			last = *s.TrainedAt
		}
	}
	return last
}
