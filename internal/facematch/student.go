package facematch

import (
	"sync/atomic"
	"time"
)

var imageSetSeq atomic.Uint64

// FaceRepresentation is an immutable snapshot of a student's enrollment images
// and the artifacts derived from them. It is never modified after construction;
// retraining swaps in a new value.
type FaceRepresentation struct {
	imageSet  uint64
	images    [][]byte
	histogram []float32
	embedding []float32
	trainedAt time.Time
}

// NewFaceRepresentation copies images into a new, untrained representation.
func NewFaceRepresentation(images [][]byte) *FaceRepresentation {
	return &FaceRepresentation{
		imageSet: imageSetSeq.Add(1),
		images:   copyImages(images),
	}
}

// RestoreRepresentation rebuilds a representation loaded from storage.
func RestoreRepresentation(images [][]byte, histogram, embedding []float32, trainedAt time.Time) *FaceRepresentation {
	r := NewFaceRepresentation(images)
	r.histogram = append([]float32(nil), histogram...)
	r.embedding = append([]float32(nil), embedding...)
	if len(histogram) == 0 {
		r.histogram = nil
	}
	if len(embedding) == 0 {
		r.embedding = nil
	}
	r.trainedAt = trainedAt
	return r
}

func copyImages(images [][]byte) [][]byte {
	out := make([][]byte, 0, len(images))
	for _, img := range images {
		out = append(out, append([]byte(nil), img...))
	}
	return out
}

// Images returns the enrollment images. Callers must not modify them.
func (r *FaceRepresentation) Images() [][]byte {
	return r.images
}

func (r *FaceRepresentation) ImageCount() int {
	return len(r.images)
}

// Histogram returns the averaged histogram or nil when untrained. Read-only.
func (r *FaceRepresentation) Histogram() []float32 {
	return r.histogram
}

// Embedding returns the averaged embedding or nil when untrained. Read-only.
func (r *FaceRepresentation) Embedding() []float32 {
	return r.embedding
}

func (r *FaceRepresentation) TrainedAt() time.Time {
	return r.trainedAt
}

func (r *FaceRepresentation) withHistogram(h []float32, at time.Time) *FaceRepresentation {
	next := *r
	next.histogram = h
	next.trainedAt = at
	return &next
}

func (r *FaceRepresentation) withEmbedding(e []float32, at time.Time) *FaceRepresentation {
	next := *r
	next.embedding = e
	next.trainedAt = at
	return &next
}

// Student is an enrolled person. Its representation is replaced atomically so
// recognition running concurrently with training never observes a partial vector.
type Student struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Course string `json:"course"`

	rep atomic.Pointer[FaceRepresentation]
}

func NewStudent(id, name, course string) *Student {
	return &Student{ID: id, Name: name, Course: course}
}

// Representation returns the current representation, nil if never enrolled.
func (s *Student) Representation() *FaceRepresentation {
	return s.rep.Load()
}

// Enroll replaces the image set. Derived artifacts are dropped until the next training run.
func (s *Student) Enroll(images [][]byte) *FaceRepresentation {
	r := NewFaceRepresentation(images)
	s.rep.Store(r)
	return r
}

// SetRepresentation installs r as is, typically after loading from storage.
func (s *Student) SetRepresentation(r *FaceRepresentation) {
	s.rep.Store(r)
}

// attach applies update to the current representation as long as it still
// holds the image set base was derived from. Returns false when the images
// were replaced in the meantime.
func (s *Student) attach(base *FaceRepresentation, update func(*FaceRepresentation) *FaceRepresentation) bool {
	for {
		cur := s.rep.Load()
		if cur == nil || cur.imageSet != base.imageSet {
			return false
		}
		if s.rep.CompareAndSwap(cur, update(cur)) {
			return true
		}
	}
}
