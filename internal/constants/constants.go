// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Recognition constants
const (
	// HistogramBins is the number of intensity bins in a face histogram
	HistogramBins = 256

	// EmbeddingDim is the length of a face embedding vector
	EmbeddingDim = 128

	// DefaultEmbeddingInputSize is the square edge (px) face crops are resized to before embedding
	DefaultEmbeddingInputSize = 96

	// DefaultConfidenceThreshold is the minimum confidence (0..100) for an automatic match
	DefaultConfidenceThreshold = 70.0

	// ConfirmationMinConfidence is the inclusive lower bound of the manual confirmation band
	ConfirmationMinConfidence = 50.0

	// ConfirmationMaxConfidence is the exclusive upper bound of the manual confirmation band
	ConfirmationMaxConfidence = 70.0

	// DefaultSimilarityFloor excludes embedding candidates with a lower cosine similarity
	DefaultSimilarityFloor = -0.70
)

// Enrollment constants
const (
	// DuplicateHashDistance is the max dHash Hamming distance for two images to count as duplicates
	DuplicateHashDistance = 4

	// DuplicateStudentDistance is the max cosine distance between two students' embeddings
	// before they are reported as a possible double enrollment
	DuplicateStudentDistance = 0.15

	// MaxEnrollmentImages caps the images kept per student
	MaxEnrollmentImages = 50
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel workers for embedding during training
	WorkerPoolSize = 8

	// MaxImageSize is the maximum dimension (width or height) accepted for a face crop
	MaxImageSize = 1920
)

// Session constants
const (
	// DefaultLateThresholdMinutes is used when a session is created without a late threshold
	DefaultLateThresholdMinutes = 15
)
