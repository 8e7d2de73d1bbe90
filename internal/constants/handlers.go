package constants

// Handler pagination constants
const (
	// DefaultHandlerPageSize is the page size for paginated handler endpoints
	DefaultHandlerPageSize = 100

	// DefaultSimilarLimit is the default number of similar students returned
	DefaultSimilarLimit = 5
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// File upload constants
const (
	// MaxUploadSize is the maximum face crop upload size in bytes (10MB)
	MaxUploadSize = 10 << 20

	// MaxEnrollUploadSize is the maximum multipart enrollment request size in bytes (100MB)
	MaxEnrollUploadSize = 100 << 20
)
