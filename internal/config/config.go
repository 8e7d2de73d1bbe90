package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed recognition.yaml
var recognitionYAML []byte

type Config struct {
	Database    DatabaseConfig
	Registrar   RegistrarConfig
	Embedding   EmbeddingConfig
	Recognition RecognitionConfig
	Scheduler   SchedulerConfig
	Worker      WorkerConfig
	Web         WebConfig
	Log         LogConfig
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the student embedding index (optional, rebuilt on startup when empty)
}

type RegistrarConfig struct {
	DatabaseURL string // MariaDB DSN of the campus registrar (e.g., registrar:secret@tcp(mariadb:3306)/registrar)
}

type EmbeddingConfig struct {
	URL       string        // defaults to http://localhost:8000
	Dim       int           `yaml:"dim"`        // defaults to 128
	InputSize int           `yaml:"input_size"` // square input edge in pixels, defaults to 96
	Timeout   time.Duration // per-request timeout, defaults to 10s

	SimilarityFloor float64 `yaml:"similarity_floor"`
	UpperKnee       float64 `yaml:"upper_knee"`
	UpperConfidence float64 `yaml:"upper_confidence"`
	LowerKnee       float64 `yaml:"lower_knee"`
	LowerConfidence float64 `yaml:"lower_confidence"`
}

type RecognitionConfig struct {
	Threshold    float64            `yaml:"threshold"`
	Histogram    HistogramConfig    `yaml:"histogram"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Enrollment   EnrollmentConfig   `yaml:"enrollment"`
	Mode         string             // "auto" (embedding with histogram fallback), "embedding" or "histogram"
}

type HistogramConfig struct {
	Bins int `yaml:"bins"`
}

type EnrollmentConfig struct {
	DuplicateHashDistance    int     `yaml:"duplicate_hash_distance"`
	DuplicateStudentDistance float64 `yaml:"duplicate_student_distance"`
}

type SchedulerConfig struct {
	TickInterval time.Duration // how often sessions are evaluated for auto open/close (default 30s)
	Timezone     string        // IANA zone for session times (default Local)
}

type WorkerConfig struct {
	TickTimeout time.Duration // upper bound for one recognition tick (default 5s)
	ResultQueue int           // buffered observations between worker and coordinator (default 16)
}

type WebConfig struct {
	Host           string
	Port           int
	APIToken       string   // optional bearer token, auth disabled when empty
	AllowedOrigins []string // CORS whitelist
}

type LogConfig struct {
	Mode string // "dev" or "prod"
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float64, falling back on parse errors.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Defaults returns the tuning values embedded in recognition.yaml.
func Defaults() RecognitionConfig {
	var rc RecognitionConfig
	if err := yaml.Unmarshal(recognitionYAML, &rc); err != nil {
		// embedded file, a failure here is a build defect
		panic("failed to unmarshal embedded recognition.yaml: " + err.Error())
	}
	return rc
}

func Load() *Config {
	rc := Defaults()
	rc.Threshold = envFloat("RECOGNITION_THRESHOLD", rc.Threshold)
	rc.Mode = envString("RECOGNITION_MODE", "auto")
	rc.Embedding.SimilarityFloor = envFloat("EMBEDDING_SIMILARITY_FLOOR", rc.Embedding.SimilarityFloor)

	emb := rc.Embedding
	emb.URL = envString("EMBEDDING_URL", "http://localhost:8000")
	emb.Dim = envInt("EMBEDDING_DIM", emb.Dim)
	emb.InputSize = envInt("EMBEDDING_INPUT_SIZE", emb.InputSize)
	emb.Timeout = envDuration("EMBEDDING_TIMEOUT", 10*time.Second)
	rc.Embedding = emb

	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Registrar: RegistrarConfig{
			DatabaseURL: os.Getenv("REGISTRAR_DATABASE_URL"),
		},
		Embedding:   emb,
		Recognition: rc,
		Scheduler: SchedulerConfig{
			TickInterval: envDuration("SCHEDULER_TICK_INTERVAL", 30*time.Second),
			Timezone:     os.Getenv("SCHEDULER_TIMEZONE"),
		},
		Worker: WorkerConfig{
			TickTimeout: envDuration("WORKER_TICK_TIMEOUT", 5*time.Second),
			ResultQueue: envInt("WORKER_RESULT_QUEUE", 16),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8085),
			APIToken:       os.Getenv("API_TOKEN"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Mode: envString("LOG_MODE", "dev"),
		},
	}
}

// Validate reports configuration defects that would make the tracker misbehave.
func (c *Config) Validate() error {
	var errs []error
	rc := c.Recognition
	if rc.Threshold < 0 || rc.Threshold > 100 {
		errs = append(errs, fmt.Errorf("recognition threshold %.2f outside [0,100]", rc.Threshold))
	}
	if rc.Embedding.SimilarityFloor < -1 || rc.Embedding.SimilarityFloor > 1 {
		errs = append(errs, fmt.Errorf("similarity floor %.2f outside [-1,1]", rc.Embedding.SimilarityFloor))
	}
	if rc.Embedding.LowerKnee >= rc.Embedding.UpperKnee {
		errs = append(errs, errors.New("embedding lower knee must be below upper knee"))
	}
	switch rc.Mode {
	case "auto", "embedding", "histogram":
	default:
		errs = append(errs, fmt.Errorf("unknown recognition mode %q", rc.Mode))
	}
	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("scheduler timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Location returns the scheduler time zone, time.Local when unset or invalid.
func (c *SchedulerConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Addr returns host:port for the HTTP listener.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
