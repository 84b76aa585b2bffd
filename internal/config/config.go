package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidConfig is returned by Validate when a setting is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Engine    EngineConfig
	Gallery   GalleryConfig
	Exits     ExitsConfig
	Web       WebConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; when empty the SQLite backend is used
	SQLitePath   string // SQLite database file (default gatewatch.db)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// UsePostgres reports whether the PostgreSQL backend is configured.
func (c *DatabaseConfig) UsePostgres() bool {
	return c.URL != ""
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
	Dim int    // defaults to 512
}

// EngineConfig holds the tuning of the tracking and exit engine.
type EngineConfig struct {
	SkipFrames             int     `yaml:"skip_frames" json:"skip_frames"`
	DetectionInterval      int     `yaml:"detection_interval" json:"detection_interval"`
	VotesThreshold         int     `yaml:"votes_threshold" json:"votes_threshold"`
	TrackThresh            float64 `yaml:"track_thresh" json:"track_thresh"`
	TrackBuffer            int     `yaml:"track_buffer" json:"track_buffer"`
	MatchThresh            float64 `yaml:"match_thresh" json:"match_thresh"`
	FrameRate              int     `yaml:"frame_rate" json:"frame_rate"`
	SimilarityThreshold    float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
	CropMaxSize            int     `yaml:"crop_max_size" json:"crop_max_size"`
	ExtrapolationDecay     float64 `yaml:"extrapolation_decay" json:"extrapolation_decay"`
	ExtrapolationExpansion float64 `yaml:"extrapolation_expansion" json:"extrapolation_expansion"`
	DetectorMinConfidence  float64 `yaml:"detector_min_confidence" json:"detector_min_confidence"`
	DetectorPadding        float64 `yaml:"detector_padding" json:"detector_padding"`
}

// Validate checks that the engine settings are usable.
func (e *EngineConfig) Validate() error {
	switch {
	case e.SkipFrames <= 0:
		return fmt.Errorf("%w: skip_frames must be positive, got %d", ErrInvalidConfig, e.SkipFrames)
	case e.DetectionInterval <= 0:
		return fmt.Errorf("%w: detection_interval must be positive, got %d", ErrInvalidConfig, e.DetectionInterval)
	case e.VotesThreshold <= 0:
		return fmt.Errorf("%w: votes_threshold must be positive, got %d", ErrInvalidConfig, e.VotesThreshold)
	case e.TrackBuffer <= 0:
		return fmt.Errorf("%w: track_buffer must be positive, got %d", ErrInvalidConfig, e.TrackBuffer)
	case e.FrameRate <= 0:
		return fmt.Errorf("%w: frame_rate must be positive, got %d", ErrInvalidConfig, e.FrameRate)
	case e.CropMaxSize <= 0:
		return fmt.Errorf("%w: crop_max_size must be positive, got %d", ErrInvalidConfig, e.CropMaxSize)
	case e.ExtrapolationDecay <= 0 || e.ExtrapolationDecay > 1:
		return fmt.Errorf("%w: extrapolation_decay must be in (0, 1], got %v", ErrInvalidConfig, e.ExtrapolationDecay)
	}
	return nil
}

type GalleryConfig struct {
	HNSWIndexPath    string `yaml:"-"`                  // Path to persist the gallery HNSW index (optional)
	ExactSearchLimit int    `yaml:"exact_search_limit"` // Galleries up to this size are searched exhaustively
}

type ExitsConfig struct {
	DedupWindow time.Duration `yaml:"dedup_window"`
	Timezone    string        `yaml:"timezone"`
}

// Location resolves the configured timezone, falling back to UTC.
func (c *ExitsConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type WebConfig struct {
	Host     string
	Port     int
	APIToken string // optional bearer token for the API and the frame stream
}

type defaultsFile struct {
	Engine  EngineConfig  `yaml:"engine"`
	Exits   ExitsConfig   `yaml:"exits"`
	Gallery GalleryConfig `yaml:"gallery"`
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

// envFloat reads an environment variable and parses it as a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("60s", "2m").
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

// defaults returns the embedded defaults without environment overrides.
func defaults() defaultsFile {
	var d defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return d
}

func Load() *Config {
	d := defaults()
	e := d.Engine

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			SQLitePath:   envString("SQLITE_PATH", "gatewatch.db"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
			Dim: envInt("EMBEDDING_DIM", 512),
		},
		Engine: EngineConfig{
			SkipFrames:             envInt("GATEWATCH_SKIP_FRAMES", e.SkipFrames),
			DetectionInterval:      envInt("GATEWATCH_DETECTION_INTERVAL", e.DetectionInterval),
			VotesThreshold:         envInt("GATEWATCH_VOTES_THRESHOLD", e.VotesThreshold),
			TrackThresh:            envFloat("GATEWATCH_TRACK_THRESH", e.TrackThresh),
			TrackBuffer:            envInt("GATEWATCH_TRACK_BUFFER", e.TrackBuffer),
			MatchThresh:            envFloat("GATEWATCH_MATCH_THRESH", e.MatchThresh),
			FrameRate:              envInt("GATEWATCH_FRAME_RATE", e.FrameRate),
			SimilarityThreshold:    envFloat("GATEWATCH_SIMILARITY_THRESHOLD", e.SimilarityThreshold),
			CropMaxSize:            envInt("GATEWATCH_CROP_MAX_SIZE", e.CropMaxSize),
			ExtrapolationDecay:     envFloat("GATEWATCH_EXTRAPOLATION_DECAY", e.ExtrapolationDecay),
			ExtrapolationExpansion: envFloat("GATEWATCH_EXTRAPOLATION_EXPANSION", e.ExtrapolationExpansion),
			DetectorMinConfidence:  envFloat("GATEWATCH_DETECTOR_MIN_CONFIDENCE", e.DetectorMinConfidence),
			DetectorPadding:        envFloat("GATEWATCH_DETECTOR_PADDING", e.DetectorPadding),
		},
		Gallery: GalleryConfig{
			HNSWIndexPath:    os.Getenv("GALLERY_HNSW_INDEX_PATH"),
			ExactSearchLimit: envInt("GALLERY_EXACT_SEARCH_LIMIT", d.Gallery.ExactSearchLimit),
		},
		Exits: ExitsConfig{
			DedupWindow: envDuration("GATEWATCH_DEDUP_WINDOW", d.Exits.DedupWindow),
			Timezone:    envString("GATEWATCH_TIMEZONE", d.Exits.Timezone),
		},
		Web: WebConfig{
			Host:     envString("WEB_HOST", "0.0.0.0"),
			Port:     envInt("WEB_PORT", 8080),
			APIToken: os.Getenv("WEB_API_TOKEN"),
		},
	}
}
