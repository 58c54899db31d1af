// Package config loads the process-wide configuration snapshot from the
// environment. It is read once at startup and treated as immutable from
// then on; subsystems receive it by value at construction, never as a live
// singleton (see DESIGN.md, "internal/config").
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLMProviderKind enumerates the supported chat/completion backends.
type LLMProviderKind string

const (
	ProviderAnthropic LLMProviderKind = "anthropic"
	ProviderOllama    LLMProviderKind = "ollama"
	ProviderOpenAI    LLMProviderKind = "openai"
	ProviderGoogle    LLMProviderKind = "google"
)

// ObsConfig configures the OpenTelemetry tracing/metrics exporters.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
}

// AnthropicConfig, OpenAIConfig, GoogleConfig, OllamaConfig carry the
// provider-specific dials. Only the one matching LLMProvider is required to
// be valid; the rest may be zero-valued.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type GoogleConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type OllamaConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// StorageConfig configures where each store persists its state.
type StorageConfig struct {
	DataDir      string // root, default "data"
	RelationalDSN string // postgres DSN; empty => in-process memory store, not persisted across restarts
	VectorBackend string // "qdrant" | "memory"
	VectorDSN     string
	VectorDimensions int
	VectorMetric     string
	SearchBackend string // "postgres" | "memory"; full-text index behind the keyword fallback
	SearchDSN     string // postgres DSN for SearchBackend; defaults to RelationalDSN
	GraphDir      string // default DataDir/graph
	JournalDir    string // default DataDir/journals
	JournalS3Bucket string // optional archival target
	LogDir        string // default DataDir/logs
	PersonalityPath string // default DataDir/personality.json
}

// EvolutionConfig exposes the confidence-dynamics tuning knobs as
// configuration rather than hard-coded constants.
type EvolutionConfig struct {
	ConfidenceMin           float64
	ConfidenceMax           float64
	DeltaReinforce          float64
	DeltaContradict         float64
	DeltaUserConfirm        float64
	DeltaUserCorrect        float64
	DeltaUsedInResponse     float64
	TimeDecayPerIdleDay     float64
	MergeSimilarityThreshold float64
	RankWeightConfidence    float64
	RankWeightPageRank      float64
	RankWeightRecency       float64
	RecencyHalfLifeDays     float64
}

// Config is the full, immutable process configuration snapshot.
type Config struct {
	LLMProvider LLMProviderKind
	Anthropic   AnthropicConfig
	OpenAI      OpenAIConfig
	Google      GoogleConfig
	Ollama      OllamaConfig

	WorkDir string
	Storage StorageConfig
	Obs     ObsConfig

	HTTPAddr string

	LogPath  string
	LogLevel string

	MaxShortTermMessages    int
	MaxContextMemories      int
	ExtractionEnabled       bool
	ReflectionEnabled       bool
	ProactiveEnabled        bool
	ProactiveSchedulerInterval time.Duration
	CheckinEnabled          bool
	WebSearchEnabled        bool

	TTSProvider string
	STTProvider string

	RedisURL          string
	KafkaBrokers      []string
	KafkaNotifyTopic  string

	ClickHouseDSN string

	GoogleCalendar GoogleCalendarConfig

	Evolution EvolutionConfig
}

// GoogleCalendarConfig carries the optional pull-sync credentials for
// internal/proactive.GoogleCalendarSync. Enabled only when RefreshToken is
// non-empty: a registered OAuth2 client with a long-lived refresh token
// for the Calendar API's read-only scope.
type GoogleCalendarConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CalendarID   string
	SyncInterval time.Duration
}

// Load reads the configuration from the environment (after an optional
// .env overlay via godotenv), applies defaults, then validates required
// fields. An optional YAML overlay (PSYCHOPORTAL_CONFIG, else config.yaml
// or config.yml in the working directory) overrides the evolution merge
// threshold and time-decay rate only; see applyOverlay.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		LLMProvider: LLMProviderKind(envOr("LLM_PROVIDER", string(ProviderAnthropic))),
		Anthropic: AnthropicConfig{
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			Model:   envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   envOr("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Google: GoogleConfig{
			APIKey:  os.Getenv("GOOGLE_API_KEY"),
			Model:   envOr("GOOGLE_MODEL", "gemini-2.0-flash"),
			BaseURL: os.Getenv("GOOGLE_BASE_URL"),
		},
		Ollama: OllamaConfig{
			Endpoint: envOr("OLLAMA_ENDPOINT", "http://localhost:11434"),
			Model:    envOr("OLLAMA_MODEL", "llama3.1"),
			Timeout:  envDuration("OLLAMA_TIMEOUT_SECONDS", 60*time.Second),
		},
		WorkDir:  envOr("WORKDIR", "."),
		HTTPAddr: envOr("HTTP_ADDR", ":8085"),
		Obs: ObsConfig{
			ServiceName:    envOr("OTEL_SERVICE_NAME", "psychoportal"),
			ServiceVersion: envOr("SERVICE_VERSION", "dev"),
			Environment:    envOr("ENVIRONMENT", "development"),
			OTLP:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
		LogPath:  os.Getenv("LOG_PATH"),
		LogLevel: envOr("LOG_LEVEL", "info"),

		MaxShortTermMessages: envInt("MAX_SHORT_TERM_MESSAGES", 20),
		MaxContextMemories:   envInt("MAX_CONTEXT_MEMORIES", 5),
		ExtractionEnabled:    envBool("EXTRACTION_ENABLED", true),
		ReflectionEnabled:    envBool("REFLECTION_ENABLED", true),
		ProactiveEnabled:     envBool("PROACTIVE_ENABLED", true),
		ProactiveSchedulerInterval: envDuration("PROACTIVE_SCHEDULER_INTERVAL_SECONDS", 60*time.Second),
		CheckinEnabled:       envBool("CHECKIN_ENABLED", true),
		WebSearchEnabled:     envBool("WEB_SEARCH_ENABLED", false),

		TTSProvider: os.Getenv("TTS_PROVIDER"),
		STTProvider: os.Getenv("STT_PROVIDER"),

		RedisURL:         os.Getenv("REDIS_URL"),
		KafkaBrokers:     splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaNotifyTopic: envOr("KAFKA_NOTIFY_TOPIC", "psychoportal.notifications"),
		ClickHouseDSN:    os.Getenv("CLICKHOUSE_DSN"),

		GoogleCalendar: GoogleCalendarConfig{
			ClientID:     os.Getenv("GOOGLE_CALENDAR_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CALENDAR_CLIENT_SECRET"),
			RefreshToken: os.Getenv("GOOGLE_CALENDAR_REFRESH_TOKEN"),
			CalendarID:   envOr("GOOGLE_CALENDAR_ID", "primary"),
			SyncInterval: envDuration("GOOGLE_CALENDAR_SYNC_INTERVAL_SECONDS", 15*time.Minute),
		},

		Evolution: EvolutionConfig{
			ConfidenceMin:            envFloat("CONFIDENCE_MIN", 0.05),
			ConfidenceMax:            envFloat("CONFIDENCE_MAX", 0.95),
			DeltaReinforce:           envFloat("DELTA_REINFORCE", 0.05),
			DeltaContradict:          envFloat("DELTA_CONTRADICT", -0.10),
			DeltaUserConfirm:         envFloat("DELTA_USER_CONFIRM", 0.20),
			DeltaUserCorrect:         envFloat("DELTA_USER_CORRECT", -0.40),
			DeltaUsedInResponse:      envFloat("DELTA_USED_IN_RESPONSE", 0.03),
			TimeDecayPerIdleDay:      envFloat("TIME_DECAY_PER_IDLE_DAY", 0.001),
			MergeSimilarityThreshold: envFloat("MERGE_SIMILARITY_THRESHOLD", 0.92),
			RankWeightConfidence:     envFloat("RANK_WEIGHT_CONFIDENCE", 0.5),
			RankWeightPageRank:       envFloat("RANK_WEIGHT_PAGERANK", 0.3),
			RankWeightRecency:        envFloat("RANK_WEIGHT_RECENCY", 0.2),
			RecencyHalfLifeDays:      envFloat("RECENCY_HALF_LIFE_DAYS", 30),
		},
	}

	dataDir := envOr("DATA_DIR", "data")
	cfg.Storage = StorageConfig{
		DataDir:          dataDir,
		RelationalDSN:    os.Getenv("DATABASE_URL"),
		VectorBackend:    envOr("VECTOR_BACKEND", "memory"),
		VectorDSN:        os.Getenv("VECTOR_DSN"),
		VectorDimensions: envInt("VECTOR_DIMENSIONS", 768),
		VectorMetric:     envOr("VECTOR_METRIC", "cosine"),
		SearchBackend:    envOr("SEARCH_BACKEND", "memory"),
		SearchDSN:        os.Getenv("SEARCH_DSN"),
		GraphDir:         envOr("GRAPH_DIR", filepath.Join(dataDir, "graph")),
		JournalDir:       envOr("JOURNAL_DIR", filepath.Join(dataDir, "journals")),
		JournalS3Bucket:  os.Getenv("JOURNAL_S3_BUCKET"),
		LogDir:           envOr("LOG_DIR", filepath.Join(dataDir, "logs")),
		PersonalityPath:  envOr("PERSONALITY_PATH", filepath.Join(dataDir, "personality.json")),
	}
	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join(cfg.Storage.LogDir, "psychoportal.log")
	}

	if err := cfg.applyOverlay(); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// overlayYAML is an optional file that tunes defaults without a recompile.
type overlayYAML struct {
	Evolution *struct {
		MergeSimilarityThreshold *float64 `yaml:"merge_similarity_threshold"`
		TimeDecayPerIdleDay      *float64 `yaml:"time_decay_per_idle_day"`
	} `yaml:"evolution"`
}

func (c *Config) applyOverlay() error {
	path := os.Getenv("PSYCHOPORTAL_CONFIG")
	if path == "" {
		for _, candidate := range []string{"config.yaml", "config.yml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config overlay %q: %w", path, err)
	}
	var overlay overlayYAML
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse config overlay %q: %w", path, err)
	}
	if overlay.Evolution != nil {
		if overlay.Evolution.MergeSimilarityThreshold != nil {
			c.Evolution.MergeSimilarityThreshold = *overlay.Evolution.MergeSimilarityThreshold
		}
		if overlay.Evolution.TimeDecayPerIdleDay != nil {
			c.Evolution.TimeDecayPerIdleDay = *overlay.Evolution.TimeDecayPerIdleDay
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case ProviderAnthropic:
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case ProviderGoogle:
		if c.Google.APIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required when LLM_PROVIDER=google")
		}
	case ProviderOllama:
		// no required secret; a local endpoint default is supplied.
	default:
		return fmt.Errorf("invalid LLM_PROVIDER %q: must be one of anthropic|ollama|openai|google", c.LLMProvider)
	}

	abs, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return fmt.Errorf("resolve WORKDIR: %w", err)
	}
	if st, err := os.Stat(abs); err != nil || !st.IsDir() {
		return fmt.Errorf("WORKDIR %q is not a directory", abs)
	}
	c.WorkDir = abs
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
