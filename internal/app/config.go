package app

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yungbote/mindmesh-backend/internal/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/platform/envutil"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

type Config struct {
	Port    int    `validate:"min=1,max=65535"`
	LogMode string `validate:"required"`
	DBURL   string `validate:"required"`

	SimilarityThreshold float64 `validate:"notnan,gte=-1"`
	TopK                int     `validate:"gte=0"`

	SentenceModel           string `validate:"required"`
	EmbeddingBaseURL        string `validate:"omitempty,url"`
	EmbeddingAPIKey         string
	EmbeddingDims           int                 `validate:"gt=0"`
	EmbeddingTimeout        time.Duration       `validate:"gt=0"`
	EmbeddingMaxConcurrency int                 `validate:"gt=0"`
	EmbeddingMaxRetries     int                 `validate:"gte=0,lte=10"`
	EmbeddingReembed        mindmap.ReembedMode `validate:"oneof=always never auto"`

	RedisAddr         string
	RedisEmbeddingTTL time.Duration `validate:"gte=0"`

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	OtelEnabled     bool
	OtelServiceName string
	OtelEndpoint    string
	OtelInsecure    bool
	OtelHeaders     string
	OtelSampleRatio float64 `validate:"notnan,gte=0,lte=1"`
	AppEnv          string
	AppVersion      string

	MetricsEnabled bool
	CORSOrigins    string

	WSMaxMessageBytes int64 `validate:"gt=0"`
	WSSendBuffer      int   `validate:"gt=0"`
}

func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		Port:    envutil.Int("PORT", 8000, log),
		LogMode: envutil.String("LOG_MODE", "development", log),
		DBURL:   envutil.String("DB_URL", "sqlite:///./mindmesh.db", log),

		SimilarityThreshold: envutil.Float("SIMILARITY_THRESHOLD", mindmap.DefaultThreshold, log),
		TopK:                envutil.Int("TOP_K", mindmap.DefaultTopK, log),

		SentenceModel:           envutil.String("SENTENCE_MODEL", "paraphrase-multilingual-MiniLM-L12-v2", log),
		EmbeddingBaseURL:        envutil.String("EMBEDDING_BASE_URL", "", log),
		EmbeddingAPIKey:         envutil.String("EMBEDDING_API_KEY", "", log),
		EmbeddingDims:           envutil.Int("EMBEDDING_DIMS", 384, log),
		EmbeddingTimeout:        envutil.Seconds("EMBEDDING_TIMEOUT_SECONDS", 30*time.Second, log),
		EmbeddingMaxConcurrency: envutil.Int("EMBEDDING_MAX_CONCURRENCY", 4, log),
		EmbeddingMaxRetries:     envutil.Int("EMBEDDING_MAX_RETRIES", 0, log),
		EmbeddingReembed:        mindmap.ReembedMode(strings.ToLower(envutil.String("EMBEDDING_REEMBED", string(mindmap.ReembedAuto), log))),

		RedisAddr:         envutil.String("REDIS_ADDR", "", log),
		RedisEmbeddingTTL: envutil.Seconds("REDIS_EMBEDDING_TTL_SECONDS", 7*24*time.Hour, log),

		Neo4jURI:      envutil.String("NEO4J_URI", "", log),
		Neo4jUser:     envutil.String("NEO4J_USER", "neo4j", log),
		Neo4jPassword: envutil.String("NEO4J_PASSWORD", "", log),
		Neo4jDatabase: envutil.String("NEO4J_DATABASE", "", log),

		OtelEnabled:     envutil.Bool("OTEL_ENABLED", false, log),
		OtelServiceName: envutil.String("OTEL_SERVICE_NAME", "mindmesh", log),
		OtelEndpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
		OtelInsecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", true, log),
		OtelHeaders:     envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "", log),
		OtelSampleRatio: envutil.Float("OTEL_SAMPLER_RATIO", 1.0, log),
		AppEnv:          envutil.String("APP_ENV", "development", log),
		AppVersion:      envutil.String("APP_VERSION", "dev", log),

		MetricsEnabled: envutil.Bool("METRICS_ENABLED", true, log),
		CORSOrigins:    envutil.String("CORS_ALLOW_ORIGINS", "*", log),

		WSMaxMessageBytes: int64(envutil.Int("WS_MAX_MESSAGE_BYTES", 64*1024, log)),
		WSSendBuffer:      envutil.Int("WS_SEND_BUFFER", 256, log),
	}
	if err := newValidator().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newValidator adds "notnan": strconv parses "nan", and NaN passes every
// numeric comparison tag.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notnan", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		switch f.Kind() {
		case reflect.Float32, reflect.Float64:
			return !math.IsNaN(f.Float())
		}
		return true
	})
	return v
}
