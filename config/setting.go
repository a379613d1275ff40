package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type serverConfig struct {
	Port        int    `koanf:"port" validate:"required,gt=0"`
	Mode        string `koanf:"mode" validate:"required,oneof=debug release"`
	Concurrency int    `koanf:"concurrency" validate:"required,gt=0"`
	BodyLimit   int    `koanf:"body_limit" validate:"required,gt=0"`
	AppName     string `koanf:"app_name" validate:"required"`
	// Jobs is the number of indexing runs executed at once.
	Jobs int `koanf:"jobs" validate:"required,gt=0"`
}

type logLevel string

const (
	Debug logLevel = "debug"
	Info  logLevel = "info"
	Warn  logLevel = "warn"
	Error logLevel = "error"
	Fatal logLevel = "fatal"
	Panic logLevel = "panic"
)

type Module string

const (
	ModuleMilvus    Module = "milvus"
	ModuleIngest    Module = "ingest"
	ModuleKeyword   Module = "keyword"
	ModuleDatabase  Module = "database"
	ModuleOpenAI    Module = "openai"
	ModuleS3        Module = "s3"
	ModuleServer    Module = "server"
	ModuleSetting   Module = "setting"
	ModuleSources   Module = "sources"
	ModuleUpload    Module = "upload"
	ModuleRetriever Module = "retriever"
)

type databaseConfig struct {
	Host         string   `koanf:"host" validate:"required"`
	Port         int      `koanf:"port" validate:"required"`
	User         string   `koanf:"user" validate:"required"`
	Password     string   `koanf:"password"`
	Name         string   `koanf:"name" validate:"required"`
	MaxIdleConns int      `koanf:"max_idle_conns" validate:"gte=0"`
	MaxOpenConns int      `koanf:"max_open_conns" validate:"gte=0"`
	MaxLifetime  int      `koanf:"max_lifetime" validate:"gte=0"`
	Replicas     []string `koanf:"replicas"`
}

type openaiConfig struct {
	Key            string `koanf:"key"`
	BaseURL        string `koanf:"base_url"`
	EmbeddingModel string `koanf:"embedding_model" validate:"required"`
	Dimensions     int    `koanf:"dimensions" validate:"required,gt=0"`
	// RequestsPerSecond caps embedding calls across all running jobs.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`
}

type milvusConfig struct {
	Address            string          `koanf:"address" validate:"required"`
	Collection         string          `koanf:"collection" validate:"required"`
	FallbackCollection string          `koanf:"fallback_collection" validate:"required,nefield=Collection"`
	IndexHNSWConfig    indexHNSWConfig `koanf:"index_hnsw_config"`
}

type indexHNSWConfig struct {
	MetricType     string `koanf:"metric_type" validate:"required,oneof=COSINE IP L2"`
	M              int    `koanf:"m" validate:"required"`
	EfConstruction int    `koanf:"ef_construction" validate:"required"`
	Ef             int    `koanf:"ef" validate:"required"`
}

type s3Config struct {
	Endpoint       string `koanf:"endpoint"`
	AccessKey      string `koanf:"access_key"`
	SecretKey      string `koanf:"secret_key"`
	Region         string `koanf:"region" validate:"required"`
	UseSSL         bool   `koanf:"use_ssl"`
	Bucket         string `koanf:"bucket" validate:"required"`
	SnapshotPrefix string `koanf:"snapshot_prefix"`
}

type keywordConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type ingestConfig struct {
	ChunkSize         int `koanf:"chunk_size" validate:"required,gt=0"`
	ChunkOverlap      int `koanf:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	BatchSize         int `koanf:"batch_size" validate:"required,gt=0"`
	ParallelBatches   int `koanf:"parallel_batches" validate:"required,gt=0"`
	KeywordBatchSize  int `koanf:"keyword_batch_size" validate:"required,gt=0"`
	MaxRetries        int `koanf:"max_retries" validate:"required,gt=0"`
	RetryDelaySeconds int `koanf:"retry_delay_seconds" validate:"gte=0"`
}

type sourcesConfig struct {
	OpenITIBaseURL string `koanf:"openiti_base_url" validate:"required,url"`
	TurathBaseURL  string `koanf:"turath_base_url" validate:"required,url"`
	TimeoutSeconds int    `koanf:"timeout_seconds" validate:"required,gt=0"`
}

type config struct {
	Server   serverConfig   `koanf:"server"`
	Database databaseConfig `koanf:"database"`
	OpenAI   openaiConfig   `koanf:"openai"`
	LogLevel logLevel       `koanf:"log_level" validate:"oneof=debug info warn error fatal panic"`
	Dns      string         `koanf:"dns"`
	S3       s3Config       `koanf:"s3"`
	Milvus   milvusConfig   `koanf:"milvus"`
	Keyword  keywordConfig  `koanf:"keyword"`
	Ingest   ingestConfig   `koanf:"ingest"`
	Sources  sourcesConfig  `koanf:"sources"`
}

func buildMySQLDSN(cfg databaseConfig, host string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		host,
		cfg.Port,
		cfg.Name,
	)
}

// ReplicaDSNs returns one DSN per configured read replica host.
func ReplicaDSNs() []string {
	out := make([]string, 0, len(Cfg.Database.Replicas))
	for _, host := range Cfg.Database.Replicas {
		out = append(out, buildMySQLDSN(Cfg.Database, host))
	}
	return out
}

var defaultConfig = config{
	Server: serverConfig{
		Port:        8000,
		Mode:        "release",
		Concurrency: 256,
		BodyLimit:   64 << 20,
		AppName:     "book-indexer",
		Jobs:        2,
	},
	Database: databaseConfig{
		Host:         "127.0.0.1",
		Port:         3306,
		User:         "root",
		Password:     "",
		Name:         "books",
		MaxIdleConns: 5,
		MaxOpenConns: 20,
		MaxLifetime:  30,
	},
	OpenAI: openaiConfig{
		EmbeddingModel:    "text-embedding-3-small",
		Dimensions:        1536,
		RequestsPerSecond: 5,
	},
	LogLevel: Info,
	S3: s3Config{
		Endpoint:       "http://localhost:9000",
		AccessKey:      "minioadmin",
		SecretKey:      "minioadmin",
		Region:         "us-east-1",
		UseSSL:         false,
		Bucket:         "books",
		SnapshotPrefix: "snapshots",
	},
	Milvus: milvusConfig{
		Address:            "localhost:19530",
		Collection:         "book_chunks",
		FallbackCollection: "book_chunks_fallback",
		IndexHNSWConfig: indexHNSWConfig{
			MetricType:     "COSINE",
			M:              16,
			EfConstruction: 200,
			Ef:             64,
		},
	},
	Keyword: keywordConfig{
		Path: "keyword.db",
	},
	Ingest: ingestConfig{
		ChunkSize:         512,
		ChunkOverlap:      24,
		BatchSize:         80,
		ParallelBatches:   10,
		KeywordBatchSize:  100,
		MaxRetries:        3,
		RetryDelaySeconds: 10,
	},
	Sources: sourcesConfig{
		OpenITIBaseURL: "https://raw.githubusercontent.com/OpenITI/RELEASE/2385733573ab800b5aea09bc846b1d864f475476/data",
		TurathBaseURL:  "https://files.turath.io",
		TimeoutSeconds: 60,
	},
}

var (
	Cfg     = defaultConfig
	once    sync.Once
	initErr error
)

// Init loads path, then APP_ environment variables, over the defaults and
// validates the result. Only the first call has an effect.
func Init(path string) error {
	once.Do(func() {
		var loaded config
		loaded, initErr = Load(path)
		if initErr == nil {
			Cfg = loaded
		}
	})
	return initErr
}

// Load reads a configuration without touching Cfg. A missing file is not an
// error. Environment keys use "." for nesting, e.g. APP_INGEST.CHUNK_SIZE.
func Load(path string) (config, error) {
	k := koanf.New(".")
	out := defaultConfig

	if path != "" {
		if e := k.Load(file.Provider(path), yaml.Parser()); e != nil && !errors.Is(e, fs.ErrNotExist) {
			return out, fmt.Errorf("%v: load %s: %w", ModuleSetting, path, e)
		}
	}

	if e := k.Load(env.Provider("APP_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "APP_"))
	}), nil); e != nil {
		return out, fmt.Errorf("%v: load env: %w", ModuleSetting, e)
	}

	if e := k.Unmarshal("", &out); e != nil {
		return out, fmt.Errorf("%v: unmarshal: %w", ModuleSetting, e)
	}

	if out.Dns == "" {
		out.Dns = buildMySQLDSN(out.Database, out.Database.Host)
	}

	if e := validate(out); e != nil {
		return out, e
	}
	return out, nil
}

func validate(cfg config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("%v: config validation failed: %w", ModuleSetting, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%v: config validation failed:\n", ModuleSetting))
	for _, e := range errs {
		sb.WriteString(fmt.Sprintf("  - %s: failed '%s' (value: %v)\n", e.Namespace(), e.Tag(), e.Value()))
	}
	return errors.New(strings.TrimRight(sb.String(), "\n"))
}
