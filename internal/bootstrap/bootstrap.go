// Package bootstrap wires the indexing stack from config.Cfg for the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"book-indexer/config"
	"book-indexer/internal/core/ingest"
	"book-indexer/internal/core/keyword"
	"book-indexer/internal/core/splitter"
	"book-indexer/internal/database"
	"book-indexer/internal/services/indexer"
	"book-indexer/internal/sources"
	"book-indexer/pkg/logger"
	"book-indexer/pkg/s3"

	"github.com/joho/godotenv"
	milvusclient "github.com/milvus-io/milvus-sdk-go/v2/client"
)

// Need selects the optional dependencies to open.
type Need struct {
	Vectors  bool
	Keywords bool
	Objects  bool
}

// Deps holds the opened dependencies. Fields not asked for in Need are nil.
type Deps struct {
	Repository *database.Repository
	Objects    *s3.Store
	Fetcher    *sources.Fetcher
	Milvus     milvusclient.Client
	Vectors    *ingest.MilvusIndex
	Embedder   *ingest.OpenAIEmbedder
	Keywords   *keyword.Store
	Service    *indexer.Service
}

// Init loads .env and the config file and configures logging.
func Init(configPath string) error {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file: %v", err)
	}
	if err := config.Init(configPath); err != nil {
		return err
	}
	return logger.Configure(string(config.Cfg.LogLevel), config.Cfg.Server.Mode == "release")
}

// Open connects everything in need. On error the already opened parts are closed.
func Open(ctx context.Context, need Need) (*Deps, error) {
	d := &Deps{}
	if err := d.open(ctx, need); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Deps) open(ctx context.Context, need Need) error {
	db, err := database.GetDB()
	if err != nil {
		return fmt.Errorf("%v: %w", config.ModuleDatabase, err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("%v: migrate: %w", config.ModuleDatabase, err)
	}
	d.Repository = database.NewRepository(db)

	if need.Objects {
		if d.Objects, err = s3.NewStoreFromConfig(ctx); err != nil {
			return fmt.Errorf("%v: %w", config.ModuleS3, err)
		}
		if err := d.Objects.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("%v: %w", config.ModuleS3, err)
		}
		d.Fetcher = sources.New(sources.ConfigFromSettings(), d.Objects)
	} else {
		d.Fetcher = sources.New(sources.ConfigFromSettings(), nil)
	}

	if need.Vectors {
		if d.Embedder, err = ingest.NewOpenAIEmbedderFromConfig(); err != nil {
			return fmt.Errorf("%v: %w", config.ModuleOpenAI, err)
		}
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		d.Milvus, err = ingest.DialMilvus(dialCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("%v: %w", config.ModuleMilvus, err)
		}
		d.Vectors = ingest.NewMilvusIndex(d.Milvus, ingest.MilvusConfigFromSettings(), d.Repository)
	}

	if need.Keywords {
		if d.Keywords, err = keyword.Open(config.Cfg.Keyword.Path); err != nil {
			return fmt.Errorf("%v: %w", config.ModuleKeyword, err)
		}
	}

	split, err := splitter.New(splitter.Options{
		ChunkSize:    config.Cfg.Ingest.ChunkSize,
		ChunkOverlap: config.Cfg.Ingest.ChunkOverlap,
	})
	if err != nil {
		return err
	}

	d.Service = &indexer.Service{
		Books:    d.Repository,
		Fetcher:  d.Fetcher,
		Splitter: split,
		Options:  indexer.OptionsFromSettings(),
	}
	// Interface fields stay nil for indexes that were not opened.
	if d.Embedder != nil {
		d.Service.Embedder = d.Embedder
		d.Service.Vectors = d.Vectors
	}
	if d.Keywords != nil {
		d.Service.Keywords = d.Keywords
	}
	return nil
}

func (d *Deps) Close() {
	if d.Milvus != nil {
		if err := d.Milvus.Close(); err != nil {
			logger.Error(err, "%v: close", config.ModuleMilvus)
		}
	}
	if d.Keywords != nil {
		if err := d.Keywords.Close(); err != nil {
			logger.Error(err, "%v: close", config.ModuleKeyword)
		}
	}
}
