package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"document-qa/internal/chromemdb"
	"document-qa/internal/config"
	"document-qa/internal/db"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/llmservice"
	"document-qa/internal/mcpserver"
	"document-qa/internal/milvusdb"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
	"document-qa/internal/tui"
)

const configFilePath = "./configs/config.yaml"

type flags struct {
	config    string
	ingest    string
	ask       string
	initIndex bool
	tui       bool
	mcp       bool
	json      bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.config, "config", configFilePath, "Path to the config file")
	flag.StringVar(&f.ingest, "ingest", "", "Directory of documents to index")
	flag.StringVar(&f.ask, "ask", "", "Question to answer from the indexed documents")
	flag.BoolVar(&f.initIndex, "init-index", false, "Create the vector table or collection and exit")
	flag.BoolVar(&f.tui, "tui", false, "Interactive terminal UI")
	flag.BoolVar(&f.mcp, "mcp", false, "Serve ingest_directory and ask as MCP tools over stdio")
	flag.BoolVar(&f.json, "json", false, "Print results as JSON")
	flag.Parse()
	return f
}

func setupLogging(level string, out io.Writer) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func main() {
	f := parseFlags()

	// stdout belongs to the protocol, the UI or the JSON result in these modes
	logOut := io.Writer(os.Stdout)
	if f.mcp || f.tui || f.json {
		logOut = os.Stderr
	}
	setupLogging("info", logOut)

	cfg, err := config.Load(f.config)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setupLogging(cfg.LogLevel, logOut)
	log.Debug().Interface("config", cfg.Redacted()).Msg("Loaded config")

	if f.ingest == "" && f.ask == "" && !f.initIndex && !f.tui && !f.mcp {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f); err != nil {
		log.Error().Err(err).Msg("Failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, f flags) error {
	index, closeIndex, err := openIndex(ctx, cfg, f.initIndex)
	if err != nil {
		return fmt.Errorf("error opening %s index: %w", cfg.Index.Backend, err)
	}
	defer closeIndex()

	if f.initIndex {
		log.Info().Str("backend", cfg.Index.Backend).Str("collection", cfg.Index.Collection).Msg("Index initialized")
		return nil
	}

	svc, err := newService(cfg, index)
	if err != nil {
		return err
	}

	switch {
	case f.mcp:
		return mcpserver.New(svc).Run(ctx)
	case f.ingest != "":
		if err := ingest(ctx, svc, f); err != nil {
			return err
		}
		if f.ask != "" {
			return ask(ctx, svc, f)
		}
		return nil
	case f.ask != "":
		return ask(ctx, svc, f)
	default:
		return tui.RunAsk(ctx, svc, fmt.Sprintf("%s index %q, top %d chunks", cfg.Index.Backend, cfg.Index.Collection, cfg.RAG.TopK))
	}
}

func newService(cfg *config.Config, index rag.Index) (*rag.Service, error) {
	client, err := embedding.NewClient(&cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("error initializing embedder: %w", err)
	}
	embedder := embedding.NewService(client, cfg.Index.Dimension, cfg.RAG.MaxRetries)

	generator, err := llmservice.NewGenerator(&cfg.InferenceLLM)
	if err != nil {
		return nil, fmt.Errorf("error initializing inference model: %w", err)
	}

	observer := func(stage models.Stage, err error) {
		if err == nil {
			log.Debug().Str("stage", string(stage)).Msg("Question stage")
		}
	}
	return rag.NewService(cfg, parser.NewFileExtractor(), embedder, index, generator, rag.WithStageObserver(observer))
}

// openIndex builds the configured backend. Tables and collections are only
// created when initIndex is set.
func openIndex(ctx context.Context, cfg *config.Config, initIndex bool) (rag.Index, func(), error) {
	switch cfg.Index.Backend {
	case "pgvector":
		store, err := db.NewStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if initIndex {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, nil, err
			}
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing database")
			}
		}, nil
	case "milvus":
		store, err := milvusdb.NewStore(ctx, &cfg.Index)
		if err != nil {
			return nil, nil, err
		}
		prepare := store.Load
		if initIndex {
			prepare = store.EnsureSchema
		}
		if err := prepare(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(context.Background()); err != nil {
				log.Error().Err(err).Msg("Error closing milvus client")
			}
		}, nil
	default:
		manager, err := chromemdb.NewVectorDBManager(&cfg.Index)
		if err != nil {
			return nil, nil, err
		}
		return manager, func() {
			if err := manager.Close(); err != nil {
				log.Error().Err(err).Msg("Error exporting collection")
			}
		}, nil
	}
}

func ingest(ctx context.Context, svc *rag.Service, f flags) error {
	var (
		report models.IngestReport
		err    error
	)
	if f.tui {
		runCtx, cancel := context.WithCancel(ctx)
		report, err = tui.RunIngest(runCtx, cancel, f.ingest, svc.Pipeline.Ingest(runCtx, f.ingest), os.Stdout)
	} else {
		report, err = logIngest(ctx, svc, f.ingest)
	}
	if err != nil {
		return fmt.Errorf("error ingesting %s: %w", f.ingest, err)
	}

	if f.json {
		return helper.PrettyPrint(os.Stdout, report)
	}
	return nil
}

func logIngest(ctx context.Context, svc *rag.Service, dir string) (models.IngestReport, error) {
	return svc.IngestWithProgress(ctx, dir, func(ev models.ProgressEvent) {
		switch ev.Kind {
		case models.EventStarted:
			log.Info().Str("directory", dir).Int("files", ev.TotalFiles).Msg("Ingesting documents")
		case models.EventFileStarted:
			log.Info().Str("file", ev.File).Msgf("Processing file %d/%d", ev.FileIndex, ev.TotalFiles)
		case models.EventChunkStored:
			log.Debug().Str("file", ev.File).Int("page", ev.PageNumber).Msgf("Stored chunk %d/%d", ev.ChunkIndex, ev.TotalChunks)
		case models.EventFileDone:
			log.Info().Str("file", ev.File).Int("chunks", ev.TotalChunks).Msg("File indexed")
		case models.EventFileFailed:
			log.Warn().Str("file", ev.File).Str("stage", string(ev.Failure.Stage)).Msg(ev.Failure.Reason)
		}
	})
}

func ask(ctx context.Context, svc *rag.Service, f flags) error {
	answer, err := svc.Ask(ctx, f.ask)
	if err != nil {
		return err
	}
	if f.json {
		return helper.PrettyPrint(os.Stdout, answer)
	}
	fmt.Println(tui.RenderAnswer(answer))
	return nil
}
