package rag

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"document-qa/internal/models"
	"document-qa/internal/parser"
)

// Pipeline ingests the documents of a directory into the index
type Pipeline struct {
	extractor   parser.Extractor
	splitter    *parser.Splitter
	embedder    Embedder
	index       Index
	extensions  map[string]bool
	concurrency int
}

// NewPipeline builds a pipeline. Extensions are matched case-insensitively;
// concurrency bounds the embedding calls in flight.
func NewPipeline(extractor parser.Extractor, splitter *parser.Splitter, embedder Embedder, index Index, extensions []string, concurrency int) *Pipeline {
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		extractor:   extractor,
		splitter:    splitter,
		embedder:    embedder,
		index:       index,
		extensions:  exts,
		concurrency: concurrency,
	}
}

// ListFiles returns the matching regular files directly inside dir, sorted by name
func (p *Pipeline) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if p.extensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// run carries the running totals of one ingestion
type run struct {
	report models.IngestReport
	yield  func(models.ProgressEvent) bool
	total  int
}

func (r *run) emit(ev models.ProgressEvent) bool {
	ev.TotalFiles = r.total
	ev.StoredChunks = r.report.StoredChunks
	return r.yield(ev)
}

// Ingest returns the lazy sequence of progress events for ingesting dir.
// The last event is either EventDone carrying the report or EventFailed.
// Stopping the iteration early stops the ingestion.
func (p *Pipeline) Ingest(ctx context.Context, dir string) iter.Seq[models.ProgressEvent] {
	return func(yield func(models.ProgressEvent) bool) {
		r := &run{report: models.IngestReport{Directory: dir}, yield: yield}

		files, err := p.ListFiles(dir)
		if err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("Cannot list documents")
			r.emit(models.ProgressEvent{Kind: models.EventFailed, Err: err, Report: &r.report})
			return
		}
		r.total = len(files)
		r.report.Files = len(files)
		log.Info().Str("dir", dir).Int("files", len(files)).Msg("Starting ingestion")

		if !r.emit(models.ProgressEvent{Kind: models.EventStarted}) {
			return
		}
		for i, file := range files {
			if err := ctx.Err(); err != nil {
				r.emit(models.ProgressEvent{Kind: models.EventFailed, Err: err, Report: &r.report})
				return
			}
			if !p.ingestFile(ctx, r, file, i+1) {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			r.emit(models.ProgressEvent{Kind: models.EventFailed, Err: err, Report: &r.report})
			return
		}

		log.Info().Int("files", r.report.Files).Int("stored", r.report.StoredChunks).
			Int("failed_chunks", r.report.FailedChunks).Int("failed_files", len(r.report.Failures)).Msg("Ingestion finished")
		r.emit(models.ProgressEvent{Kind: models.EventDone, FileIndex: r.total, Report: &r.report})
	}
}

// IngestAll drains Ingest and returns the final report
func (p *Pipeline) IngestAll(ctx context.Context, dir string) (models.IngestReport, error) {
	return Drain(dir, p.Ingest(ctx, dir), nil)
}

// Drain consumes a progress sequence, passing every event to onEvent when set,
// and returns the report carried by the last event.
func Drain(dir string, events iter.Seq[models.ProgressEvent], onEvent func(models.ProgressEvent)) (models.IngestReport, error) {
	report := models.IngestReport{Directory: dir}
	for ev := range events {
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Kind {
		case models.EventDone:
			return *ev.Report, nil
		case models.EventFailed:
			if ev.Report != nil {
				report = *ev.Report
			}
			return report, ev.Err
		}
	}
	return report, nil
}

// ingestFile returns false when the consumer stopped the iteration
func (p *Pipeline) ingestFile(ctx context.Context, r *run, path string, fileIndex int) bool {
	name := filepath.Base(path)
	base := models.ProgressEvent{File: name, FileIndex: fileIndex}

	ev := base
	ev.Kind = models.EventFileStarted
	if !r.emit(ev) {
		return false
	}

	fail := func(stage models.Stage, err error, unstored int) bool {
		failure := models.NewFileFailure(name, stage, err)
		r.report.Failures = append(r.report.Failures, failure)
		r.report.FailedChunks += unstored
		log.Warn().Err(err).Str("file", name).Str("stage", string(stage)).Int("unstored_chunks", unstored).Msg("Skipping rest of file")
		ev := base
		ev.Kind = models.EventFileFailed
		ev.Failure = &failure
		return r.emit(ev)
	}

	pages, err := p.extractor.Extract(path)
	if err != nil {
		return fail(models.StageExtracting, err, 0)
	}

	var chunks []models.Chunk
	for _, page := range pages {
		chunks = append(chunks, p.splitter.SplitPage(page)...)
	}
	total := len(chunks)
	base.TotalChunks = total
	if total == 0 {
		log.Warn().Str("file", name).Int("pages", len(pages)).Msg("No text extracted")
	}

	for start := 0; start < total; start += p.concurrency {
		if err := ctx.Err(); err != nil {
			return fail(models.StageEmbedding, err, total-start)
		}
		end := min(start+p.concurrency, total)
		batch := chunks[start:end]

		vectors, embedded, embedErr := p.embedBatch(ctx, batch)
		for i := 0; i < embedded; i++ {
			chunk := batch[i]
			id, err := p.index.Insert(ctx, models.NewRecord(chunk, vectors[i]))
			if err != nil {
				return fail(models.StageIndexing, err, total-(start+i))
			}
			r.report.StoredChunks++
			log.Debug().Str("file", name).Int("page", chunk.PageNumber).Str("id", id).Msg("Stored chunk")

			ev := base
			ev.Kind = models.EventChunkStored
			ev.PageNumber = chunk.PageNumber
			ev.ChunkIndex = start + i + 1
			if !r.emit(ev) {
				return false
			}
		}
		if embedErr != nil {
			return fail(models.StageEmbedding, embedErr, total-(start+embedded))
		}
	}

	ev = base
	ev.Kind = models.EventFileDone
	ev.ChunkIndex = total
	log.Info().Str("file", name).Int("pages", len(pages)).Int("chunks", total).Msg("Ingested file")
	return r.emit(ev)
}

// embedBatch embeds the chunks concurrently. It returns the vectors, the
// length of the prefix that was embedded and the first error.
func (p *Pipeline) embedBatch(ctx context.Context, batch []models.Chunk) ([][]float32, int, error) {
	vectors := make([][]float32, len(batch))
	errs := make([]error, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, chunk := range batch {
		g.Go(func() error {
			v, err := p.embedder.Embed(gctx, chunk.Text)
			if err != nil {
				errs[i] = err
				return err
			}
			vectors[i] = v
			return nil
		})
	}
	// Wait reports the failure that cancelled the siblings
	firstErr := g.Wait()

	for i, err := range errs {
		if err != nil {
			return vectors, i, firstErr
		}
	}
	return vectors, len(batch), nil
}
