package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

const (
	serverName = "document-qa"
	version    = "0.1.0"
)

// Service is the subset of the RAG service exposed as tools
type Service interface {
	IngestWithProgress(ctx context.Context, dir string, onEvent func(models.ProgressEvent)) (models.IngestReport, error)
	Ask(ctx context.Context, question string) (models.AnswerRecord, error)
}

type IngestInput struct {
	Directory string `json:"directory" jsonschema:"Directory containing the documents to index (not recursive)"`
}

type AskInput struct {
	Question string `json:"question" jsonschema:"Natural-language question answered from the indexed documents"`
}

type AskOutput struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Server exposes ingestion and question answering over MCP
type Server struct {
	service Service
	mcp     *mcp.Server
}

func New(service Service) *Server {
	s := &Server{
		service: service,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: version,
		}, nil),
	}

	mcp.AddTool(s.mcp,
		&mcp.Tool{
			Name:        "ingest_directory",
			Description: "Extract, chunk, embed and index every supported document in a directory. Returns a summary of stored chunks and per-file failures.",
		},
		s.IngestDirectory,
	)
	mcp.AddTool(s.mcp,
		&mcp.Tool{
			Name:        "ask",
			Description: "Answer a question using only the indexed documents. Returns the answer and the source file and page of every context chunk used.",
		},
		s.Ask,
	)
	return s
}

// IngestDirectory runs an ingestion. When the caller sent a progress token
// every pipeline event is forwarded as a progress notification.
func (s *Server) IngestDirectory(ctx context.Context, req *mcp.CallToolRequest, in IngestInput) (*mcp.CallToolResult, models.IngestReport, error) {
	dir := strings.TrimSpace(in.Directory)
	if dir == "" {
		return nil, models.IngestReport{}, fmt.Errorf("directory is required")
	}
	report, err := s.service.IngestWithProgress(ctx, dir, progressNotifier(ctx, req))
	if err != nil {
		return nil, models.IngestReport{}, err
	}
	if report.Failures == nil {
		report.Failures = []models.FileFailure{}
	}
	return nil, report, nil
}

func progressNotifier(ctx context.Context, req *mcp.CallToolRequest) func(models.ProgressEvent) {
	if req == nil || req.Session == nil || req.Params == nil {
		return nil
	}
	token := req.Params.GetProgressToken()
	if token == nil {
		return nil
	}
	return func(ev models.ProgressEvent) {
		params := &mcp.ProgressNotificationParams{
			ProgressToken: token,
			Progress:      ev.Fraction(),
			Total:         1,
			Message:       progressMessage(ev),
		}
		if err := req.Session.NotifyProgress(ctx, params); err != nil {
			log.Warn().Err(err).Msg("Cannot send progress notification")
		}
	}
}

func progressMessage(ev models.ProgressEvent) string {
	switch ev.Kind {
	case models.EventStarted:
		return fmt.Sprintf("%d files to ingest", ev.TotalFiles)
	case models.EventFileStarted:
		return fmt.Sprintf("file %d/%d: %s", ev.FileIndex, ev.TotalFiles, ev.File)
	case models.EventChunkStored:
		return fmt.Sprintf("file %d/%d: %s chunk %d/%d", ev.FileIndex, ev.TotalFiles, ev.File, ev.ChunkIndex, ev.TotalChunks)
	case models.EventFileDone:
		return fmt.Sprintf("file %d/%d: %s done", ev.FileIndex, ev.TotalFiles, ev.File)
	case models.EventFileFailed:
		return fmt.Sprintf("file %d/%d: %s failed at %s", ev.FileIndex, ev.TotalFiles, ev.File, ev.Failure.Stage)
	case models.EventDone:
		return fmt.Sprintf("done: %d chunks stored", ev.StoredChunks)
	default:
		return string(ev.Kind)
	}
}

func (s *Server) Ask(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
	answer, err := s.service.Ask(ctx, in.Question)
	if err != nil {
		return nil, AskOutput{}, err
	}
	sources := answer.Sources
	if sources == nil {
		sources = []string{}
	}
	return nil, AskOutput{Answer: answer.AnswerText, Sources: sources}, nil
}

// Run serves on stdin/stdout until ctx is done or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	log.Info().Str("name", serverName).Str("version", version).Msg("MCP server ready")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}
