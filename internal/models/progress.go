package models

// EventKind identifies a progress event emitted during ingestion
type EventKind string

const (
	EventStarted     EventKind = "started"
	EventFileStarted EventKind = "file_started"
	EventChunkStored EventKind = "chunk_stored"
	EventFileDone    EventKind = "file_done"
	EventFileFailed  EventKind = "file_failed"
	EventDone        EventKind = "done"
	EventFailed      EventKind = "failed"
)

// ProgressEvent is a single step of an ingestion run.
// FileIndex is 1-based; ChunkIndex is 1-based within the current file.
type ProgressEvent struct {
	Kind         EventKind
	File         string
	FileIndex    int
	TotalFiles   int
	PageNumber   int
	ChunkIndex   int
	TotalChunks  int
	StoredChunks int
	Failure      *FileFailure
	Err          error
	Report       *IngestReport
}

// Fraction returns the share of files already handled, for progress bars
func (e ProgressEvent) Fraction() float64 {
	if e.TotalFiles == 0 {
		if e.Kind == EventDone {
			return 1
		}
		return 0
	}
	done := e.FileIndex - 1
	switch e.Kind {
	case EventFileDone, EventFileFailed:
		done = e.FileIndex
	case EventChunkStored:
		if e.TotalChunks > 0 {
			return (float64(done) + float64(e.ChunkIndex)/float64(e.TotalChunks)) / float64(e.TotalFiles)
		}
	case EventDone:
		return 1
	case EventStarted:
		return 0
	}
	if done < 0 {
		done = 0
	}
	return float64(done) / float64(e.TotalFiles)
}

// IngestReport summarizes an ingestion run
type IngestReport struct {
	Directory    string        `json:"directory"`
	Files        int           `json:"files"`
	StoredChunks int           `json:"stored_chunks"`
	FailedChunks int           `json:"failed_chunks"`
	Failures     []FileFailure `json:"failures,omitempty"`
}
