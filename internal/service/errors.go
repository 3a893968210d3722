package service

import "errors"

// Sentinel errors returned by the ingestion pipeline, task registry and search service.
var (
	// ErrInvalidTranscript wraps parser validation failures. No task is created.
	ErrInvalidTranscript = errors.New("invalid transcript")

	// ErrTaskNotFound indicates an unknown task id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition indicates a lifecycle transition not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid task transition")

	// ErrNotFound indicates an unknown video or segment.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable indicates the segment store or embedder could not serve a search.
	ErrUnavailable = errors.New("search backend unavailable")

	// ErrInvalidQuery indicates malformed search parameters.
	ErrInvalidQuery = errors.New("invalid query")
)
