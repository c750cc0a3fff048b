package generation

import "context"

// CompletionPort abstracts the blocking completion transport.
type CompletionPort interface {
	Complete(ctx context.Context, cfg RequestConfig, messages []Message) (string, error)
}

// StreamPort abstracts the streaming transport. The returned stream is
// pull-based; the consumer drives it and may abandon it early.
type StreamPort interface {
	Stream(ctx context.Context, cfg RequestConfig, messages []Message) (*TextStream, error)
}

// Normalizer turns file paths into content items suitable for
// transmission, failing with *NotFoundError or *FileProcessingError.
// NormalizeAll never aborts on a bad file; each path gets its own
// FileResult.
type Normalizer interface {
	Normalize(path string, maxBytes int64) ([]ContentItem, error)
	NormalizeAll(paths []string, maxBytes int64) []FileResult
}
