package storage

import (
	"context"
	"io"
)

type ArchiveResult struct {
	Key      string
	Location string
	ETag     string
}

// ResultsArchiver stores final-standings exports. Archiving is best-effort:
// callers log failures and never block tournament state on the upload.
type ResultsArchiver interface {
	Archive(ctx context.Context, key string, contentType string, reader io.Reader) (*ArchiveResult, error)
}

// NoopArchiver is used when no object storage is configured.
type NoopArchiver struct{}

func (NoopArchiver) Archive(ctx context.Context, key string, contentType string, reader io.Reader) (*ArchiveResult, error) {
	return &ArchiveResult{Key: key, Location: "noop://" + key}, nil
}
