// Package cmd wires the shared backends behind the binaries: persistence,
// lock manager, event bus, and the executor registry. Selection is by URL
// scheme so deployments switch backends without code changes.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/strandkit/strand/pkg/persistence"
	"github.com/strandkit/strand/pkg/persistence/file"
	"github.com/strandkit/strand/pkg/persistence/memory"
	"github.com/strandkit/strand/pkg/persistence/postgres"
)

// NewPersistence selects a persistence backend from the database URL:
// postgres://, file://<dir>, or memory:// for throwaway runs.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.NewPersistence(ctx, logger, databaseURL)
	case strings.HasPrefix(databaseURL, "file://"):
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	case databaseURL == "memory://" || databaseURL == "memory":
		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported database URL %q (expected postgres://, file://, or memory://)", databaseURL)
	}
}
