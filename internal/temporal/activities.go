package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/soliscan/soliscan/internal/ingest"
)

// Dependencies holds shared resources for activities.
type Dependencies struct {
	Ingest *ingest.Service
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// IngestContractActivity runs the ingestion pipeline for one document.
// A duplicate is not an error: it surfaces through the result status, so
// the retry policy fires only on real failures such as index or embedding
// outages.
func IngestContractActivity(ctx context.Context, doc ingest.Document) (*ingest.Result, error) {
	if deps == nil || deps.Ingest == nil {
		return nil, errors.New("dependencies not set")
	}

	activity.RecordHeartbeat(ctx, doc.Path)

	result, err := deps.Ingest.Ingest(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", doc.Path, err)
	}
	return result, nil
}
