package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/soliscan/soliscan/internal/observability"
)

// ExecuteCorpusIngestion submits a corpus to the task queue and waits for
// the workflow result. Both the submission and its outcome land in the
// audit trail.
func ExecuteCorpusIngestion(ctx context.Context, c client.Client, taskQueue string, input CorpusIngestionInput) (*CorpusIngestionOutput, error) {
	workflowID := "corpus-ingestion-" + uuid.NewString()

	observability.Audit().LogWorkflowStart(ctx, workflowID, len(input.Documents))
	started := time.Now()

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: taskQueue,
	}, CorpusIngestionWorkflow, input)
	if err != nil {
		observability.Audit().LogWorkflowEnd(ctx, workflowID, false, time.Since(started), 0, 0, 0)
		return nil, fmt.Errorf("starting corpus ingestion: %w", err)
	}

	var output CorpusIngestionOutput
	if err := run.Get(ctx, &output); err != nil {
		observability.Audit().LogWorkflowEnd(ctx, workflowID, false, time.Since(started), 0, 0, 0)
		return nil, fmt.Errorf("corpus ingestion %s: %w", workflowID, err)
	}

	observability.Audit().LogWorkflowEnd(ctx, workflowID, true, time.Since(started),
		output.Ingested, output.Duplicates, output.Failed)
	return &output, nil
}
