package temporal

import (
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/soliscan/soliscan/internal/ingest"
)

// StatusFailed marks a document whose activity exhausted its retries. The
// other outcome statuses come from the ingestion pipeline itself.
const StatusFailed = "failed"

// CorpusIngestionInput holds the workflow parameters.
type CorpusIngestionInput struct {
	// Document text travels inside the workflow payload. Split very large
	// corpora across runs to stay within Temporal's payload limits.
	Documents []ingest.Document
}

// DocumentOutcome records how a single document fared.
type DocumentOutcome struct {
	Path        string `json:"path"`
	Status      string `json:"status"`
	Fingerprint string `json:"fingerprint,omitempty"`
	ChunkCount  int    `json:"chunk_count,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CorpusIngestionOutput holds the workflow result.
type CorpusIngestionOutput struct {
	Ingested   int               `json:"ingested"`
	Duplicates int               `json:"duplicates"`
	Failed     int               `json:"failed"`
	Outcomes   []DocumentOutcome `json:"outcomes"`
}

// CorpusIngestionWorkflow pushes a contract corpus through the ingestion
// pipeline, one activity per document. Transient index and embedding
// failures are absorbed by the activity retry policy; a document that still
// fails is recorded in the output and does not fail the workflow.
func CorpusIngestionWorkflow(ctx workflow.Context, input CorpusIngestionInput) (*CorpusIngestionOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    4,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Corpus ingestion started", "documents", len(input.Documents))

	output := &CorpusIngestionOutput{}
	for _, doc := range input.Documents {
		var result ingest.Result
		if err := workflow.ExecuteActivity(ctx, IngestContractActivity, doc).Get(ctx, &result); err != nil {
			logger.Error("Document failed", "path", doc.Path, "error", err)
			output.Failed++
			output.Outcomes = append(output.Outcomes, DocumentOutcome{
				Path:   doc.Path,
				Status: StatusFailed,
				Error:  err.Error(),
			})
			continue
		}

		if result.Status == ingest.StatusDuplicate {
			output.Duplicates++
		} else {
			output.Ingested++
		}
		output.Outcomes = append(output.Outcomes, DocumentOutcome{
			Path:        result.Path,
			Status:      result.Status,
			Fingerprint: result.Fingerprint,
			ChunkCount:  result.ChunkCount,
		})
	}

	logger.Info("Corpus ingestion finished",
		"ingested", output.Ingested,
		"duplicates", output.Duplicates,
		"failed", output.Failed)

	return output, nil
}
