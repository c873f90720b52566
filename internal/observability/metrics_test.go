package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordIngested(t *testing.T) {
	pipeline.init()
	ingestedBefore := testutil.ToFloat64(pipeline.ingested)
	chunksBefore := testutil.ToFloat64(pipeline.chunks)

	RecordIngested(3, 50*time.Millisecond)

	if got := testutil.ToFloat64(pipeline.ingested) - ingestedBefore; got != 1 {
		t.Errorf("ingested delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(pipeline.chunks) - chunksBefore; got != 3 {
		t.Errorf("chunks delta = %v, want 3", got)
	}
}

func TestRecordDuplicate(t *testing.T) {
	pipeline.init()
	before := testutil.ToFloat64(pipeline.duplicates)

	RecordDuplicate(time.Millisecond)

	if got := testutil.ToFloat64(pipeline.duplicates) - before; got != 1 {
		t.Errorf("duplicates delta = %v, want 1", got)
	}
}

func TestRecordIngestFailure(t *testing.T) {
	pipeline.init()
	before := testutil.ToFloat64(pipeline.failures)

	RecordIngestFailure()

	if got := testutil.ToFloat64(pipeline.failures) - before; got != 1 {
		t.Errorf("failures delta = %v, want 1", got)
	}
}

func TestRecordSearch(t *testing.T) {
	pipeline.init()
	searchesBefore := testutil.ToFloat64(pipeline.searches)
	failuresBefore := testutil.ToFloat64(pipeline.searchFailures)

	RecordSearch(10 * time.Millisecond)
	RecordSearchFailure()

	if got := testutil.ToFloat64(pipeline.searches) - searchesBefore; got != 1 {
		t.Errorf("searches delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(pipeline.searchFailures) - failuresBefore; got != 1 {
		t.Errorf("search failures delta = %v, want 1", got)
	}
}

func TestRecordEmbedBatch(t *testing.T) {
	pipeline.init()
	batchesBefore := testutil.ToFloat64(pipeline.embedBatches)
	vectorsBefore := testutil.ToFloat64(pipeline.embedVectors)
	failuresBefore := testutil.ToFloat64(pipeline.embedFailures)

	RecordEmbedBatch(8, 20*time.Millisecond)
	RecordEmbedFailure()

	if got := testutil.ToFloat64(pipeline.embedBatches) - batchesBefore; got != 1 {
		t.Errorf("batches delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(pipeline.embedVectors) - vectorsBefore; got != 8 {
		t.Errorf("vectors delta = %v, want 8", got)
	}
	if got := testutil.ToFloat64(pipeline.embedFailures) - failuresBefore; got != 1 {
		t.Errorf("embed failures delta = %v, want 1", got)
	}
}
