package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// Report collects statistics for one ingestion run over a document set.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration_ms,omitempty"`

	Files      int `json:"files"`
	Ingested   int `json:"ingested"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
	Failed     int `json:"failed"`
	Chunks     int `json:"chunks"`
	Bytes      int `json:"bytes"`
	Contracts  int `json:"contracts"`

	TagCounts  map[string]int `json:"security_tags,omitempty"`
	Rejections []string       `json:"rejections,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

// NewReport starts tracking an ingestion run.
func NewReport() *Report {
	return &Report{
		StartedAt: time.Now(),
		TagCounts: make(map[string]int),
	}
}

// Record folds one document outcome into the report. size is the document
// length in bytes.
func (r *Report) Record(size int, item BatchItem) {
	r.Files++
	r.Bytes += size

	if item.Err != nil {
		r.Failed++
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", item.Path, item.Err))
		return
	}

	switch item.Result.Status {
	case StatusDuplicate:
		r.Duplicates++
	case StatusIngested:
		r.Ingested++
		r.Chunks += item.Result.ChunkCount
		r.Contracts += len(item.Result.Metadata.Contracts)
		for _, tag := range item.Result.SecurityTags {
			r.TagCounts[tag]++
		}
	}
}

// RecordRejected counts a document refused by the admission checks. It
// never reaches the pipeline, so only its size and reason are kept.
func (r *Report) RecordRejected(size int, path, reason string) {
	r.Files++
	r.Bytes += size
	r.Rejected++
	r.Rejections = append(r.Rejections, fmt.Sprintf("%s: %s", path, reason))
}

// RecordBatch folds a whole batch, pairing each item with its document.
// docs and items must be parallel, as returned by IngestBatch.
func (r *Report) RecordBatch(docs []Document, items []BatchItem) {
	for i, item := range items {
		size := 0
		if i < len(docs) {
			size = len(docs[i].Text)
		}
		r.Record(size, item)
	}
}

// Finish marks the run as complete.
func (r *Report) Finish() {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
}

// PrintSummary writes a human-readable summary.
func (r *Report) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║       SOLISCAN INGESTION REPORT      ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Files:       %-23d║\n", r.Files)
	fmt.Fprintf(w, "║ Total Size:  %-23s║\n", formatBytes(r.Bytes))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Ingested:    %-23d║\n", r.Ingested)
	fmt.Fprintf(w, "║ Duplicates:  %-23d║\n", r.Duplicates)
	fmt.Fprintf(w, "║ Rejected:    %-23d║\n", r.Rejected)
	fmt.Fprintf(w, "║ Failed:      %-23d║\n", r.Failed)
	fmt.Fprintf(w, "║ Chunks:      %-23d║\n", r.Chunks)
	fmt.Fprintf(w, "║ Contracts:   %-23d║\n", r.Contracts)
	if len(r.TagCounts) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ SECURITY PATTERNS\n")
		for _, tag := range sortedTags(r.TagCounts) {
			fmt.Fprintf(w, "║   %-28s %d\n", tag, r.TagCounts[tag])
		}
	}
	if len(r.Rejections) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ REJECTED\n")
		for _, rej := range r.Rejections {
			fmt.Fprintf(w, "║   • %s\n", rej)
		}
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func sortedTags(counts map[string]int) []string {
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func formatBytes(b int) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
