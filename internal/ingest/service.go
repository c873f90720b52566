package ingest

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/soliscan/soliscan/internal/observability"
	"github.com/soliscan/soliscan/internal/solidity"
	"github.com/soliscan/soliscan/internal/vector"
)

// Statuses reported by Ingest.
const (
	StatusIngested  = "ingested"
	StatusDuplicate = "duplicate"
)

// contentType tags every chunk written by this pipeline so mixed indexes
// can be filtered back down to contract material.
const contentType = "solidity_contract"

// maxIndexedFunctions caps the function list stored per chunk. Vector
// backends reject oversized metadata payloads; large contracts can
// declare hundreds of functions.
const maxIndexedFunctions = 10

// Document is one named unit of source text submitted for ingestion.
type Document struct {
	Path string
	Text string
}

// Result describes the outcome of ingesting a single document.
type Result struct {
	Status       string            `json:"status"`
	Path         string            `json:"path"`
	Fingerprint  string            `json:"fingerprint"`
	ChunkCount   int               `json:"chunk_count,omitempty"`
	Metadata     solidity.Metadata `json:"metadata,omitempty"`
	SecurityTags []string          `json:"security_tags,omitempty"`
}

// Recorder persists structural facts about ingested sources outside the
// vector index. Implementations must tolerate repeated calls for the same
// fingerprint.
type Recorder interface {
	RecordSource(ctx context.Context, path, fingerprint string, meta solidity.Metadata) error
}

// Service runs the ingestion pipeline: fingerprint, duplicate probe,
// structural extraction, chunking, and a single batched index write.
type Service struct {
	index   vector.Index
	chunker *Chunker
	topK    int

	recorder Recorder
	logger   *slog.Logger
}

// NewService builds a Service over the given index. topK is the default
// result count for Search when the caller passes none.
func NewService(index vector.Index, chunker *Chunker, topK int) *Service {
	return &Service{
		index:   index,
		chunker: chunker,
		topK:    topK,
		logger:  slog.Default(),
	}
}

// WithRecorder attaches an optional structural recorder. Recorder failures
// are logged and do not fail ingestion.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// WithLogger replaces the default logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Ingest processes one document. A document whose fingerprint already has
// entries in the index is skipped without re-embedding; otherwise its text
// is parsed, chunked, and written to the index in one batch.
func (s *Service) Ingest(ctx context.Context, doc Document) (*Result, error) {
	start := time.Now()
	ctx, span := observability.StartIngestSpan(ctx, doc.Path)
	defer span.End()

	fp := Fingerprint(doc.Text)

	dup, err := s.exists(ctx, fp)
	if err != nil {
		observability.RecordError(span, err)
		observability.RecordIngestFailure()
		observability.Audit().LogIngestError(ctx, doc.Path, err)
		return nil, err
	}
	if dup {
		observability.RecordIngestResult(span, StatusDuplicate, 0)
		observability.RecordDuplicate(time.Since(start))
		observability.Audit().LogDuplicate(ctx, doc.Path, fp)
		s.logger.Info("skipping duplicate document", "path", doc.Path, "fingerprint", fp)
		return &Result{Status: StatusDuplicate, Path: doc.Path, Fingerprint: fp}, nil
	}

	meta := solidity.Extract(doc.Text)
	tags := solidity.SecurityTags(doc.Text)
	chunks := s.chunker.Split(doc.Text)

	texts := make([]string, len(chunks))
	metas := make([]map[string]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk
		metas[i] = chunkMetadata(doc.Path, fp, i, len(chunks), meta, tags)
	}

	if err := s.index.UpsertTexts(ctx, texts, metas); err != nil {
		observability.RecordError(span, err)
		observability.RecordIngestFailure()
		observability.Audit().LogIngestError(ctx, doc.Path, err)
		return nil, err
	}

	if s.recorder != nil {
		if err := s.recorder.RecordSource(ctx, doc.Path, fp, meta); err != nil {
			s.logger.Warn("structural record failed", "path", doc.Path, "error", err)
		}
	}

	observability.RecordIngestResult(span, StatusIngested, len(chunks))
	observability.RecordIngested(len(chunks), time.Since(start))
	observability.Audit().LogIngest(ctx, doc.Path, fp, len(chunks), time.Since(start))
	s.logger.Info("document ingested",
		"path", doc.Path,
		"fingerprint", fp,
		"chunks", len(chunks),
		"contracts", len(meta.Contracts),
	)
	return &Result{
		Status:       StatusIngested,
		Path:         doc.Path,
		Fingerprint:  fp,
		ChunkCount:   len(chunks),
		Metadata:     meta,
		SecurityTags: tags,
	}, nil
}

// IngestBatch ingests documents sequentially in input order. Per-document
// failures are captured in the returned slice rather than aborting the
// batch.
func (s *Service) IngestBatch(ctx context.Context, docs []Document) []BatchItem {
	items := make([]BatchItem, 0, len(docs))
	for _, doc := range docs {
		res, err := s.Ingest(ctx, doc)
		items = append(items, BatchItem{Path: doc.Path, Result: res, Err: err})
	}
	return items
}

// BatchItem pairs one batch document with its outcome.
type BatchItem struct {
	Path   string
	Result *Result
	Err    error
}

// Search runs an unfiltered similarity query. topK values <= 0 fall back
// to the configured default.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]vector.SearchResult, error) {
	if topK <= 0 {
		topK = s.topK
	}

	start := time.Now()
	ctx, span := observability.StartSearchSpan(ctx, topK)
	defer span.End()

	results, err := s.index.SimilaritySearch(ctx, query, topK, nil)
	if err != nil {
		observability.RecordError(span, err)
		observability.RecordSearchFailure()
		return nil, err
	}
	observability.RecordSearchResult(span, len(results))
	observability.RecordSearch(time.Since(start))
	observability.Audit().LogSearch(ctx, query, topK, len(results), time.Since(start))
	return results, nil
}

// Stats reports index-level statistics.
func (s *Service) Stats(ctx context.Context) (vector.IndexStats, error) {
	return s.index.DescribeStats(ctx)
}

// exists probes the index for any entry carrying the fingerprint. The
// query text only has to be non-empty; the exact-match filter does the
// real work.
func (s *Service) exists(ctx context.Context, fp string) (bool, error) {
	matches, err := s.index.SimilaritySearch(ctx, "file_hash:"+fp, 1, map[string]string{"file_hash": fp})
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// chunkMetadata assembles the per-chunk payload. Every chunk of a document
// carries the same document-level fields plus its own position.
func chunkMetadata(path, fp string, index, total int, meta solidity.Metadata, tags []string) map[string]string {
	funcs := meta.Functions
	if len(funcs) > maxIndexedFunctions {
		funcs = funcs[:maxIndexedFunctions]
	}
	return map[string]string{
		"file_path":         path,
		"file_hash":         fp,
		"chunk_index":       strconv.Itoa(index),
		"total_chunks":      strconv.Itoa(total),
		"contracts":         strings.Join(meta.Contracts, ","),
		"functions":         strings.Join(funcs, ","),
		"security_patterns": strings.Join(tags, ","),
		"pragma":            meta.Pragma,
		"content_type":      contentType,
	}
}
