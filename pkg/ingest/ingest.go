// Package ingest turns document files into vector points and parent rows.
//
// Per-file stages: dedup, parse, quality analysis, collection routing,
// chunking, per-chunk enrichment (knowledge graph, HyDE questions,
// embedding) and batched upserts. Chunk failures are logged and skipped;
// file-level failures abort the file and are reported in the result.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/balidesk/oracle/pkg/embedder"
	"github.com/balidesk/oracle/pkg/kg"
	"github.com/balidesk/oracle/pkg/legal"
	"github.com/balidesk/oracle/pkg/llm"
	"github.com/balidesk/oracle/pkg/observability"
	"github.com/balidesk/oracle/pkg/oerr"
	"github.com/balidesk/oracle/pkg/parser"
	"github.com/balidesk/oracle/pkg/router"
	"github.com/balidesk/oracle/pkg/store"
	"github.com/balidesk/oracle/pkg/vector"
)

const (
	// maxChunksPerFile bounds reference-file blow-up.
	maxChunksPerFile = 300

	// upsertBatchSize bounds one vector-store write.
	upsertBatchSize = 100

	// defaultWorkers bounds per-chunk concurrency within a file.
	defaultWorkers = 4

	// kgChunks is how many leading chunks feed knowledge-graph extraction.
	kgChunks = 2

	// hydeQuestionCount is the number of hypothetical questions per chunk.
	hydeQuestionCount = 3

	// strictQualityFloor: below this OCR score a strict ingest skips the
	// embedding stage entirely.
	strictQualityFloor = 0.3
)

// pointNamespace is the UUIDv5 namespace for chunk point ids. Never change
// it: re-ingesting a file must produce the same ids.
var pointNamespace = uuid.MustParse("8f14e45f-ceea-467f-a34e-d624d3e1b8a4")

// DocumentStore persists parent rows and answers dedup lookups.
type DocumentStore interface {
	FindFingerprint(ctx context.Context, id string) (string, error)
	UpsertParentDocument(ctx context.Context, doc *store.ParentDocument) error
}

// GraphBuilder extracts and persists knowledge graphs from chunk text.
type GraphBuilder interface {
	ExtractAndStore(ctx context.Context, text string) (*kg.Graph, error)
}

// Generator is the LLM surface used for HyDE question generation.
type Generator interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// Config tunes the ingestion pipeline. Zero values take the package
// defaults.
type Config struct {
	// StrictQuality skips the embedding stage for badly extracted files.
	StrictQuality bool

	// Workers bounds per-chunk concurrency. Defaults to 4.
	Workers int

	// MaxChunksPerFile caps chunks kept per document.
	MaxChunksPerFile int

	// UpsertBatchSize bounds one vector-store write.
	UpsertBatchSize int

	// KGChunks is how many leading chunks feed knowledge-graph extraction.
	KGChunks int

	// HydeQuestions is the number of hypothetical questions per chunk.
	HydeQuestions int
}

// Options carries per-request overrides.
type Options struct {
	// Title overrides the derived document title.
	Title string

	// TierOverride forces the access tier (S, A, B, C, D).
	TierOverride string

	// Collection forces the target collection.
	Collection string
}

// Result reports the outcome of ingesting one file.
type Result struct {
	Success       bool            `json:"success"`
	ParentID      string          `json:"parent_id"`
	Title         string          `json:"book_title"`
	Collection    string          `json:"collection"`
	ChunksCreated int             `json:"chunks_created"`
	PasalCount    int             `json:"pasal_count"`
	Skipped       bool            `json:"skipped"`
	Message       string          `json:"message"`
	Legal         *legal.Metadata `json:"legal_metadata,omitempty"`
}

// Ingestor runs the ingestion pipeline.
type Ingestor struct {
	cfg     Config
	embed   embedder.Embedder
	vectors vector.Store
	docs    DocumentStore
	chunker *parser.Chunker
	graphs  GraphBuilder
	hyde    Generator
	metrics *observability.Metrics
}

// New creates an ingestor. graphs, hyde and metrics may be nil; the
// corresponding enrichment stages are then skipped.
func New(cfg Config, embed embedder.Embedder, vectors vector.Store, docs DocumentStore,
	graphs GraphBuilder, hyde Generator, metrics *observability.Metrics) (*Ingestor, error) {
	if embed == nil {
		return nil, fmt.Errorf("ingestor requires an embedder")
	}
	if vectors == nil {
		return nil, fmt.Errorf("ingestor requires a vector store")
	}
	if docs == nil {
		return nil, fmt.Errorf("ingestor requires a document store")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxChunksPerFile <= 0 {
		cfg.MaxChunksPerFile = maxChunksPerFile
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = upsertBatchSize
	}
	if cfg.KGChunks <= 0 {
		cfg.KGChunks = kgChunks
	}
	if cfg.HydeQuestions <= 0 {
		cfg.HydeQuestions = hydeQuestionCount
	}
	return &Ingestor{
		cfg:     cfg,
		embed:   embed,
		vectors: vectors,
		docs:    docs,
		chunker: parser.NewChunker(),
		graphs:  graphs,
		hyde:    hyde,
		metrics: metrics,
	}, nil
}

// IngestFile reads and ingests one file from disk.
func (in *Ingestor) IngestFile(ctx context.Context, path string, opts *Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return in.IngestBytes(ctx, filepath.Base(path), data, opts)
}

// IngestBatch ingests files sequentially. Per-file failures become failed
// result records; the batch continues.
func (in *Ingestor) IngestBatch(ctx context.Context, paths []string, opts *Options) []*Result {
	results := make([]*Result, 0, len(paths))
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		res, err := in.IngestFile(ctx, path, opts)
		if err != nil {
			slog.Error("Ingest failed", "path", path, "error", err)
			res = &Result{Title: filepath.Base(path), Message: err.Error()}
		}
		results = append(results, res)
	}
	return results
}

// IngestBytes runs the full pipeline over raw file content.
func (in *Ingestor) IngestBytes(ctx context.Context, filename string, data []byte, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	started := time.Now()

	// A failed parse falls back to the raw bytes when they still look like
	// text: the document ingests as fixed windows instead of aborting.
	fixedFallback := false
	parsed, err := parser.Parse(filename, data)
	if err != nil {
		text := recoverText(data)
		if text == "" {
			return nil, oerr.E(oerr.KindInputInvalid, "ingest.IngestBytes",
				fmt.Errorf("failed to parse %s: %w", filename, err))
		}
		slog.Warn("Parse failed, ingesting as raw text windows", "file", filename, "error", err)
		parsed = &parser.Parsed{Text: text, Title: fileStem(filename), Format: "raw"}
		fixedFallback = true
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return nil, oerr.Errorf(oerr.KindInputInvalid, "ingest.IngestBytes",
			"%s contains no extractable text", filename)
	}

	parentID := DocumentID(filename)
	quality := legal.Assess(parsed.Text)

	// Dedup: identical content under the same id is a no-op.
	existing, err := in.docs.FindFingerprint(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check fingerprint for %s: %w", parentID, err)
	}
	if existing == quality.TextFingerprint {
		return &Result{
			Success:  true,
			ParentID: parentID,
			Title:    parsed.Title,
			Skipped:  true,
			Message:  "unchanged, skipped",
		}, nil
	}

	var meta *legal.Metadata
	isLegal := legal.IsLegalDocument(parsed.Text)
	if isLegal {
		meta = legal.Classify(parsed.Text)
	}

	title := documentTitle(opts.Title, meta, parsed.Title)
	collection := routeFile(filename, parsed.Text, opts.Collection, isLegal)
	tier := documentTier(opts.TierOverride, collection)
	language := detectDocLanguage(parsed.Text)

	structure := parser.DetectStructure(parsed.Text)

	skipEmbedding := in.cfg.StrictQuality && quality.OCRScore < strictQualityFloor
	if skipEmbedding {
		quality.NeedsReextract = true
		slog.Warn("Extraction quality too low, skipping embedding stage",
			"file", filename, "score", quality.OCRScore)
	}

	chunksCreated := 0
	if !skipEmbedding {
		var chunks []parser.Chunk
		if fixedFallback {
			chunks = in.chunker.FixedWindow(parsed.Text)
		} else {
			chunks = in.chunker.Chunk(parsed.Text, structure)
			if len(chunks) == 0 {
				chunks = in.chunker.FixedWindow(parsed.Text)
			}
		}
		if len(chunks) > in.cfg.MaxChunksPerFile {
			slog.Warn("Chunk cap hit", "file", filename, "chunks", len(chunks), "cap", in.cfg.MaxChunksPerFile)
			chunks = chunks[:in.cfg.MaxChunksPerFile]
		}

		if err := in.vectors.EnsureCollection(ctx, collection, in.embed.Dimension()); err != nil {
			return nil, fmt.Errorf("failed to ensure collection %s: %w", collection, err)
		}

		points, err := in.enrichChunks(ctx, chunks, enrichParams{
			parentID:   parentID,
			sourceFile: filename,
			title:      title,
			tier:       tier,
			language:   language,
		})
		if err != nil {
			return nil, err
		}

		for start := 0; start < len(points); start += in.cfg.UpsertBatchSize {
			end := min(start+in.cfg.UpsertBatchSize, len(points))
			if err := in.vectors.Upsert(ctx, collection, points[start:end]); err != nil {
				return nil, fmt.Errorf("failed to upsert points into %s: %w", collection, err)
			}
		}
		chunksCreated = len(points)
	}

	if err := in.persistParent(ctx, parentID, title, parsed, meta, quality, structure, filename); err != nil {
		return nil, err
	}

	in.metrics.RecordIngest(ctx, collection, chunksCreated)
	slog.Info("Ingested document",
		"file", filename,
		"parent_id", parentID,
		"collection", collection,
		"chunks", chunksCreated,
		"duration", time.Since(started))

	return &Result{
		Success:       true,
		ParentID:      parentID,
		Title:         title,
		Collection:    collection,
		ChunksCreated: chunksCreated,
		PasalCount:    structure.PasalCount(),
		Legal:         meta,
		Message:       "ingested",
	}, nil
}

type enrichParams struct {
	parentID   string
	sourceFile string
	title      string
	tier       string
	language   string
}

// enrichChunks runs the per-chunk stages with a bounded worker pool.
// Individual chunk failures are logged and dropped from the output.
func (in *Ingestor) enrichChunks(ctx context.Context, chunks []parser.Chunk, p enrichParams) ([]vector.Point, error) {
	points := make([]*vector.Point, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Workers)
	for i := range chunks {
		chunk := chunks[i]
		g.Go(func() error {
			if chunk.Index < in.cfg.KGChunks && in.graphs != nil {
				if _, err := in.graphs.ExtractAndStore(gctx, chunk.Text); err != nil {
					slog.Warn("KG extraction failed", "parent_id", p.parentID,
						"chunk", chunk.Index, "error", err)
				}
			}

			hyde := in.hydeQuestions(gctx, chunk.Text)

			vec, err := in.embed.Embed(gctx, chunk.Text)
			if err != nil {
				slog.Warn("Chunk embedding failed, skipping chunk",
					"parent_id", p.parentID, "chunk", chunk.Index, "error", err)
				return nil
			}

			payload := map[string]interface{}{
				"text":        chunk.Text,
				"parent_id":   p.parentID,
				"chunk_index": chunk.Index,
				"source_file": p.sourceFile,
				"title":       p.title,
				"tier":        p.tier,
				"min_level":   minLevelForTier(p.tier),
				"language":    p.language,
			}
			if len(hyde) > 0 {
				payload["hyde_questions"] = hyde
			}
			if chunk.Chapter != "" {
				payload["chapter"] = chunk.Chapter
			}
			if chunk.Article != "" {
				payload["article"] = chunk.Article
			}
			if chunk.HierarchyPath != "" {
				payload["hierarchy_path"] = chunk.HierarchyPath
				payload["level"] = chunk.Level
			}
			if len(chunk.ClauseNumbers) > 0 {
				payload["clause_numbers"] = chunk.ClauseNumbers
				payload["clause_sequence_valid"] = chunk.ClauseSequenceValid
			}

			points[chunk.Index] = &vector.Point{
				ID:      PointID(p.parentID, chunk.Index),
				Vector:  vec,
				Payload: payload,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]vector.Point, 0, len(points))
	for _, pt := range points {
		if pt != nil {
			out = append(out, *pt)
		}
	}
	return out, nil
}

func (in *Ingestor) persistParent(ctx context.Context, parentID, title string, parsed *parser.Parsed,
	meta *legal.Metadata, quality *legal.Quality, structure *parser.Structure, filename string) error {

	metadata := map[string]interface{}{
		"format":      parsed.Format,
		"source_file": filename,
	}
	if parsed.Pages > 0 {
		metadata["pages"] = parsed.Pages
	}
	if meta != nil {
		metadata["legal_type"] = meta.Type
		metadata["legal_number"] = meta.Number
		metadata["legal_year"] = meta.Year
		if meta.Status != "" {
			metadata["legal_status"] = meta.Status
		}
	}
	docType := "generic"
	if meta != nil {
		docType = meta.TypeAbbrev
	}

	doc := &store.ParentDocument{
		ID:              parentID,
		DocumentID:      parentID,
		Type:            docType,
		Title:           title,
		FullText:        parsed.Text,
		CharCount:       len(parsed.Text),
		PasalCount:      structure.PasalCount(),
		Metadata:        metadata,
		TextFingerprint: quality.TextFingerprint,
		IsIncomplete:    quality.IsIncomplete,
		OCRQualityScore: quality.OCRScore,
		NeedsReextract:  quality.NeedsReextract,
	}
	store.ClampFullText(doc)
	if err := in.docs.UpsertParentDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to persist parent document %s: %w", parentID, err)
	}
	return nil
}

// PointID derives the deterministic UUIDv5 id for a chunk.
func PointID(parentID string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s:%d", parentID, chunkIndex))).String()
}

var docIDRe = regexp.MustCompile(`[^a-z0-9]+`)

// DocumentID derives a stable parent id from a filename: the first 64
// characters of the base name without extension, lowercased,
// non-alphanumerics collapsed to underscores.
func DocumentID(filename string) string {
	base := fileStem(filename)
	if len(base) > 64 {
		base = base[:64]
	}
	id := docIDRe.ReplaceAllString(strings.ToLower(base), "_")
	return strings.Trim(id, "_")
}

func fileStem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// recoverText salvages raw bytes from an unparseable file. Anything that
// is not mostly printable UTF-8 stays unrecoverable.
func recoverText(data []byte) string {
	if !utf8.Valid(data) {
		return ""
	}
	text := string(data)
	printable := 0
	total := 0
	for _, r := range text {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	if total == 0 || float64(printable)/float64(total) < 0.9 {
		return ""
	}
	return strings.TrimSpace(text)
}

func documentTitle(override string, meta *legal.Metadata, parsed string) string {
	if override != "" {
		return override
	}
	if meta != nil {
		if t := meta.BuildFullTitle(); t != "Unknown Legal Document" {
			return t
		}
	}
	return parsed
}

// pricingFileRe force-routes price list files regardless of content.
var pricingFileRe = regexp.MustCompile(`(?i)(pricing|price[-_ ]?list|tariff|harga|tarif)`)

// routeFile decides the target collection for a document.
func routeFile(filename, text, override string, isLegal bool) string {
	if override != "" {
		return override
	}
	if pricingFileRe.MatchString(filepath.Base(filename)) {
		return router.CollectionPricing
	}

	// Content routing looks at the head of the document only; legal
	// boilerplate at the end would skew keyword scoring.
	head := text
	if len(head) > 2000 {
		head = head[:2000]
	}
	route := router.RouteCollections(head, "")
	if !route.IsPricing && route.Confidence >= 0.6 {
		return route.CollectionName
	}
	if isLegal {
		return router.CollectionLegal
	}
	return router.CollectionBooks
}

func documentTier(override, collection string) string {
	if override != "" {
		return strings.ToUpper(override)
	}
	// Pricing is public-facing, reference books sit below it. Everything
	// else defaults to the members tier.
	switch collection {
	case router.CollectionPricing:
		return "C"
	case router.CollectionBooks:
		return "C"
	default:
		return "B"
	}
}

// minLevelForTier maps an access tier to the lowest user level allowed to
// see it.
func minLevelForTier(tier string) int {
	switch tier {
	case "C", "B":
		return 1
	case "A":
		return 2
	case "S":
		return 3
	case "D":
		return 4
	default:
		return 1
	}
}

var indonesianWords = []string{" dan ", " yang ", " untuk ", " dengan ", " pasal ", " tentang ", " adalah "}

// detectDocLanguage is a cheap id/en split based on Indonesian function
// words.
func detectDocLanguage(text string) string {
	sample := strings.ToLower(text)
	if len(sample) > 4000 {
		sample = sample[:4000]
	}
	hits := 0
	for _, w := range indonesianWords {
		hits += strings.Count(sample, w)
	}
	if hits >= 5 {
		return "id"
	}
	return "en"
}
