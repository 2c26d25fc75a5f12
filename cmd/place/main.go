// Command place runs phylogenetic placement of a query FASTA stream
// against a reference tree and alignment, writing a jplace document.
//
//	place -tree ref.nwk -msa ref.fasta -query reads.fasta -out result.jplace
//
// A -store URL enables out-of-core CLV storage instead of keeping the
// whole reference resident: file:///path/to/dir, s3://bucket/prefix, or
// minio://endpoint/bucket/prefix.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/evoplace/placer/blobstore"
	"github.com/evoplace/placer/internal/backingstore"
	backingstoreminio "github.com/evoplace/placer/internal/backingstore/minio"
	backingstores3 "github.com/evoplace/placer/internal/backingstore/s3"
	"github.com/evoplace/placer/internal/jplace"
	"github.com/evoplace/placer/internal/resource"
	"github.com/evoplace/placer/placement"
)

var (
	treePath   = flag.String("tree", "", "reference tree, Newick format (required)")
	msaPath    = flag.String("msa", "", "reference alignment, aligned FASTA (required)")
	queryPath  = flag.String("query", "", "query sequences, FASTA (default: stdin)")
	outPath    = flag.String("out", "", "output jplace document (default: stdout)")
	invocation = flag.String("invocation", "", "free-form string recorded in the output for provenance")

	alpha = flag.Float64("alpha", 1.0, "JC69 discrete-gamma shape parameter")
	ncat  = flag.Int("ncat", 1, "JC69 discrete-gamma rate categories (1 disables heterogeneity)")

	chunkSize = flag.Int("chunk-size", placement.DefaultChunkSize, "query records read per pipeline cycle")
	threads   = flag.Int("threads", 1, "worker count for thorough placement")

	prescoring          = flag.Bool("prescoring", false, "enable the two-stage prescoring pipeline")
	prescoringThreshold = flag.Float64("prescoring-threshold", 0, "prescoring discard-filter threshold")
	prescoringPercent   = flag.Bool("prescoring-by-percentage", false, "treat -prescoring-threshold as the fraction (0-1) of each query's lowest-LWR candidates to discard")

	supportThreshold  = flag.Float64("support-threshold", 0, "final-output LWR threshold below which a placement is discarded")
	accumulatedFilter = flag.Bool("accumulated-threshold", false, "treat -support-threshold as an accumulated-LWR cutoff")
	filterMin         = flag.Int("filter-min", 0, "minimum placements kept per query")
	filterMax         = flag.Int("filter-max", 0, "maximum placements kept per query")

	storeURL    = flag.String("store", "", "out-of-core backing store URL: file:///dir, s3://bucket/prefix, minio://endpoint/bucket/prefix")
	storeCap    = flag.Int("store-capacity", 0, "resident CLV budget when -store is set (default: whole tree)")
	manifestDir = flag.String("manifest-dir", "", "manifest checkpoint directory, alongside -store")

	logLevel = flag.String("log-level", "warn", "log level: debug, info, warn, error")
	logJSON  = flag.Bool("log-json", false, "emit structured logs as JSON instead of text")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if *treePath == "" || *msaPath == "" {
		return errors.New("place: -tree and -msa are required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level, err := parseLevel(*logLevel)
	if err != nil {
		return err
	}
	logger := placement.NewTextLogger(level)
	if *logJSON {
		logger = placement.NewJSONLogger(level)
	}

	model := placement.JC69(*alpha, *ncat)
	builder := placement.New(*treePath, *msaPath, model).
		WithChunkSize(*chunkSize).
		WithThreads(*threads).
		WithPrescoring(*prescoring).
		WithPrescoringThreshold(*prescoringThreshold).
		WithPrescoringByPercentage(*prescoringPercent).
		WithFilterBounds(*filterMin, *filterMax).
		WithLogger(logger)

	if *accumulatedFilter {
		builder = builder.WithAccumulatedThreshold(*supportThreshold)
	} else if *supportThreshold > 0 {
		builder = builder.WithSupportThreshold(*supportThreshold)
	}

	if *storeURL != "" {
		store, err := openBackingStore(ctx, *storeURL)
		if err != nil {
			return err
		}
		builder = builder.WithBackingStore(store, *storeCap)
		if *manifestDir != "" {
			builder = builder.WithManifestDir(*manifestDir)
		}
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("place: build engine: %w", err)
	}
	defer engine.Close()

	queries := os.Stdin
	if *queryPath != "" {
		f, err := os.Open(*queryPath)
		if err != nil {
			return fmt.Errorf("place: open query file: %w", err)
		}
		defer f.Close()
		queries = f
	}

	inv := *invocation
	if inv == "" {
		inv = strings.Join(os.Args, " ")
	}
	doc, err := engine.Place(ctx, queries, inv)
	if err != nil {
		return fmt.Errorf("place: %w", err)
	}

	raw, err := jplace.Marshal(doc)
	if err != nil {
		return fmt.Errorf("place: encode jplace document: %w", err)
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return fmt.Errorf("place: create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if _, err := out.Write(raw); err != nil {
		return fmt.Errorf("place: write output: %w", err)
	}
	return nil
}

// openBackingStore dispatches rawURL's scheme to the matching blobstore
// wiring: file:// resolves directly against a local directory, s3:// and
// minio:// hand off to their respective internal/backingstore subpackages.
func openBackingStore(ctx context.Context, rawURL string) (*backingstore.Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("place: parse store URL %q: %w", rawURL, err)
	}

	rc := resource.NewController(resource.Config{MaxBackgroundWorkers: int64(*threads)})

	switch u.Scheme {
	case "file":
		dir := u.Path
		if dir == "" {
			dir = u.Opaque
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("place: create store directory %q: %w", dir, err)
		}
		bs := blobstore.NewLocalStore(dir)
		return backingstore.New(bs, rc), nil
	case "s3":
		return backingstores3.Open(ctx, rawURL, rc)
	case "minio":
		return backingstoreminio.Open(ctx, rawURL, rc)
	default:
		return nil, fmt.Errorf("place: unsupported store scheme %q (want file, s3, or minio)", u.Scheme)
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("place: unknown -log-level %q", s)
	}
}
