// Package pipeline drives a full run: it fans tree files out to workers,
// processes each file's trees strictly sequentially against a per-tree
// arena, and writes one catalogue per input file. Files are embarrassingly
// parallel; workers share nothing mutable but the metrics registry.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/darrencroton/mimic/internal/config"
	"github.com/darrencroton/mimic/internal/loader"
	"github.com/darrencroton/mimic/internal/observability"
	"github.com/darrencroton/mimic/internal/writer"
	"github.com/darrencroton/mimic/pkg/arena"
	"github.com/darrencroton/mimic/pkg/cosmology"
	"github.com/darrencroton/mimic/pkg/extension"
	"github.com/darrencroton/mimic/pkg/identity"
	"github.com/darrencroton/mimic/pkg/physics"
	"github.com/darrencroton/mimic/pkg/safeconv"
	"github.com/darrencroton/mimic/pkg/tree"
)

// onErrorSkip is the file-loop policy that logs a failed file and carries
// on; the engine's own invariant violations still abort the run.
const onErrorSkip = "skip-file"

// Summary aggregates the outcome of one run.
type Summary struct {
	Files        int64
	Trees        int64
	Halos        int64
	FreshHalos   int64
	Mergers      int64
	PeakArena    int64
	SkippedFiles []int
	Duration     time.Duration
}

// Runner executes runs for one configuration.
type Runner struct {
	cfg     *config.Config
	cosmo   *cosmology.Cosmology
	schema  *extension.Schema
	modules []physics.Module
	encoder *identity.Encoder
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New assembles a runner from configuration: cosmology context, extension
// schema, physics module selection and the identity encoder regime.
func New(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cosmo, err := cosmology.New(cosmology.Params{
		HubbleH:      cfg.Cosmology.HubbleH,
		OmegaM:       cfg.Cosmology.OmegaM,
		OmegaLambda:  cfg.Cosmology.OmegaLambda,
		ParticleMass: cfg.Cosmology.ParticleMass,
		Overdensity:  cfg.Cosmology.Overdensity,
	}, cfg.Snapshots.ScaleFactors)
	if err != nil {
		return nil, err
	}

	schema := extension.Default()
	if cfg.Extension.SchemaPath != "" {
		schema, err = extension.Load(cfg.Extension.SchemaPath)
		if err != nil {
			return nil, err
		}
	}

	modules, err := physics.DefaultRegistry().Select(cfg.Physics.Modules, schema)
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:     cfg,
		cosmo:   cosmo,
		schema:  schema,
		modules: modules,
		encoder: identity.NewEncoder(cfg.Files.MaxFiles),
		metrics: observability.New(),
		logger:  logger,
	}, nil
}

// Metrics returns the run's metric set.
func (r *Runner) Metrics() *observability.Metrics {
	return r.metrics
}

// Run processes the configured file range and returns the run summary. With
// the abort policy the first failed file fails the run; with skip-file the
// failure is logged and the remaining files are still processed.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()

	err := os.MkdirAll(r.cfg.IO.OutputDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create output dir: %w", err)
	}

	files := make([]int, 0, r.cfg.Files.LastFile-r.cfg.Files.FirstFile+1)
	for fileNr := r.cfg.Files.FirstFile; fileNr <= r.cfg.Files.LastFile; fileNr++ {
		files = append(files, fileNr)
	}

	workers := r.cfg.Pipeline.Workers
	if workers > len(files) {
		workers = len(files)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		aborted   atomic.Bool
		summary   Summary
		runErr    error
		skipFiles []int
	)

	for w := range workers {
		wg.Add(1)

		go func(workerID int) {
			defer wg.Done()

			workerLog := r.logger.With("worker", workerID)

			// Static round-robin file assignment; no work stealing.
			for idx := workerID; idx < len(files); idx += workers {
				if aborted.Load() || ctx.Err() != nil {
					return
				}

				fileNr := files[idx]

				fileSummary, err := r.processFile(ctx, fileNr, workerLog)

				mu.Lock()

				if err != nil {
					if r.cfg.Pipeline.OnError == onErrorSkip {
						workerLog.Error("skipping file", "file", fileNr, "error", err)
						skipFiles = append(skipFiles, fileNr)
					} else {
						if runErr == nil {
							runErr = err
						}

						aborted.Store(true)
					}
				} else {
					summary.Files++
					summary.Trees += fileSummary.Trees
					summary.Halos += fileSummary.Halos
					summary.FreshHalos += fileSummary.FreshHalos
					summary.Mergers += fileSummary.Mergers

					if fileSummary.PeakArena > summary.PeakArena {
						summary.PeakArena = fileSummary.PeakArena
					}
				}

				mu.Unlock()
			}
		}(w)
	}

	wg.Wait()

	if runErr != nil {
		return nil, runErr
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("pipeline: run canceled: %w", ctx.Err())
	}

	summary.SkippedFiles = skipFiles
	summary.Duration = time.Since(started)
	r.metrics.ArenaHighWater.Set(float64(summary.PeakArena))

	return &summary, nil
}

// processFile loads one tree file and processes its trees strictly
// sequentially, each against a fresh arena that must drain completely
// before the next tree starts. A failure leaves no partial tree in the
// catalogue.
func (r *Runner) processFile(ctx context.Context, fileNr int, log *slog.Logger) (*Summary, error) {
	inPath := filepath.Join(r.cfg.IO.InputDir,
		fmt.Sprintf("%s%d%s", r.cfg.IO.InputPrefix, fileNr, r.cfg.IO.InputSuffix))

	treeFile, err := loader.Open(inPath)
	if err != nil {
		return nil, err
	}

	defer treeFile.Close()

	outPath := filepath.Join(r.cfg.IO.OutputDir, fmt.Sprintf("catalogue_%d.dat", fileNr))
	if r.cfg.IO.Compress {
		outPath += ".lz4"
	}

	catalogue, err := writer.NewCatalogue(outPath, safeconv.MustIntToInt32(fileNr), r.encoder, r.schema.Words())
	if err != nil {
		return nil, err
	}

	fileSummary := &Summary{}

	log.Info("processing file", "file", fileNr, "trees", treeFile.Trees(), "halos", treeFile.TotalHalos())

	for treeIdx := range treeFile.Trees() {
		if ctx.Err() != nil {
			catalogue.Close()

			return nil, fmt.Errorf("pipeline: file %d canceled: %w", fileNr, ctx.Err())
		}

		err = r.processTree(treeFile, catalogue, fileNr, treeIdx, log, fileSummary)
		if err != nil {
			catalogue.Close()

			return nil, err
		}
	}

	err = catalogue.Close()
	if err != nil {
		return nil, err
	}

	r.metrics.FilesProcessed.Inc()
	r.metrics.TreesProcessed.Add(float64(fileSummary.Trees))
	r.metrics.HalosTracked.Add(float64(fileSummary.Halos))
	r.metrics.FreshHalos.Add(float64(fileSummary.FreshHalos))
	r.metrics.Mergers.Add(float64(fileSummary.Mergers))

	return fileSummary, nil
}

func (r *Runner) processTree(
	treeFile *loader.TreeFile,
	catalogue *writer.Catalogue,
	fileNr, treeIdx int,
	log *slog.Logger,
	fileSummary *Summary,
) error {
	treeArena := arena.New()
	if r.cfg.Pipeline.DebugArena {
		treeArena = arena.NewDebug()
	}

	rawHandle, raw, err := treeFile.ReadTree(treeArena, treeIdx)
	if err != nil {
		return err
	}

	state := tree.NewState(treeArena, raw, tree.Config{
		TreeID:    int64(treeIdx),
		FileNr:    safeconv.MustIntToInt32(fileNr),
		Cosmology: r.cosmo,
		Schema:    r.schema,
		Modules:   r.modules,
		Logger:    log,
	})

	state.BuildAll()

	err = catalogue.WriteTree(treeArena, state)
	if err != nil {
		return err
	}

	stats := state.Stats()
	fileSummary.Trees++
	fileSummary.Halos += stats.HalosTracked
	fileSummary.FreshHalos += stats.FreshHalos
	fileSummary.Mergers += stats.Mergers

	state.Release()
	treeArena.Release(rawHandle)
	treeArena.AssertNoLeaks()

	if treeArena.HighWater() > fileSummary.PeakArena {
		fileSummary.PeakArena = treeArena.HighWater()
	}

	return nil
}
