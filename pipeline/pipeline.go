// Package pipeline orchestrates translation runs: it walks the input,
// dispatches each artifact under a file-level concurrency bound, decides
// between full and incremental processing per artifact, and persists
// results as a Minecraft resource pack.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chrysoljq/mc-translator/batch"
	"github.com/chrysoljq/mc-translator/config"
	"github.com/chrysoljq/mc-translator/langfile"
	"github.com/chrysoljq/mc-translator/snbt"
)

// Outcome is the terminal state of one artifact.
type Outcome int

const (
	// OutcomeSkipped — output already exists, nothing read or sent.
	OutcomeSkipped Outcome = iota
	// OutcomeNoOp — incremental run found nothing new, output untouched.
	OutcomeNoOp
	// OutcomePersisted — output written (possibly with dropped batches).
	OutcomePersisted
	// OutcomeCancelled — run cancelled mid-artifact, result discarded.
	OutcomeCancelled
	// OutcomeError — artifact-level failure (I/O, unreadable source).
	OutcomeError
)

// Summary aggregates per-artifact outcomes across one run.
type Summary struct {
	Persisted      int
	Skipped        int
	NoOp           int
	Errors         int
	DroppedBatches int
	Cancelled      bool
}

type tally struct {
	mu sync.Mutex
	s  Summary
}

func (t *tally) add(o Outcome, stats batch.Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.DroppedBatches += stats.Failed
	switch o {
	case OutcomeSkipped:
		t.s.Skipped++
	case OutcomeNoOp:
		t.s.NoOp++
	case OutcomePersisted:
		t.s.Persisted++
	case OutcomeCancelled:
		t.s.Cancelled = true
	case OutcomeError:
		t.s.Errors++
	}
}

// Pipeline is one configured translation run. The two semaphores and the
// run logger are the only state shared across concurrent artifacts.
type Pipeline struct {
	cfg     config.Config
	tr      batch.Translator
	log     zerolog.Logger
	fileSem chan struct{}
	netLim  batch.Limiter
	update  bool
}

// New builds a pipeline. update selects incremental mode. Every log
// event of the run carries a fresh run identifier.
func New(cfg config.Config, tr batch.Translator, update bool, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		tr:      tr,
		log:     log.With().Str("run_id", uuid.NewString()).Logger(),
		fileSem: make(chan struct{}, cfg.FileWorkers),
		netLim:  batch.NewLimiter(cfg.NetworkWorkers),
		update:  update,
	}
}

var supportedExts = map[string]bool{
	".jar":  true,
	".json": true,
	".lang": true,
	".snbt": true,
}

// Run processes input (a file or a directory tree) and returns the run
// summary. Sibling artifacts are isolated: one artifact failing is
// counted and logged, not propagated.
func (p *Pipeline) Run(ctx context.Context, input string) (Summary, error) {
	info, err := os.Stat(input)
	if err != nil {
		return Summary{}, fmt.Errorf("input path: %w", err)
	}

	var files []string
	if info.IsDir() {
		err := filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if !supportedExts[ext] {
				return nil
			}
			if ext == ".snbt" && p.cfg.SkipQuests {
				p.log.Debug().Str("path", path).Msg("quest files disabled, skipping")
				return nil
			}
			// Only source-language maps; bundled translations next to
			// them are recovery input, not artifacts of their own.
			if ext == ".json" || ext == ".lang" {
				if !strings.Contains(strings.ToLower(filepath.Base(path)), strings.ToLower(p.cfg.SourceLang)) {
					return nil
				}
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return Summary{}, fmt.Errorf("walking input: %w", err)
		}
	} else {
		files = []string{input}
	}

	if len(files) == 0 {
		p.log.Warn().Str("input", input).Msg("no translatable files found")
		return Summary{}, nil
	}
	p.log.Info().Int("files", len(files)).Msg("starting run")

	var (
		t  tally
		wg sync.WaitGroup
	)
	for _, path := range files {
		if ctx.Err() != nil {
			t.add(OutcomeCancelled, batch.Stats{})
			break
		}

		select {
		case p.fileSem <- struct{}{}:
		case <-ctx.Done():
			t.add(OutcomeCancelled, batch.Stats{})
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(path string) {
			defer func() {
				<-p.fileSem
				wg.Done()
			}()
			p.processFile(ctx, path, &t)
		}(path)
	}
	wg.Wait()

	summary := t.s
	if summary.Persisted > 0 && !summary.Cancelled {
		if err := writePackMeta(p.cfg.OutputPath); err != nil {
			p.log.Error().Err(err).Msg("writing pack.mcmeta")
			summary.Errors++
		}
	}
	return summary, nil
}

// processFile dispatches one on-disk file by extension and records its
// outcome(s). A JAR contributes one outcome per language file inside it.
func (p *Pipeline) processFile(ctx context.Context, path string, t *tally) {
	var (
		outcome Outcome
		stats   batch.Stats
		err     error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jar":
		p.processJar(ctx, path, t)
		return
	case ".json":
		outcome, stats, err = p.processMapFile(ctx, path, langfile.FormatJSON)
	case ".lang":
		outcome, stats, err = p.processMapFile(ctx, path, langfile.FormatLang)
	case ".snbt":
		outcome, stats, err = p.processQuest(ctx, path)
	default:
		p.log.Warn().Str("path", path).Msg("unsupported file type")
		return
	}

	if err != nil {
		p.log.Error().Err(err).Str("path", path).Msg("artifact failed")
		outcome = OutcomeError
	}
	t.add(outcome, stats)
}

// processMapFile handles a loose en_us.json / en_us.lang outside any
// archive.
func (p *Pipeline) processMapFile(ctx context.Context, path string, format langfile.Format) (Outcome, batch.Stats, error) {
	p.log.Info().Str("path", path).Msg("processing language file")

	src, err := langfile.Read(path, format)
	if err != nil {
		return OutcomeError, batch.Stats{}, err
	}
	if len(src) == 0 {
		p.log.Warn().Str("path", path).Msg("empty or unparseable language file")
		return OutcomeNoOp, batch.Stats{}, nil
	}

	modID := ExtractModID(path)
	if modID == "unknown_mod" {
		p.log.Warn().Str("path", path).Msg("cannot derive mod id from path")
	}

	return p.translateArtifact(ctx, artifact{
		src:          src,
		modID:        modID,
		originalName: filepath.Base(path),
		format:       format,
		builtin:      p.siblingBuiltin(path, format),
	})
}

// siblingBuiltin loads a bundled target-language file sitting next to
// the source file, used as the incremental-mode recovery source.
func (p *Pipeline) siblingBuiltin(path string, format langfile.Format) langfile.Map {
	if !p.update {
		return nil
	}
	name := TargetFilename(filepath.Base(path), p.cfg.SourceLang, p.cfg.TargetLang)
	builtin, err := langfile.Read(filepath.Join(filepath.Dir(path), name), format)
	if err != nil || len(builtin) == 0 {
		return nil
	}
	p.log.Debug().Str("path", path).Int("entries", len(builtin)).Msg("found bundled translation")
	return builtin
}

// processQuest translates the inline text of an SNBT quest file in
// place: extract spans, translate them as a synthetic mapping, splice
// the results back at their original offsets.
func (p *Pipeline) processQuest(ctx context.Context, path string) (Outcome, batch.Stats, error) {
	outPath := filepath.Join(p.cfg.OutputPath, filepath.Base(path))
	if p.cfg.SkipExisting && fileExists(outPath) {
		p.log.Info().Str("path", outPath).Msg("output exists, skipping")
		return OutcomeSkipped, batch.Stats{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return OutcomeError, batch.Stats{}, fmt.Errorf("reading quest file: %w", err)
	}
	doc := string(data)

	extracted, spans, keyIndirected := snbt.Extract(doc)
	if keyIndirected {
		p.log.Info().Str("path", path).Msg("quest file references localization keys, skipping")
		return OutcomeSkipped, batch.Stats{}, nil
	}
	if len(extracted) == 0 {
		p.log.Info().Str("path", path).Msg("no translatable text in quest file")
		return OutcomeNoOp, batch.Stats{}, nil
	}
	p.log.Info().Str("path", path).Int("spans", len(spans)).Msg("extracted quest text")

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	merged, stats := batch.Execute(ctx, extracted, "quest_"+stem, p.tr, batch.Options{
		ChunkSize: p.cfg.BatchSize,
		Limiter:   p.netLim,
		Log:       p.log,
	})

	if stats.Cancelled || ctx.Err() != nil {
		p.log.Warn().Str("path", outPath).Msg("run cancelled, discarding quest result")
		return OutcomeCancelled, stats, nil
	}

	result := snbt.Splice(doc, spans, merged)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return OutcomeError, stats, fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(result), 0o644); err != nil {
		return OutcomeError, stats, fmt.Errorf("writing quest file: %w", err)
	}

	p.log.Info().Str("path", outPath).Int("failed_batches", stats.Failed).Msg("quest file persisted")
	return OutcomePersisted, stats, nil
}
