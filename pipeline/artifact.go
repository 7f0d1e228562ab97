package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrysoljq/mc-translator/batch"
	"github.com/chrysoljq/mc-translator/langfile"
)

// artifact is one source language file on its way through the pipeline.
type artifact struct {
	// src is the full source mapping.
	src langfile.Map
	// modID is the owning mod's identifier (batch context and output path).
	modID string
	// originalName is the source file name, e.g. en_us.json.
	originalName string
	format       langfile.Format
	// builtin is an optional pre-existing translation bundled with the
	// source, consulted only in incremental mode. May be nil.
	builtin langfile.Map
}

// translateArtifact runs one artifact through the full or incremental
// pipeline and persists the result. Nothing is written when the run was
// cancelled mid-flight: a partially translated output must not look done.
func (p *Pipeline) translateArtifact(ctx context.Context, a artifact) (Outcome, batch.Stats, error) {
	targetName := TargetFilename(a.originalName, p.cfg.SourceLang, p.cfg.TargetLang)
	finalPath := filepath.Join(p.cfg.OutputPath, "assets", a.modID, "lang", targetName)

	if !p.update && p.cfg.SkipExisting && fileExists(finalPath) {
		p.log.Info().Str("path", finalPath).Msg("output exists, skipping")
		return OutcomeSkipped, batch.Stats{}, nil
	}

	var pending, base langfile.Map
	if p.update {
		existing, err := langfile.Read(finalPath, a.format)
		if err != nil {
			return OutcomeError, batch.Stats{}, err
		}

		base = make(langfile.Map, len(existing)+len(a.src))
		for k, v := range existing {
			base[k] = v
		}

		// Single pass over the source keys: already-resolved keys stay
		// in base, builtin translations are recovered without an API
		// call, and only the remainder becomes pending.
		pending = langfile.Map{}
		recovered := 0
		for k, v := range a.src {
			if _, ok := base[k]; ok {
				continue
			}
			if bv, ok := a.builtin[k]; ok {
				base[k] = bv
				recovered++
				continue
			}
			pending[k] = v
		}

		if len(pending) == 0 && recovered == 0 {
			p.log.Info().Str("mod", a.modID).Str("path", finalPath).Msg("nothing new, output untouched")
			return OutcomeNoOp, batch.Stats{}, nil
		}
		if recovered > 0 {
			p.log.Info().Str("mod", a.modID).Int("recovered", recovered).
				Msg("recovered entries from builtin translation")
		}
		if len(pending) > 0 {
			p.log.Info().Str("mod", a.modID).Int("pending", len(pending)).
				Msg("incremental update detected new entries")
			if err := p.backupPending(a.modID, a.originalName, pending); err != nil {
				return OutcomeError, batch.Stats{}, err
			}
		}
	} else {
		pending = a.src
		base = langfile.Map{}
	}

	merged, stats := batch.Execute(ctx, pending, a.modID, p.tr, batch.Options{
		ChunkSize: p.cfg.BatchSize,
		Limiter:   p.netLim,
		Log:       p.log,
	})

	if stats.Cancelled || ctx.Err() != nil {
		p.log.Warn().Str("path", finalPath).Msg("run cancelled, discarding result")
		return OutcomeCancelled, stats, nil
	}

	for k, v := range merged {
		base[k] = v
	}

	if err := langfile.Write(finalPath, base, a.format); err != nil {
		return OutcomeError, stats, err
	}

	p.log.Info().Str("mod", a.modID).Str("path", finalPath).
		Int("entries", len(base)).Int("failed_batches", stats.Failed).
		Msg("artifact persisted")
	return OutcomePersisted, stats, nil
}

// backupPending snapshots exactly the keys sent for translation in this
// incremental run, so a record survives even if translation fails.
func (p *Pipeline) backupPending(modID, originalName string, pending langfile.Map) error {
	rawDir := filepath.Join(p.cfg.OutputPath, "raw_content")
	rawPath := filepath.Join(rawDir, fmt.Sprintf("%s_%s", modID, originalName))
	if err := langfile.Write(rawPath, pending, langfile.FormatJSON); err != nil {
		return fmt.Errorf("backing up pending entries: %w", err)
	}
	p.log.Info().Str("path", rawPath).Msg("backed up pending source entries")
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
