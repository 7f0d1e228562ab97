package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/chrysoljq/mc-translator/batch"
	"github.com/chrysoljq/mc-translator/langfile"
)

// processJar scans a mod JAR for source-language files under assets/ and
// runs each through the artifact pipeline. One JAR may ship several
// mods; every language file found is its own artifact with its own
// outcome.
func (p *Pipeline) processJar(ctx context.Context, jarPath string, t *tally) {
	p.log.Info().Str("path", jarPath).Msg("scanning jar")

	r, err := zip.OpenReader(jarPath)
	if err != nil {
		p.log.Error().Err(err).Str("path", jarPath).Msg("cannot open jar")
		t.add(OutcomeError, batch.Stats{})
		return
	}
	defer r.Close()

	sourceFile := strings.ToLower(p.cfg.SourceLang) + ".json"
	entries := map[string]*zip.File{}
	var targets []string
	for _, f := range r.File {
		entries[f.Name] = f
		if strings.Contains(f.Name, "assets") && strings.HasSuffix(strings.ToLower(f.Name), sourceFile) {
			targets = append(targets, f.Name)
		}
	}
	if len(targets) == 0 {
		p.log.Warn().Str("path", jarPath).Msg("no source language files in jar")
		t.add(OutcomeNoOp, batch.Stats{})
		return
	}

	for _, entryName := range targets {
		if ctx.Err() != nil {
			t.add(OutcomeCancelled, batch.Stats{})
			return
		}

		modID := modIDFromEntry(entryName)
		baseName := path.Base(entryName)
		p.log.Info().Str("entry", entryName).Str("mod", modID).Msg("found language file")

		src, err := readJarMap(entries[entryName])
		if err != nil {
			p.log.Error().Err(err).Str("entry", entryName).Msg("unreadable jar entry")
			t.add(OutcomeError, batch.Stats{})
			continue
		}
		if len(src) == 0 {
			t.add(OutcomeNoOp, batch.Stats{})
			continue
		}

		outcome, stats, err := p.translateArtifact(ctx, artifact{
			src:          src,
			modID:        modID,
			originalName: baseName,
			format:       langfile.FormatJSON,
			builtin:      p.jarBuiltin(entries, entryName, baseName),
		})
		if err != nil {
			p.log.Error().Err(err).Str("entry", entryName).Msg("artifact failed")
			outcome = OutcomeError
		}
		t.add(outcome, stats)
	}
}

// jarBuiltin looks for a bundled target-language file next to the
// source entry inside the jar (mods often ship their own zh_cn.json).
// Only consulted in incremental mode.
func (p *Pipeline) jarBuiltin(entries map[string]*zip.File, entryName, baseName string) langfile.Map {
	if !p.update {
		return nil
	}
	targetName := TargetFilename(baseName, p.cfg.SourceLang, p.cfg.TargetLang)
	sibling := path.Join(path.Dir(entryName), targetName)
	f, ok := entries[sibling]
	if !ok {
		return nil
	}
	m, err := readJarMap(f)
	if err != nil || len(m) == 0 {
		return nil
	}
	p.log.Debug().Str("entry", sibling).Int("entries", len(m)).Msg("found bundled translation in jar")
	return m
}

func readJarMap(f *zip.File) (langfile.Map, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name, err)
	}
	return langfile.Decode(data, langfile.FormatJSON)
}
