// Package batch fans a language map out into bounded-concurrency
// translation batches and merges the results.
//
// The merge policy is fail-loud: a batch whose remote call failed, or
// whose response length does not match its input, has every one of its
// keys removed from the output map. Untranslated text is never allowed
// to masquerade as translated output; a removed key means "needs re-run".
package batch

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chrysoljq/mc-translator/langfile"
)

// DefaultChunkSize is used when the configured batch size is zero.
// A zero-sized chunk would never drain the pending list.
const DefaultChunkSize = 20

// Translator submits one ordered list of texts and returns the
// translated list in the same order.
type Translator interface {
	TranslateTextList(ctx context.Context, texts []string, contextID string) ([]string, error)
}

// Limiter is a counting semaphore bounding in-flight remote calls
// process-wide. A nil Limiter means unbounded.
type Limiter chan struct{}

// NewLimiter builds a limiter with n permits (minimum 1).
func NewLimiter(n int) Limiter {
	if n < 1 {
		n = 1
	}
	return make(Limiter, n)
}

// Options configures one Execute run.
type Options struct {
	// ChunkSize is the number of units per batch (0 = DefaultChunkSize).
	ChunkSize int
	// Limiter bounds concurrent remote calls across all artifacts.
	Limiter Limiter
	// Log receives per-batch progress and failure events.
	Log zerolog.Logger
}

// Stats reports what happened to the batches of one Execute run.
type Stats struct {
	// Units is the number of translatable units submitted.
	Units int
	// Batches is the number of chunks dispatched.
	Batches int
	// Failed is the number of batches dropped from the output.
	Failed int
	// Cancelled is set when cancellation stopped dispatch before all
	// chunks were submitted.
	Cancelled bool
}

type unit struct {
	key  string
	text string
}

// Execute partitions the translatable entries of src into chunks,
// dispatches each chunk concurrently through tr, and returns src with
// translated values merged in. Non-string and blank-string entries pass
// through unchanged. Chunks dispatched before cancellation fired are
// allowed to finish and their results are merged.
func Execute(ctx context.Context, src langfile.Map, contextID string, tr Translator, opts Options) (langfile.Map, Stats) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	out := make(langfile.Map, len(src))
	for k, v := range src {
		out[k] = v
	}

	pending := collectPending(src)
	stats := Stats{Units: len(pending)}
	if len(pending) == 0 {
		return out, stats
	}

	chunks := split(pending, chunkSize)
	total := len(chunks)

	var (
		wg sync.WaitGroup
		mu sync.Mutex // guards out and stats.Failed
	)

	for idx, chunk := range chunks {
		if ctx.Err() != nil {
			stats.Cancelled = true
			break
		}

		// The network permit is taken before the batch goroutine is
		// spawned and held only across the remote call itself.
		if opts.Limiter != nil {
			select {
			case opts.Limiter <- struct{}{}:
				// Cancellation may have raced the permit; no new work
				// starts once the signal is set.
				if ctx.Err() != nil {
					<-opts.Limiter
					stats.Cancelled = true
				}
			case <-ctx.Done():
				stats.Cancelled = true
			}
			if stats.Cancelled {
				break
			}
		}

		stats.Batches++
		opts.Log.Info().Str("context", contextID).
			Int("batch", idx+1).Int("total", total).Int("size", len(chunk)).
			Msg("dispatching batch")

		wg.Add(1)
		go func(batchNo int, chunk []unit) {
			defer wg.Done()

			texts := make([]string, len(chunk))
			for i, u := range chunk {
				texts[i] = u.text
			}

			translated, err := func() ([]string, error) {
				if opts.Limiter != nil {
					defer func() { <-opts.Limiter }()
				}
				return tr.TranslateTextList(ctx, texts, contextID)
			}()

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				opts.Log.Warn().Err(err).Str("context", contextID).Int("batch", batchNo).
					Msg("batch failed, dropping its keys")
				stats.Failed++
				for _, u := range chunk {
					delete(out, u.key)
				}
			case len(translated) != len(chunk):
				opts.Log.Warn().Str("context", contextID).Int("batch", batchNo).
					Int("sent", len(chunk)).Int("received", len(translated)).
					Msg("batch length mismatch, dropping its keys")
				stats.Failed++
				for _, u := range chunk {
					delete(out, u.key)
				}
			default:
				// Index order is the correlation key: result N belongs
				// to the Nth key of this chunk.
				for i, u := range chunk {
					out[u.key] = translated[i]
				}
			}
		}(idx+1, chunk)
	}

	wg.Wait()
	return out, stats
}

// collectPending filters src down to units with non-blank string values,
// in deterministic key order.
func collectPending(src langfile.Map) []unit {
	keys := make([]string, 0, len(src))
	for k, v := range src {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	units := make([]unit, len(keys))
	for i, k := range keys {
		units[i] = unit{key: k, text: src[k].(string)}
	}
	return units
}

// split partitions units into chunks of at most size elements,
// preserving order.
func split(units []unit, size int) [][]unit {
	var chunks [][]unit
	for i := 0; i < len(units); i += size {
		end := i + size
		if end > len(units) {
			end = len(units)
		}
		chunks = append(chunks, units[i:end])
	}
	return chunks
}
