// Package snbt locates translatable text spans inside SNBT quest files
// (FTB Quests chapter definitions) and splices translations back in
// without disturbing the surrounding document.
//
// Extraction is regex-based: title/subtitle fields and the quoted
// elements of description list blocks. This does not survive deeply
// nested brackets or exotic escaping inside a description block; quest
// files in practice are flat, but it is a known limitation of the
// approach rather than a guarantee.
package snbt

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/chrysoljq/mc-translator/langfile"
)

// Span is one extracted text range. Key is the synthetic index under
// which the span's text was submitted for translation.
type Span struct {
	// Start and End delimit the raw quoted content, half-open [Start, End).
	Start, End int
	Key        string
}

var (
	reField     = regexp.MustCompile(`(title|subtitle)\s*:\s*"((?:[^"\\]|\\.)*)"`)
	reDescBlock = regexp.MustCompile(`(?s)description\s*:\s*\[(.*?)\]`)
	reString    = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)

	// Dotted identifiers like ftbquests.chapter.welcome indicate the file
	// references external localization keys instead of inline text.
	reLocalizationKey = regexp.MustCompile(`^[A-Za-z0-9_-]+(?:\.[A-Za-z0-9_-]+)+$`)
)

// Extract scans doc and returns the synthetic index → text map to
// translate plus the spans to splice afterwards. When the first
// extracted span looks like a localization key reference, the whole
// document is presumed key-indirected and skip is true.
func Extract(doc string) (langfile.Map, []Span, bool) {
	extracted := langfile.Map{}
	var spans []Span
	counter := 0

	add := func(start, end int) {
		raw := doc[start:end]
		if !worthTranslating(raw) {
			return
		}
		key := strconv.Itoa(counter)
		extracted[key] = raw
		spans = append(spans, Span{Start: start, End: end, Key: key})
		counter++
	}

	// title: "..." / subtitle: "..." fields
	for _, m := range reField.FindAllStringSubmatchIndex(doc, -1) {
		// m[4], m[5] delimit the second capture group (the quoted value)
		if m[4] >= 0 {
			add(m[4], m[5])
		}
	}

	// every quoted element inside description: [ ... ] blocks
	for _, bm := range reDescBlock.FindAllStringSubmatchIndex(doc, -1) {
		blockStart, blockEnd := bm[2], bm[3]
		if blockStart < 0 {
			continue
		}
		block := doc[blockStart:blockEnd]
		for _, sm := range reString.FindAllStringSubmatchIndex(block, -1) {
			if sm[2] >= 0 {
				add(blockStart+sm[2], blockStart+sm[3])
			}
		}
	}

	if len(spans) > 0 {
		if first, ok := extracted[spans[0].Key].(string); ok && reLocalizationKey.MatchString(first) {
			return nil, nil, true
		}
	}
	return extracted, spans, false
}

// worthTranslating rejects blank spans and spans with no alphabetic
// content (pure formatting codes and punctuation).
func worthTranslating(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	return strings.ContainsFunc(s, unicode.IsLetter)
}

// Splice replaces each span's range with its translated text. Spans are
// processed in descending start order so a replacement of different
// length never shifts the offsets of spans still pending. Spans with a
// missing or blank translation are left byte-identical to the source.
func Splice(doc string, spans []Span, translated langfile.Map) string {
	ordered := make([]Span, len(spans))
	copy(ordered, spans)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	for _, sp := range ordered {
		text, ok := translated[sp.Key].(string)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		doc = doc[:sp.Start] + escapeQuoted(text) + doc[sp.End:]
	}
	return doc
}

// escapeQuoted makes text safe inside an SNBT double-quoted string:
// bare quotes get a backslash, literal newlines become \n, and escape
// sequences already present are left untouched.
func escapeQuoted(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, c := range s {
		if escaped {
			b.WriteRune(c)
			escaped = false
			continue
		}
		switch c {
		case '\\':
			b.WriteRune(c)
			escaped = true
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
