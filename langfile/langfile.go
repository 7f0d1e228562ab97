// Package langfile reads and writes Minecraft language maps in their two
// on-disk shapes: lang JSON objects and legacy .lang key=value files.
//
// Values are kept as any: strings are what the translator works on, while
// non-string JSON leaves ride through untouched.
package langfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// Map is a key → value language mapping. String values are translatable;
// everything else is passed through.
type Map = map[string]any

// Format identifies the on-disk representation of a language map.
type Format int

const (
	FormatJSON Format = iota
	FormatLang
)

// FormatFor picks the format matching a file extension.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".lang") {
		return FormatLang
	}
	return FormatJSON
}

// Read loads a language map from path. A missing file yields an empty map,
// matching incremental mode's "no output yet" case.
func Read(path string, format Format) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Map{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Decode(data, format)
}

// Decode parses raw bytes into a language map.
func Decode(data []byte, format Format) (Map, error) {
	switch format {
	case FormatLang:
		return decodeLang(data)
	default:
		return decodeJSON(data)
	}
}

func decodeJSON(data []byte) (Map, error) {
	sanitized := Sanitize(string(data))
	var v any
	if err := json.Unmarshal([]byte(sanitized), &v); err != nil {
		// Mod lang files in the wild are occasionally beyond repair;
		// treat them as empty rather than failing the whole artifact.
		return Map{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return Map{}, nil
	}
	return m, nil
}

func decodeLang(data []byte) (Map, error) {
	m := Map{}
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning lang file: %w", err)
	}
	return m, nil
}

// Write serializes a language map to path, creating parent directories.
func Write(path string, m Map, format Format) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}

	var data []byte
	switch format {
	case FormatLang:
		data = encodeLang(m)
	default:
		var err error
		data, err = json.MarshalIndent(m, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func encodeLang(m Map) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		s, ok := m[k].(string)
		if !ok {
			continue // .lang has no representation for non-string values
		}
		escaped := strings.ReplaceAll(s, "\r", "")
		escaped = strings.ReplaceAll(escaped, "\n", `\n`)
		fmt.Fprintf(&b, "%s=%s\n", k, escaped)
	}
	return []byte(b.String())
}

// Sanitize repairs the damage commonly found in hand-edited mod lang
// files before JSON parsing: a UTF-8 BOM, // and # comments outside
// strings, and raw newlines, tabs, or control characters inside string
// literals.
func Sanitize(content string) string {
	var b strings.Builder
	b.Grow(len(content))

	runes := []rune(strings.TrimPrefix(content, "\uFEFF"))
	inString := false
	escaped := false

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if !inString {
			if c == '/' && i+1 < len(runes) && runes[i+1] == '/' {
				for i < len(runes) && runes[i] != '\n' && runes[i] != '\r' {
					i++
				}
				i--
				continue
			}
			if c == '#' {
				for i < len(runes) && runes[i] != '\n' && runes[i] != '\r' {
					i++
				}
				i--
				continue
			}
			if c == '"' {
				inString = true
			}
			b.WriteRune(c)
			continue
		}

		if escaped {
			escaped = false
			switch c {
			case '\n':
				// backslash followed by a literal newline: keep it as \n
				b.WriteRune('n')
			case '\r':
			default:
				b.WriteRune(c)
			}
			continue
		}
		switch {
		case c == '\\':
			escaped = true
			b.WriteRune(c)
		case c == '"':
			inString = false
			b.WriteRune(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
		case c == '\t':
			b.WriteString(`\t`)
		case unicode.IsControl(c):
			// drop stray control characters that break json.Unmarshal
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
