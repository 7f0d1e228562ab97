package pipeline

import (
	"path/filepath"
	"strings"
)

// TargetFilename derives the output file name from the source file name
// by substituting the source language tag with the target tag, trying
// the exact casing first and the lowercase form second. A name without
// the tag gets the target tag as a prefix.
func TargetFilename(original, sourceLang, targetLang string) string {
	lowerName := strings.ToLower(original)
	lowerSource := strings.ToLower(sourceLang)
	lowerTarget := strings.ToLower(targetLang)

	if strings.Contains(lowerName, lowerSource) {
		out := strings.ReplaceAll(original, sourceLang, targetLang)
		return strings.ReplaceAll(out, lowerSource, lowerTarget)
	}
	return lowerTarget + "_" + original
}

// ExtractModID recovers the mod identifier from a loose file path by
// looking at the directory above a lang/ or data/ component:
//
//	.../assets/<modid>/lang/en_us.json
//	.../resources/<modid>/data/chat/en_us.lang
//
// Paths matching neither shape map to "unknown_mod".
func ExtractModID(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i, part := range parts {
		if part == "lang" && i > 0 {
			return parts[i-1]
		}
	}
	// Some mods keep chat/data files outside lang/, e.g.
	// dsurround/data/chat/en_us.lang.
	for i, part := range parts {
		if part == "data" && i > 0 {
			return parts[i-1]
		}
	}
	return "unknown_mod"
}

// modIDFromEntry recovers the mod identifier from a path inside a JAR,
// where the component after assets/ names the mod.
func modIDFromEntry(entryName string) string {
	parts := strings.Split(filepath.ToSlash(entryName), "/")
	for i, part := range parts {
		if part == "assets" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return "unknown"
}
