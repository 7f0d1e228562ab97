package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const packFormat = 3

type packInfo struct {
	PackFormat  int    `json:"pack_format"`
	Description string `json:"description"`
}

type packMeta struct {
	Pack packInfo `json:"pack"`
}

// writePackMeta emits the pack.mcmeta descriptor that makes the output
// directory loadable as a Minecraft resource pack.
func writePackMeta(outputRoot string) error {
	meta := packMeta{
		Pack: packInfo{
			PackFormat:  packFormat,
			Description: "§aAI localized resource pack§r by §bmc-translator§r",
		},
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling pack.mcmeta: %w", err)
	}
	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		return fmt.Errorf("creating output root: %w", err)
	}
	path := filepath.Join(outputRoot, "pack.mcmeta")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing pack.mcmeta: %w", err)
	}
	return nil
}
