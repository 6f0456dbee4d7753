// Package registry discovers loadable GGUF model files on disk.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"llamad/internal/common/fsutil"
	"llamad/pkg/types"
)

// GGUFScanner builds a model registry from *.gguf files in a directory.
// ID is the full filename (including extension); Path is the absolute file
// path. Quantization and family are inferred from the filename when possible.
type GGUFScanner struct{}

func NewGGUFScanner() GGUFScanner { return GGUFScanner{} }

// quantRe matches common llama.cpp quantization suffixes, e.g. Q4_K_M, Q8_0,
// IQ2_XS, F16.
var quantRe = regexp.MustCompile(`(?i)\b(i?q[0-9]_[a-z0-9_]+|q[0-9]_[0-9]|f16|f32|bf16)\b`)

// knownFamilies are matched as filename substrings; more specific names
// come first.
var knownFamilies = []string{"tinyllama", "llama", "gemma", "qwen", "mistral", "phi"}

// Scan lists *.gguf entries under dir (case-insensitive extension,
// '~' expanded).
func (GGUFScanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		models = append(models, types.Model{
			ID:     name,
			Name:   name,
			Path:   filepath.Join(abs, name),
			Quant:  inferQuant(name),
			Family: inferFamily(name),
		})
	}
	return models, nil
}

// LoadDir is the package-level convenience wrapper around Scan.
func LoadDir(dir string) ([]types.Model, error) {
	return NewGGUFScanner().Scan(dir)
}

func inferQuant(name string) string {
	m := quantRe.FindString(name)
	return strings.ToUpper(m)
}

func inferFamily(name string) string {
	lower := strings.ToLower(name)
	for _, f := range knownFamilies {
		if strings.Contains(lower, f) {
			return f
		}
	}
	return ""
}
