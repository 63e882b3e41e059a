package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

const maxAssetNameLen = 120

// SanitizeName strips control characters and replaces runes that are unsafe
// in multipart filenames.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// AssetName returns a sanitized filename that is not in taken. Collisions
// get a numeric suffix before the extension: logo.png, logo_2.png, ...
func AssetName(name string, taken map[string]bool) string {
	name = SanitizeName(filepath.Base(name), maxAssetNameLen)
	if name == "" || name == "." {
		name = "asset"
	}
	if !taken[name] {
		return name
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !taken[candidate] {
			return candidate
		}
	}
}

// ValidateOutputPath checks that a result download target sits in an
// existing directory and does not traverse upwards.
func ValidateOutputPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("output path is required")
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("output path cannot contain path traversal")
		}
	}

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output directory does not exist")
		}
		return fmt.Errorf("invalid output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory is not a directory")
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("output path is a directory")
	}
	return nil
}
