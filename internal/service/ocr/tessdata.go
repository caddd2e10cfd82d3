package ocr

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveTessdata returns the first candidate directory that exists, or "".
// An explicit TESSDATA_PREFIX in the environment wins.
func ResolveTessdata(candidates []string) string {
	if prefix := strings.TrimSpace(os.Getenv("TESSDATA_PREFIX")); prefix != "" {
		return prefix
	}
	for _, dir := range candidates {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return filepath.Clean(dir)
		}
	}
	return ""
}
