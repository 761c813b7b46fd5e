package index

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"
)

// textExtensions are the document types picked up by a vault walk.
var textExtensions = map[string]bool{
	".md":  true,
	".txt": true,
}

// LoadDocuments walks a vault directory and reads every text document not
// matched by the excluded patterns. Documents are identified by their path
// relative to the root. Unreadable files are skipped with a warning.
func LoadDocuments(root string, excludedPatterns []string, logger *zap.Logger) ([]Document, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	matcher := gitignore.CompileIgnoreLines(excludedPatterns...)

	var docs []Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			rel = path
		}
		if matcher.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !textExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		content, rerr := os.ReadFile(path)
		if rerr != nil {
			logger.Warn("skipping unreadable document", zap.String("path", path), zap.Error(rerr))
			return nil
		}
		docs = append(docs, Document{Path: rel, Text: string(content)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return docs, nil
}
