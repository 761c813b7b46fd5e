package prune

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/semvault/semvault/internal/index"
)

// LoadVocabulary reads a target vocabulary file, one word per line,
// case-folded. Blank lines are skipped.
func LoadVocabulary(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if word != "" {
			vocab[word] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan vocabulary: %w", err)
	}
	return vocab, nil
}

// ScanVault walks a document directory and unions the tokens of every
// text document into a target vocabulary, using the same exclusion
// matcher semantics as index builds.
func ScanVault(root string, excludedPatterns []string, logger *zap.Logger) (map[string]bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	docs, err := index.LoadDocuments(root, excludedPatterns, logger)
	if err != nil {
		return nil, err
	}
	vocab := make(map[string]bool)
	for _, doc := range docs {
		for _, tok := range index.Tokenize(doc.Text) {
			vocab[tok] = true
		}
	}
	logger.Info("scanned vault vocabulary",
		zap.String("root", root),
		zap.Int("documents", len(docs)),
		zap.Int("words", len(vocab)))
	return vocab, nil
}
