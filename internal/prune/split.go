package prune

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SplitFile splits a large embedding table into numbered chunk files of
// linesPerChunk lines each, named `<base>_part_<n>.txt` next to the input.
// Returns the chunk file paths in order.
func SplitFile(inputPath string, linesPerChunk int) ([]string, error) {
	if linesPerChunk <= 0 {
		return nil, fmt.Errorf("lines per chunk must be positive, got %d", linesPerChunk)
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))

	var (
		parts   []string
		out     *os.File
		w       *bufio.Writer
		lineNum int
	)
	closeCurrent := func() error {
		if w == nil {
			return nil
		}
		if err := w.Flush(); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if lineNum%linesPerChunk == 0 {
			if err := closeCurrent(); err != nil {
				return parts, fmt.Errorf("close chunk: %w", err)
			}
			name := fmt.Sprintf("%s_part_%d.txt", base, len(parts)+1)
			out, err = os.Create(name)
			if err != nil {
				return parts, fmt.Errorf("create chunk %s: %w", name, err)
			}
			w = bufio.NewWriter(out)
			parts = append(parts, name)
		}
		w.WriteString(scanner.Text())
		w.WriteByte('\n')
		lineNum++
	}
	if err := scanner.Err(); err != nil {
		closeCurrent()
		return parts, fmt.Errorf("scan input: %w", err)
	}
	if err := closeCurrent(); err != nil {
		return parts, fmt.Errorf("close chunk: %w", err)
	}
	return parts, nil
}
