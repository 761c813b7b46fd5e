package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/semvault/semvault/internal/vector"
)

const (
	// IndexFile is the persisted item collection, a JSON array of
	// {file, text, embedding}.
	IndexFile = "index.json"
	// PrincipalFile is the sibling principal component, a bare JSON float
	// array, present only for SIF builds.
	PrincipalFile = "principal.json"
	// MetaFile records the build metadata used to reject stale or
	// mismatched index files on load.
	MetaFile = "index.meta.json"

	// storeVersion is bumped on any incompatible format change; older
	// persisted indexes fail closed and force a rebuild.
	storeVersion = 1
)

// meta is the schema tag for a persisted index.
type meta struct {
	Version   int       `json:"version"`
	Strategy  Strategy  `json:"strategy"`
	Dimension int       `json:"dimension"`
	BuiltAt   time.Time `json:"builtAt"`
}

// Store persists indexes under a data directory. The item collection and
// the principal component are replaced together: temp files are written
// first and renamed only after every piece has been produced, so a failed
// write never corrupts the previous build.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes the index atomically.
func (s *Store) Save(idx *Index) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	items := idx.Items
	if items == nil {
		items = []Item{}
	}
	itemData, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	metaData, err := json.Marshal(meta{
		Version:   storeVersion,
		Strategy:  idx.Strategy,
		Dimension: idx.Dimension,
		BuiltAt:   idx.BuiltAt,
	})
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	indexTmp := s.path(IndexFile) + ".tmp"
	metaTmp := s.path(MetaFile) + ".tmp"
	if err := os.WriteFile(indexTmp, itemData, 0644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.WriteFile(metaTmp, metaData, 0644); err != nil {
		os.Remove(indexTmp)
		return fmt.Errorf("write meta: %w", err)
	}

	var principalTmp string
	if idx.Principal != nil {
		pcData, err := json.Marshal([]float64(idx.Principal))
		if err != nil {
			os.Remove(indexTmp)
			os.Remove(metaTmp)
			return fmt.Errorf("marshal principal component: %w", err)
		}
		principalTmp = s.path(PrincipalFile) + ".tmp"
		if err := os.WriteFile(principalTmp, pcData, 0644); err != nil {
			os.Remove(indexTmp)
			os.Remove(metaTmp)
			return fmt.Errorf("write principal component: %w", err)
		}
	}

	// All pieces written; commit by rename so the pair always reflects
	// the same build.
	if err := os.Rename(indexTmp, s.path(IndexFile)); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	if principalTmp != "" {
		if err := os.Rename(principalTmp, s.path(PrincipalFile)); err != nil {
			return fmt.Errorf("replace principal component: %w", err)
		}
	} else {
		os.Remove(s.path(PrincipalFile))
	}
	if err := os.Rename(metaTmp, s.path(MetaFile)); err != nil {
		return fmt.Errorf("replace meta: %w", err)
	}
	return nil
}

// Load reads the persisted index. A missing index yields (nil, nil).
// A version or schema mismatch fails closed with an error so a stale
// format is rebuilt rather than silently misparsed.
func (s *Store) Load() (*Index, error) {
	itemData, err := os.ReadFile(s.path(IndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(itemData, &items); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}

	var m meta
	metaData, err := os.ReadFile(s.path(MetaFile))
	if err != nil {
		return nil, fmt.Errorf("read index meta: %w", err)
	}
	if err := json.Unmarshal(metaData, &m); err != nil {
		return nil, fmt.Errorf("parse index meta: %w", err)
	}
	if m.Version != storeVersion {
		return nil, fmt.Errorf("index version %d is not supported (want %d); rebuild the index", m.Version, storeVersion)
	}
	for i, it := range items {
		if len(it.Embedding) != m.Dimension {
			return nil, fmt.Errorf("index item %d has dimension %d, meta says %d", i, len(it.Embedding), m.Dimension)
		}
	}

	idx := &Index{
		Items:     items,
		Strategy:  m.Strategy,
		Dimension: m.Dimension,
		BuiltAt:   m.BuiltAt,
	}

	pcData, err := os.ReadFile(s.path(PrincipalFile))
	switch {
	case err == nil:
		var pc []float64
		if err := json.Unmarshal(pcData, &pc); err != nil {
			return nil, fmt.Errorf("parse principal component: %w", err)
		}
		if len(pc) != m.Dimension {
			return nil, fmt.Errorf("principal component has dimension %d, meta says %d", len(pc), m.Dimension)
		}
		idx.Principal = vector.Vector(pc)
	case os.IsNotExist(err):
		// No component stored; non-SIF build or fewer than 2 vectors.
	default:
		return nil, fmt.Errorf("read principal component: %w", err)
	}

	return idx, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}
