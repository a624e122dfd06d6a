package cook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zeusync/prefab/internal/core/codec"
	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/observability/log"
	"github.com/zeusync/prefab/internal/core/prefab"
	"github.com/zeusync/prefab/internal/core/registry"
)

var (
	ErrNotFound     = errors.New("prefab not found")
	ErrLoadFailed   = errors.New("prefab load failed")
	ErrLoadTimeout  = errors.New("prefab did not load within the poll limit")
	ErrIDMismatch   = errors.New("loaded prefab has a different id")
	ErrUnknownAsset = errors.New("unknown asset handle")
)

type LoadStatus uint8

const (
	NotRequested LoadStatus = iota
	Loading
	Loaded
	Failed
)

func (s LoadStatus) String() string {
	switch s {
	case NotRequested:
		return "not_requested"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Handle identifies one reference taken on an asset.
type Handle uint64

// AssetLoader is the asset system the cooker pulls prefab bytes from. Loading
// makes progress only while Poll is called.
type AssetLoader interface {
	AddRef(id models.PrefabUUID) Handle
	LoadStatus(h Handle) LoadStatus
	Poll()
	Data(h Handle) ([]byte, error)
	Release(h Handle)
}

// Source hands out decoded prefabs. Implementations used by CookMany must be
// safe for concurrent use.
type Source interface {
	Load(id models.PrefabUUID) (*prefab.Prefab, error)
}

// MapSource serves prefabs that are already in memory.
type MapSource map[models.PrefabUUID]*prefab.Prefab

func (m MapSource) Load(id models.PrefabUUID) (*prefab.Prefab, error) {
	p, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// PollingSource loads prefab bytes through an AssetLoader, polling it until
// the asset is ready, then decodes them. The format is detected from the
// payload.
type PollingSource struct {
	loader   AssetLoader
	reg      *registry.Registry
	maxPolls int
	logger   log.Log
	mu       sync.Mutex
}

// NewPollingSource returns a source over loader. maxPolls bounds the poll
// loop of a single load; zero means unbounded.
func NewPollingSource(loader AssetLoader, reg *registry.Registry, maxPolls int, logger log.Log) *PollingSource {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PollingSource{
		loader:   loader,
		reg:      reg,
		maxPolls: maxPolls,
		logger:   logger.Named("source"),
	}
}

func (s *PollingSource) Load(id models.PrefabUUID) (*prefab.Prefab, error) {
	data, err := s.fetch(id)
	if err != nil {
		return nil, err
	}

	p, err := prefab.Decode(s.reg, codec.Detect(data), data)
	if err != nil {
		return nil, fmt.Errorf("decode prefab %s: %w", id, err)
	}
	if p.Meta.ID != id {
		return nil, fmt.Errorf("%w: requested %s, got %s", ErrIDMismatch, id, p.Meta.ID)
	}
	return p, nil
}

// fetch serializes access to the loader, which is not required to be
// thread-safe.
func (s *PollingSource) fetch(id models.PrefabUUID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.loader.AddRef(id)
	defer s.loader.Release(h)

	polls := 0
	for {
		switch s.loader.LoadStatus(h) {
		case Loaded:
			s.logger.Debug("prefab loaded", log.Stringer("prefab", id), log.Int("polls", polls))
			return s.loader.Data(h)
		case Failed:
			_, err := s.loader.Data(h)
			if err == nil {
				return nil, fmt.Errorf("%w: %s", ErrLoadFailed, id)
			}
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadFailed, id, err)
		}
		if s.maxPolls > 0 && polls >= s.maxPolls {
			return nil, fmt.Errorf("%w: %s after %d polls", ErrLoadTimeout, id, polls)
		}
		s.loader.Poll()
		polls++
	}
}

// DirLoader is an AssetLoader over a directory holding one file per prefab,
// named by its uuid with a format extension. Files are read on Poll.
type DirLoader struct {
	dir string

	mu     sync.Mutex
	next   Handle
	assets map[Handle]*dirAsset
}

type dirAsset struct {
	id     models.PrefabUUID
	status LoadStatus
	data   []byte
	err    error
}

func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{dir: dir, assets: make(map[Handle]*dirAsset)}
}

// List returns the ids of every prefab file in the directory, sorted.
func (l *DirLoader) List() ([]models.PrefabUUID, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	seen := make(map[models.PrefabUUID]struct{}, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		for _, kind := range []format.Kind{format.Text, format.Compact} {
			name, ok := strings.CutSuffix(entry.Name(), kind.Extension())
			if !ok {
				continue
			}
			id, err := models.Parse[models.PrefabUUID](name)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", entry.Name(), err)
			}
			seen[id] = struct{}{}
		}
	}
	return models.SortedKeys(seen), nil
}

func (l *DirLoader) AddRef(id models.PrefabUUID) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.assets[l.next] = &dirAsset{id: id, status: Loading}
	return l.next
}

func (l *DirLoader) LoadStatus(h Handle) LoadStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.assets[h]; ok {
		return a.status
	}
	return NotRequested
}

func (l *DirLoader) Poll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.assets {
		if a.status != Loading {
			continue
		}
		a.data, a.err = l.read(a.id)
		if a.err != nil {
			a.status = Failed
		} else {
			a.status = Loaded
		}
	}
}

func (l *DirLoader) read(id models.PrefabUUID) ([]byte, error) {
	for _, kind := range []format.Kind{format.Text, format.Compact} {
		data, err := os.ReadFile(filepath.Join(l.dir, id.String()+kind.Extension()))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, id, l.dir)
}

func (l *DirLoader) Data(h Handle) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.assets[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAsset, h)
	}
	if a.status != Loaded {
		if a.err != nil {
			return nil, a.err
		}
		return nil, fmt.Errorf("asset %s is %s", a.id, a.status)
	}
	return a.data, nil
}

func (l *DirLoader) Release(h Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.assets, h)
}
