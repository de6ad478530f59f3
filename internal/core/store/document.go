package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/riftproxy/riftproxy/internal/core"
)

// Document file names inside the store directory.
const (
	SummonersFile = "summoners.json"
	VersionsFile  = "versions.json"
	ChampionsFile = "champions.json"
)

// DocumentStore persists each entity set as one JSON document on disk.
type DocumentStore struct {
	dir string
	mu  sync.Mutex
}

type summonersDocument struct {
	Summoners []core.Summoner `json:"summoners"`
}

// OpenDocumentStore prepares dir for use as a document store.
func OpenDocumentStore(dir string) (*DocumentStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("store directory is required")
	}

	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &DocumentStore{dir: dir}, nil
}

// Dir returns the directory holding the documents.
func (d *DocumentStore) Dir() string {
	return d.dir
}

// LoadSummoners reads summoners.json. A missing file yields no summoners.
func (d *DocumentStore) LoadSummoners(ctx context.Context) ([]core.Summoner, error) {
	var doc summonersDocument
	found, err := d.read(SummonersFile, &doc)
	if err != nil || !found {
		return nil, err
	}
	return doc.Summoners, nil
}

// SaveSummoners writes summoners.json.
func (d *DocumentStore) SaveSummoners(ctx context.Context, summoners []core.Summoner) error {
	if summoners == nil {
		summoners = []core.Summoner{}
	}
	return d.write(SummonersFile, summonersDocument{Summoners: summoners})
}

// LoadStaticVersion reads versions.json. A missing file yields a zero version.
func (d *DocumentStore) LoadStaticVersion(ctx context.Context) (core.StaticVersion, error) {
	var version core.StaticVersion
	if _, err := d.read(VersionsFile, &version); err != nil {
		return core.StaticVersion{}, err
	}
	return version, nil
}

// SaveStaticVersion writes versions.json.
func (d *DocumentStore) SaveStaticVersion(ctx context.Context, version core.StaticVersion) error {
	return d.write(VersionsFile, version)
}

// LoadCatalog reads champions.json. A missing file yields an empty catalog.
func (d *DocumentStore) LoadCatalog(ctx context.Context) (core.ChampionCatalog, error) {
	var catalog core.ChampionCatalog
	if _, err := d.read(ChampionsFile, &catalog); err != nil {
		return core.ChampionCatalog{}, err
	}
	if catalog.Data == nil {
		catalog.Data = map[string]core.ChampionEntry{}
	}
	return catalog, nil
}

// SaveCatalog writes champions.json.
func (d *DocumentStore) SaveCatalog(ctx context.Context, catalog core.ChampionCatalog) error {
	if catalog.Data == nil {
		catalog.Data = map[string]core.ChampionEntry{}
	}
	return d.write(ChampionsFile, catalog)
}

// Close is a no-op; documents are written synchronously.
func (d *DocumentStore) Close() error {
	return nil
}

func (d *DocumentStore) read(name string, into any) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := filepath.Join(d.dir, name)
	// #nosec G304 -- path is built from the configured store directory
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// write replaces the document atomically via a temp file and rename.
func (d *DocumentStore) write(name string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	data = append(data, '\n')

	d.mu.Lock()
	defer d.mu.Unlock()

	tmp, err := os.CreateTemp(d.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(d.dir, name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
