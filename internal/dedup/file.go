package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ledgerFile is the on-disk shape of the file ledger.
type ledgerFile struct {
	SentHashes  []string  `json:"sent_hashes"`
	LastUpdated time.Time `json:"last_updated"`
	TotalSent   int       `json:"total_sent"`
}

// errCorrupt marks a ledger file that could not be parsed and was moved aside.
var errCorrupt = errors.New("ledger corrupt")

// FileStore keeps the ledger in a single JSON file. Commit rewrites the whole
// file, so it never writes before the existing file has been merged in.
type FileStore struct {
	path   string
	mu     sync.Mutex
	hashes map[string]struct{}
	loaded bool // on-disk hashes are in hashes
	now    func() time.Time
	read   func(string) ([]byte, error)
}

// NewFileStore creates a file-backed ledger at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		hashes: make(map[string]struct{}),
		now:    time.Now,
		read:   os.ReadFile,
	}
}

// Check fails with ErrLedgerUnusable when the path cannot hold a ledger.
func (f *FileStore) Check(ctx context.Context) error {
	info, err := os.Stat(f.path)
	if err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrLedgerUnusable, f.path)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: stat %s: %v", ErrLedgerUnusable, f.path, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrLedgerUnusable, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-check-*")
	if err != nil {
		return fmt.Errorf("%w: %s not writable: %v", ErrLedgerUnusable, dir, err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	_ = os.Remove(name)
	return nil
}

// Load reads the ledger. A missing file is an empty ledger. A corrupt file is
// moved aside to <path>.corrupt-<unix> and reported as an error.
func (f *FileStore) Load(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mergeFromDisk()
}

// mergeFromDisk adds the file's hashes to f.hashes. Callers hold f.mu.
func (f *FileStore) mergeFromDisk() ([]string, error) {
	data, err := f.read(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.loaded = true
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var lf ledgerFile
	if err := json.Unmarshal(data, &lf); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", f.path, f.now().Unix())
		if mvErr := os.Rename(f.path, aside); mvErr != nil {
			return nil, fmt.Errorf("parse ledger: %w (move aside: %v)", err, mvErr)
		}
		f.loaded = true
		return nil, fmt.Errorf("%w, moved to %s: %v", errCorrupt, aside, err)
	}

	for _, h := range lf.SentHashes {
		f.hashes[h] = struct{}{}
	}
	f.loaded = true
	return lf.SentHashes, nil
}

// Commit adds hashes and rewrites the file atomically. When the file was
// never read successfully it is read first; if it still cannot be read the
// commit fails rather than replace a ledger it cannot see.
func (f *FileStore) Commit(ctx context.Context, hashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.loaded {
		if _, err := f.mergeFromDisk(); err != nil && !errors.Is(err, errCorrupt) {
			return fmt.Errorf("refusing to overwrite ledger: %w", err)
		}
	}

	for _, h := range hashes {
		f.hashes[h] = struct{}{}
	}

	all := make([]string, 0, len(f.hashes))
	for h := range f.hashes {
		all = append(all, h)
	}
	sort.Strings(all)

	data, err := json.MarshalIndent(ledgerFile{
		SentHashes:  all,
		LastUpdated: f.now().UTC(),
		TotalSent:   len(all),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
