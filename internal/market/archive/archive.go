// Package archive keeps the verbatim upstream payload of each successful
// extraction so a run can be replayed or debugged later.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Sink persists one raw payload per successful extraction.
type Sink interface {
	Save(fetchedAt time.Time, payload []byte) (string, error)
}

// Dir writes payloads to markets_YYYYMMDD_HHMMSS.json files in a directory.
type Dir struct {
	dir string
}

// NewDir returns a Sink rooted at dir. The directory is created on first write.
func NewDir(dir string) *Dir {
	if dir == "" {
		dir = "data_raw"
	}
	return &Dir{dir: dir}
}

// Save writes payload as-is. Two saves within the same second get a numeric
// suffix instead of overwriting each other.
func (d *Dir) Save(fetchedAt time.Time, payload []byte) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("archive: create dir: %w", err)
	}

	base := "markets_" + fetchedAt.UTC().Format("20060102_150405")
	path := filepath.Join(d.dir, base+".json")
	for i := 1; ; i++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			path = filepath.Join(d.dir, fmt.Sprintf("%s_%d.json", base, i))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("archive: open %s: %w", path, err)
		}
		if _, err := f.Write(payload); err != nil {
			f.Close()
			return "", fmt.Errorf("archive: write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("archive: close %s: %w", path, err)
		}
		return path, nil
	}
}

// Discard drops payloads; used when archiving is disabled.
type Discard struct{}

func (Discard) Save(time.Time, []byte) (string, error) { return "", nil }
