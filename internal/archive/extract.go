package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hannahherbig/2dxrender/internal/binfmt"
	"github.com/mitchellh/go-homedir"
	"github.com/pion/logging"
)

// Options controls where extracted entries live.
type Options struct {
	InMemory bool   // keep entries in memory instead of writing them out
	TempDir  string // parent for the extraction directory; os.TempDir() if empty
}

// Extractor builds Stores from archives and folders.
type Extractor struct {
	opts Options
	log  logging.LeveledLogger
}

// NewExtractor creates an extractor.
func NewExtractor(opts Options, log logging.LeveledLogger) *Extractor {
	return &Extractor{opts: opts, log: log}
}

// Extract builds a Store from a directory, an S3P archive or a 2DX archive.
// When clapSound is non-empty it is appended as the final entry; a missing
// clap file is logged and leaves the store without a clap index.
func (x *Extractor) Extract(path, clapSound string) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open sample source: %w", err)
	}

	var store *Store
	if info.IsDir() {
		store, err = x.fromDir(path)
	} else {
		store, err = x.fromArchive(path)
	}
	if err != nil {
		return nil, err
	}

	if clapSound != "" {
		if err := x.addClap(store, clapSound); err != nil {
			var missing *ResourceMissingError
			if !errors.As(err, &missing) {
				store.Close()
				return nil, err
			}
			x.log.Warnf("couldn't find clap file %q, assist clap disabled", missing.Path)
		}
	}

	x.log.Infof("sample store ready: %d entries from %s", store.Len(), path)
	return store, nil
}

func (x *Extractor) addClap(store *Store, clapSound string) error {
	p, err := homedir.Expand(clapSound)
	if err != nil {
		return &ResourceMissingError{Path: clapSound}
	}
	return store.appendClap(p, x.opts.InMemory)
}

func (x *Extractor) fromDir(dir string) (*Store, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read sample folder: %w", err)
	}
	// os.ReadDir returns entries sorted by file name.
	var entries []Entry
	for _, f := range files {
		if !f.Type().IsRegular() {
			continue
		}
		entries = append(entries, Entry{
			Name:  f.Name(),
			Path:  filepath.Join(dir, f.Name()),
			Codec: CodecFor(f.Name()),
		})
	}
	if x.opts.InMemory {
		for i := range entries {
			data, err := os.ReadFile(entries[i].Path)
			if err != nil {
				return nil, fmt.Errorf("read sample: %w", err)
			}
			entries[i].Path, entries[i].Data = "", data
		}
	}
	x.log.Debugf("using %d files from folder %s", len(entries), dir)
	return newStore(entries, ""), nil
}

func (x *Extractor) fromArchive(path string) (*Store, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	c := binfmt.NewCursor(path, buf)

	var raw []rawEntry
	if len(buf) >= 4 && string(buf[:4]) == magicS3P {
		x.log.Debugf("%s: S3P archive", path)
		raw, err = readS3P(c)
	} else {
		x.log.Debugf("%s: trying 2DX layout", path)
		raw, err = read2DX(c)
	}
	if err != nil {
		return nil, err
	}

	if x.opts.InMemory {
		entries := make([]Entry, len(raw))
		for i, r := range raw {
			entries[i] = Entry{Name: r.name, Data: r.data, Codec: r.codec}
		}
		return newStore(entries, ""), nil
	}
	return x.writeOut(raw)
}

// writeOut writes extracted entries into a fresh directory owned by the
// returned Store. The directory is removed if any write fails.
func (x *Extractor) writeOut(raw []rawEntry) (*Store, error) {
	root := x.opts.TempDir
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "2dxrender-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction dir: %w", err)
	}

	entries := make([]Entry, len(raw))
	for i, r := range raw {
		p := filepath.Join(dir, r.name)
		if err := os.WriteFile(p, r.data, 0o644); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("write extracted sample: %w", err)
		}
		entries[i] = Entry{Name: r.name, Path: p, Codec: r.codec}
	}
	x.log.Debugf("extracted %d entries to %s", len(entries), dir)
	return newStore(entries, dir), nil
}
