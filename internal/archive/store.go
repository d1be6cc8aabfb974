// Package archive turns S3P/2DX sample containers or pre-extracted folders
// into an indexed Store of keysound resources.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NoSound is the reserved store index meaning "play nothing".
const NoSound = -1

// ErrSampleNotFound is wrapped by Lookup when no entry carries a sample id.
var ErrSampleNotFound = errors.New("sample not found")

// Codec identifies the encoding of an entry's bytes.
type Codec string

const (
	CodecWAV     Codec = "wav"
	CodecWMA     Codec = "wma"
	CodecMP3     Codec = "mp3"
	CodecOGG     Codec = "ogg"
	CodecUnknown Codec = "unknown"
)

// lookupExts are tried, in order, when resolving a numeric sample id.
var lookupExts = []string{".wav", ".wma", ".mp3", ".ogg"}

// CodecFor guesses the codec from a file name extension.
func CodecFor(name string) Codec {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".2dx":
		return CodecWAV
	case ".wma", ".s3v":
		return CodecWMA
	case ".mp3":
		return CodecMP3
	case ".ogg":
		return CodecOGG
	}
	return CodecUnknown
}

// Entry is one addressable resource. Exactly one of Path and Data is set.
type Entry struct {
	Name  string // base name, e.g. "0001.wav"
	Path  string
	Data  []byte
	Codec Codec
}

// Bytes returns the entry's raw bytes, reading them from disk if needed.
func (e Entry) Bytes() ([]byte, error) {
	if e.Data != nil {
		return e.Data, nil
	}
	return os.ReadFile(e.Path)
}

// ResourceMissingError reports an optional resource that could not be found.
// It is the one recoverable error in a render.
type ResourceMissingError struct {
	Path string
}

func (e *ResourceMissingError) Error() string {
	return fmt.Sprintf("resource %q not found", e.Path)
}

// Store is an ordered, read-only list of entries. Indices stay stable until
// Close.
type Store struct {
	entries   []Entry
	byName    map[string]int
	clapIndex int
	tempDir   string
}

func newStore(entries []Entry, tempDir string) *Store {
	s := &Store{
		entries:   entries,
		byName:    make(map[string]int, len(entries)),
		clapIndex: NoSound,
		tempDir:   tempDir,
	}
	for i, e := range entries {
		if _, dup := s.byName[e.Name]; !dup {
			s.byName[e.Name] = i
		}
	}
	return s
}

// Len returns the number of entries, including the assist clap if present.
func (s *Store) Len() int { return len(s.entries) }

// Entry returns the entry at index i.
func (s *Store) Entry(i int) Entry { return s.entries[i] }

// ClapIndex returns the assist clap's index, or NoSound.
func (s *Store) ClapIndex() int { return s.clapIndex }

// Lookup resolves a numeric sample id using the 4-digit naming convention
// shared by every container ("0001.wav", "0001.wma", ...). Id 0 means no
// sound. The assist clap is never returned.
func (s *Store) Lookup(id int) (int, error) {
	if id == 0 {
		return NoSound, nil
	}
	if id > 0 {
		for _, ext := range lookupExts {
			if i, ok := s.byName[fmt.Sprintf("%04d%s", id, ext)]; ok {
				return i, nil
			}
		}
	}
	return NoSound, fmt.Errorf("sample id %d: %w", id, ErrSampleNotFound)
}

// appendClap adds the assist clap resource as the final entry.
func (s *Store) appendClap(path string, inMemory bool) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return &ResourceMissingError{Path: path}
	}
	e := Entry{Name: filepath.Base(path), Path: path, Codec: CodecFor(path)}
	if inMemory {
		data, err := os.ReadFile(path)
		if err != nil {
			return &ResourceMissingError{Path: path}
		}
		e.Path, e.Data = "", data
	}
	s.clapIndex = len(s.entries)
	s.entries = append(s.entries, e)
	return nil
}

// Close releases the temporary extraction directory, if any. It is safe to
// call more than once.
func (s *Store) Close() error {
	if s.tempDir == "" {
		return nil
	}
	dir := s.tempDir
	s.tempDir = ""
	return os.RemoveAll(dir)
}
