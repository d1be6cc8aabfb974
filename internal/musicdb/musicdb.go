// Package musicdb reads song metadata from a game music database
// (music_data.bin).
package musicdb

import (
	"fmt"
	"os"
	"strings"

	"github.com/hannahherbig/2dxrender/internal/binfmt"
	"golang.org/x/text/encoding/japanese"
)

const (
	magic = "IIDX"

	// Version19 is the only supported record layout.
	Version19    = 0x19
	recordSize19 = 0x340

	unusedID = 0xFFFF
)

// Song is one database record.
type Song struct {
	ID           int
	Title        string
	TitleASCII   string
	Genre        string
	Artist       string
	GameVersion  int
	Difficulties [8]uint8
	Volume       int
	BGAFilename  string
	BGADelay     int
}

// Database is a parsed music database.
type Database struct {
	Version uint32
	Songs   []Song
	byID    map[int]int
}

// New builds a database from records, as if they had been parsed.
func New(songs ...Song) *Database {
	db := &Database{Version: Version19, byID: make(map[int]int, len(songs))}
	for _, s := range songs {
		db.add(s)
	}
	return db
}

func (db *Database) add(s Song) {
	if _, dup := db.byID[s.ID]; !dup {
		db.byID[s.ID] = len(db.Songs)
	}
	db.Songs = append(db.Songs, s)
}

// Song returns the record for a song id.
func (db *Database) Song(id int) (Song, bool) {
	i, ok := db.byID[id]
	if !ok {
		return Song{}, false
	}
	return db.Songs[i], true
}

// Read parses the database at path.
func Read(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("music database: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes a database image. The header is followed by an index table
// of total uint16 song ids and then by one record per available entry.
func Parse(path string, data []byte) (*Database, error) {
	c := binfmt.NewCursor(path, data)
	if err := c.Magic(magic); err != nil {
		return nil, err
	}
	version, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	available, err := c.Uint16()
	if err != nil {
		return nil, err
	}
	total, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	if _, err := c.Uint16(); err != nil {
		return nil, err
	}
	if version != Version19 {
		return nil, binfmt.Errorf(path, 4, "unsupported data version 0x%x", version)
	}
	if err := c.Seek(c.Pos() + int64(total)*2); err != nil {
		return nil, binfmt.Errorf(path, c.Pos(), "index table of %d entries runs past end of file", total)
	}

	db := &Database{Version: version, byID: make(map[int]int, available)}
	for i := 0; i < int(available); i++ {
		at := c.Pos()
		rec, err := c.Bytes(recordSize19)
		if err != nil {
			return nil, binfmt.Errorf(path, at, "record %d truncated", i)
		}
		song, err := parseRecord19(rec)
		if err != nil {
			return nil, binfmt.Errorf(path, at, "record %d: %v", i, err)
		}
		if song.ID == 0 || song.ID == unusedID {
			continue
		}
		db.add(song)
	}
	return db, nil
}

func parseRecord19(rec []byte) (Song, error) {
	r := binfmt.NewCursor("record", rec)
	var s Song
	var err error
	str := func(at, n int64) string {
		if err != nil {
			return ""
		}
		var v string
		v, err = shiftJIS(rec[at : at+n])
		return v
	}
	s.Title = str(0x00, 0x40)
	s.TitleASCII = str(0x40, 0x40)
	s.Genre = str(0x80, 0x40)
	s.Artist = str(0xC0, 0x40)
	s.BGAFilename = str(0x1DC, 0x20)
	if err != nil {
		return Song{}, err
	}

	r.Seek(0x118)
	gameVersion, _ := r.Uint16()
	s.GameVersion = int(gameVersion)
	copy(s.Difficulties[:], rec[0x120:0x128])

	r.Seek(0x1C8)
	id, _ := r.Uint32()
	volume, _ := r.Uint32()
	s.ID, s.Volume = int(id), int(volume)

	r.Seek(0x1D8)
	delay, _ := r.Int16()
	s.BGADelay = int(delay)
	return s, nil
}

func shiftJIS(b []byte) (string, error) {
	out, err := japanese.ShiftJIS.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return strings.Trim(string(out), "\x00"), nil
}
