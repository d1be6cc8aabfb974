// Package batch renders every song found in a songs folder.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/hannahherbig/2dxrender/internal/chart"
	"github.com/hannahherbig/2dxrender/internal/config"
	"github.com/hannahherbig/2dxrender/internal/musicdb"
	"github.com/hannahherbig/2dxrender/internal/render"
	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"
)

// ChartLabels names the chart selectors that batch mode renders.
var ChartLabels = map[int]string{
	0: "SP NORMAL",
	1: "SP HYPER",
	2: "SP ANOTHER",
	3: "SP BEGINNER",
	6: "DP NORMAL",
	7: "DP HYPER",
	8: "DP ANOTHER",
}

const invalidChars = `<>:;"\/|?*`

// Options configures a batch run.
type Options struct {
	SongsDir    string
	OutputDir   string
	MusicDBPath string
	Charts      []int
	Threads     int

	Album       string
	AlbumArtist string
	Year        string
}

// Summary counts the outcome of a batch run.
type Summary struct {
	Rendered int
	Skipped  int
	Failed   int
}

// Renderer renders one job; *render.Renderer implements it.
type Renderer interface {
	Render(ctx context.Context, cfg config.RenderConfig, job render.Job) error
}

// Runner renders songs concurrently. A failing song is logged and counted,
// never fatal.
type Runner struct {
	base     config.RenderConfig
	opts     Options
	renderer Renderer
	log      logging.LeveledLogger
}

// NewRunner creates a batch runner. base supplies every render setting
// except the chart selector and tags.
func NewRunner(base config.RenderConfig, opts Options, renderer Renderer, log logging.LeveledLogger) *Runner {
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	return &Runner{base: base, opts: opts, renderer: renderer, log: log}
}

// song is one numbered folder under the songs directory.
type song struct {
	id      int
	chart   string
	samples string
}

// Run renders every selected chart of every song.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if err := r.base.Validate(); err != nil {
		return Summary{}, err
	}
	format, _ := r.base.Format()
	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create output folder: %w", err)
	}
	db := r.loadDB()
	songs, err := r.findSongs()
	if err != nil {
		return Summary{}, err
	}
	r.log.Infof("found %d songs in %s", len(songs), r.opts.SongsDir)

	var rendered, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Threads)
	for _, s := range songs {
		g.Go(func() error {
			for _, id := range r.charts() {
				if err := gctx.Err(); err != nil {
					return err
				}
				cfg := r.base
				cfg.ChartID = id
				cfg.Tags = r.tags(s.id, db)
				out := filepath.Join(r.opts.OutputDir, outputName(s.id, id, db, format))

				err := r.renderer.Render(gctx, cfg, render.Job{ChartPath: s.chart, SamplePath: s.samples, OutputPath: out})
				var notFound *chart.ChartNotFoundError
				switch {
				case err == nil:
					rendered.Add(1)
					r.log.Infof("saved %s", out)
				case errors.As(err, &notFound):
					skipped.Add(1)
					r.log.Debugf("song %d has no chart %d", s.id, id)
				case errors.Is(err, context.Canceled):
					return err
				default:
					failed.Add(1)
					r.log.Errorf("song %d chart %d: %v", s.id, id, err)
				}
			}
			return nil
		})
	}
	err = g.Wait()
	sum := Summary{Rendered: int(rendered.Load()), Skipped: int(skipped.Load()), Failed: int(failed.Load())}
	return sum, err
}

// charts returns the selected chart ids that have a label, in order.
func (r *Runner) charts() []int {
	var ids []int
	for _, id := range r.opts.Charts {
		if _, ok := ChartLabels[id]; ok && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (r *Runner) loadDB() *musicdb.Database {
	if r.opts.MusicDBPath == "" {
		return nil
	}
	if _, err := os.Stat(r.opts.MusicDBPath); err != nil {
		r.log.Infof("no music database at %s, rendering without metadata", r.opts.MusicDBPath)
		return nil
	}
	db, err := musicdb.Read(r.opts.MusicDBPath)
	if err != nil {
		r.log.Warnf("music database unusable, rendering without metadata: %v", err)
		return nil
	}
	r.log.Infof("loaded %d songs from %s", len(db.Songs), r.opts.MusicDBPath)
	return db
}

// findSongs lists numbered song folders holding a chart and a sample
// source. Folders missing either are logged and left out.
func (r *Runner) findSongs() ([]song, error) {
	entries, err := os.ReadDir(r.opts.SongsDir)
	if err != nil {
		return nil, fmt.Errorf("read songs folder: %w", err)
	}
	var songs []song
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		dir := filepath.Join(r.opts.SongsDir, e.Name())
		s, ok := locate(dir, e.Name(), id)
		if !ok {
			r.log.Warnf("song %d: no chart or sample source in %s", id, dir)
			continue
		}
		songs = append(songs, s)
	}
	return songs, nil
}

func locate(dir, name string, id int) (song, bool) {
	s := song{id: id}
	for _, ext := range []string{".1", ".json"} {
		if p := filepath.Join(dir, name+ext); isFile(p) {
			s.chart = p
			break
		}
	}
	for _, p := range []string{name + ".s3p", name + ".2dx", name} {
		p = filepath.Join(dir, p)
		if _, err := os.Stat(p); err == nil {
			s.samples = p
			break
		}
	}
	return s, s.chart != "" && s.samples != ""
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func (r *Runner) tags(id int, db *musicdb.Database) config.Tags {
	t := config.Tags{
		Album:       r.opts.Album,
		AlbumArtist: r.opts.AlbumArtist,
		Year:        r.opts.Year,
		Track:       strconv.Itoa(id),
	}
	if db != nil {
		if s, ok := db.Song(id); ok {
			t.Title, t.Artist, t.Genre = s.Title, s.Artist, s.Genre
		}
	}
	return t
}

func outputName(songID, chartID int, db *musicdb.Database, format config.Format) string {
	label := ChartLabels[chartID]
	if db != nil {
		if s, ok := db.Song(songID); ok {
			return Sanitize(fmt.Sprintf("[%04d] %s - %s (%s)%s", songID, s.Artist, s.Title, label, format.Ext()))
		}
	}
	return Sanitize(fmt.Sprintf("%d (%s)%s", songID, label, format.Ext()))
}

// Sanitize replaces characters that are not allowed in file names with
// underscores.
func Sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidChars, r) {
			return '_'
		}
		return r
	}, name)
}
