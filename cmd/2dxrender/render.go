package main

import (
	"github.com/hannahherbig/2dxrender/internal/render"
	"github.com/spf13/cobra"
)

var (
	renderCfg = defaults
	renderJob render.Job
)

func init() {
	rootCmd.AddCommand(renderCmd)

	fs := renderCmd.Flags()
	fs.StringVarP(&renderJob.ChartPath, "input-chart", "i", "", "input .1 or .json chart")
	fs.StringVarP(&renderJob.SamplePath, "input-audio", "s", "", "input .s3p or .2dx archive, or a folder of samples")
	fs.StringVarP(&renderJob.OutputPath, "output", "o", "", "output file")
	fs.IntVarP(&renderCfg.ChartID, "chart", "c", renderCfg.ChartID, "chart to render (0-11)")
	addMixFlags(fs, &renderCfg)

	fs.StringVar(&renderCfg.Tags.Album, "id3-album", "", "album tag")
	fs.StringVar(&renderCfg.Tags.AlbumArtist, "id3-album-artist", "", "album artist tag")
	fs.StringVar(&renderCfg.Tags.Artist, "id3-artist", "", "artist tag")
	fs.StringVar(&renderCfg.Tags.Title, "id3-title", "", "title tag")
	fs.StringVar(&renderCfg.Tags.Year, "id3-year", "", "year tag")
	fs.StringVar(&renderCfg.Tags.Genre, "id3-genre", "", "genre tag")
	fs.StringVar(&renderCfg.Tags.Track, "id3-track", "", "track number tag")

	for _, name := range []string{"input-chart", "input-audio", "output"} {
		renderCmd.MarkFlagRequired(name)
	}
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render one chart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		renderCfg.LogLevel = logLevel
		return render.New(loggers).Render(cmd.Context(), renderCfg, renderJob)
	},
}
