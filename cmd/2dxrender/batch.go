package main

import (
	"fmt"

	"github.com/hannahherbig/2dxrender/internal/batch"
	"github.com/hannahherbig/2dxrender/internal/render"
	"github.com/spf13/cobra"
)

var (
	batchCfg  = defaults
	batchOpts batch.Options
)

func init() {
	rootCmd.AddCommand(batchCmd)

	fs := batchCmd.Flags()
	fs.StringVar(&batchOpts.SongsDir, "songs-folder", "", "folder of numbered song folders")
	fs.StringVar(&batchOpts.OutputDir, "output-folder", "renders", "output folder")
	fs.StringVar(&batchOpts.MusicDBPath, "music-database-file", "music_data.bin", "music database used for names and tags")
	fs.IntSliceVar(&batchOpts.Charts, "charts", []int{2}, "charts to render for each song")
	fs.IntVar(&batchOpts.Threads, "threads", 4, "songs rendered at once")
	fs.StringVar(&batchOpts.Album, "id3-album", "", "album tag")
	fs.StringVar(&batchOpts.AlbumArtist, "id3-album-artist", "", "album artist tag")
	fs.StringVar(&batchOpts.Year, "id3-year", "", "year tag")
	addMixFlags(fs, &batchCfg)

	batchCmd.MarkFlagRequired("songs-folder")
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Render every song in a songs folder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		batchCfg.LogLevel = logLevel
		runner := batch.NewRunner(batchCfg, batchOpts, render.New(loggers), loggers.NewLogger("batch"))
		sum, err := runner.Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rendered %d, skipped %d, failed %d\n", sum.Rendered, sum.Skipped, sum.Failed)
		return nil
	},
}
