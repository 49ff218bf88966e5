package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-triage/internal/config"
	"github.com/kozaktomas/face-triage/internal/triage"
	"github.com/kozaktomas/face-triage/internal/video"
)

var probeCmd = &cobra.Command{
	Use:   "probe <video-dir>",
	Short: "Show how each video would be sampled",
	Long: `List the videos a run would pick up together with their frame rate, frame
count and the sampling stride derived from the configured interval.
No frames are decoded and no verification requests are made.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().Float64("interval", 0, "Seconds between sampled frames")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("interval") {
		cfg.Triage.FrameIntervalSec = mustGetFloat64(cmd, "interval")
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	files, err := triage.Enumerate(args[0])
	if err != nil {
		return fmt.Errorf("failed to list videos: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No videos found.")
		return nil
	}

	ctx := context.Background()
	rows := make([][]string, 0, len(files))
	failed := 0
	for _, f := range files {
		info, err := video.Probe(ctx, cfg.FFmpeg.FFprobePath, f.Path)
		if err != nil {
			failed++
			rows = append(rows, []string{f.Name, "-", "-", "-", "-", "-", "error: " + err.Error()})
			continue
		}
		fps := triage.NormalizeFPS(info.FPS)
		note := ""
		if fps != info.FPS {
			note = "frame rate unknown, assuming " + strconv.FormatFloat(triage.DefaultFPS, 'f', 0, 64)
		}
		samples := "-"
		stride := triage.Stride(fps, cfg.Triage.FrameIntervalSec)
		if info.FrameCount > 0 {
			samples = strconv.Itoa((info.FrameCount + stride - 1) / stride)
		}
		rows = append(rows, []string{
			f.Name,
			fmt.Sprintf("%s %dx%d", info.Codec, info.Width, info.Height),
			strconv.FormatFloat(fps, 'f', 2, 64),
			strconv.Itoa(info.FrameCount),
			strconv.Itoa(stride),
			samples,
			note,
		})
	}

	fmt.Println(renderTable(
		[]string{"Video", "Stream", "FPS", "Frames", "Stride", "Samples", "Note"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))
	fmt.Printf("\nVideos: %d, unreadable: %d\n", len(files), failed)
	return nil
}
