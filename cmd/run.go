package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-triage/internal/config"
	"github.com/kozaktomas/face-triage/internal/facematch"
	"github.com/kozaktomas/face-triage/internal/triage"
	"github.com/kozaktomas/face-triage/internal/video"
)

var runCmd = &cobra.Command{
	Use:   "run [reference-image] [video-dir]",
	Short: "Triage a directory of videos against a reference face",
	Long: `Sample frames from every video in a directory and copy each video into the
matched or unmatched directory depending on whether the reference face was found.

Source videos are never modified. The CSV log is rewritten on every run.
Missing arguments are prompted for when running in a terminal.

Examples:
  # Compare against a reference photo, one frame per second
  face-triage run me.jpg ~/Videos/holiday

  # Sample every two seconds and use a stricter threshold
  face-triage run me.jpg ~/Videos --interval 2 --threshold 0.3

  # Use the embedding server instead of DeepFace, 4 videos at a time
  face-triage run me.jpg ~/Videos --verifier embedding --workers 4 --quiet`,
	Args: cobra.MaximumNArgs(2),
	RunE: runTriage,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("matched-dir", "", "Directory for videos containing the face")
	runCmd.Flags().String("unmatched-dir", "", "Directory for videos without the face")
	runCmd.Flags().String("log-file", "", "CSV log file")
	runCmd.Flags().Float64("interval", 0, "Seconds between sampled frames")
	runCmd.Flags().Int("workers", 0, "Number of videos processed in parallel")
	addVerifierFlags(runCmd)
	runCmd.Flags().BoolP("quiet", "q", false, "Show a progress bar instead of per-frame output")
}

func runTriage(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	reference, videoDir, err := resolveInputs(args, os.Stdin, os.Stdout, isTerminal(os.Stdin))
	if err != nil {
		return err
	}

	verifier, err := facematch.New(cfg.Verifier)
	if err != nil {
		return err
	}
	decoder := video.NewFFmpegDecoder(cfg.FFmpeg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Reference: %s\n", reference)
	fmt.Printf("Videos: %s\n", videoDir)
	fmt.Printf("Verifier: %s (model %s, detector %s, threshold %.2f)\n",
		cfg.Verifier.Backend, cfg.Triage.ModelName, cfg.Triage.DetectorBackend, cfg.Triage.Threshold)
	if cfg.Triage.Workers > 1 {
		fmt.Printf("Workers: %d\n", cfg.Triage.Workers)
	}
	fmt.Println()

	var opts []triage.Option
	var bar *progressbar.ProgressBar
	if mustGetBool(cmd, "quiet") {
		bar = newRunProgress(videoDir)
		if bar != nil {
			opts = append(opts, triage.WithProgress(func(triage.Result) { _ = bar.Add(1) }))
		}
	} else {
		opts = append(opts, triage.WithOutput(os.Stdout))
	}

	report, err := triage.New(cfg.Triage, decoder, verifier, opts...).Run(ctx, reference, videoDir)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("\nInterrupted, log not written.")
		}
		return err
	}

	printReport(report)

	if n := report.Count(triage.StatusRelocationFailed); n > 0 {
		return fmt.Errorf("%d video(s) could not be copied, see %s", n, report.LogFile)
	}
	return nil
}

// addVerifierFlags registers the flags shared by every command that talks to the verifier.
func addVerifierFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "Face recognition model name")
	cmd.Flags().String("detector", "", "Face detector backend")
	cmd.Flags().Float64("threshold", 0, "Maximum distance considered a match")
	cmd.Flags().Bool("align", true, "Align faces before comparison")
	cmd.Flags().String("verifier", "", "Verification backend: deepface, embedding")
	cmd.Flags().String("verifier-url", "", "Verification service URL")
}

// applyRunFlags overrides the loaded configuration with flags given on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	t := &cfg.Triage
	if flags.Changed("matched-dir") {
		t.MatchedDir = mustGetString(cmd, "matched-dir")
	}
	if flags.Changed("unmatched-dir") {
		t.UnmatchedDir = mustGetString(cmd, "unmatched-dir")
	}
	if flags.Changed("log-file") {
		t.LogFile = mustGetString(cmd, "log-file")
	}
	if flags.Changed("interval") {
		t.FrameIntervalSec = mustGetFloat64(cmd, "interval")
	}
	if flags.Changed("model") {
		t.ModelName = mustGetString(cmd, "model")
	}
	if flags.Changed("detector") {
		t.DetectorBackend = mustGetString(cmd, "detector")
	}
	if flags.Changed("threshold") {
		t.Threshold = mustGetFloat64(cmd, "threshold")
	}
	if flags.Changed("align") {
		t.Align = mustGetBool(cmd, "align")
	}
	if flags.Changed("workers") {
		t.Workers = mustGetInt(cmd, "workers")
	}
	if flags.Changed("verifier") {
		cfg.Verifier.Backend = mustGetString(cmd, "verifier")
	}
	if flags.Changed("verifier-url") {
		cfg.Verifier.URL = mustGetString(cmd, "verifier-url")
	}
}

// newRunProgress returns nil when stderr is not a terminal or the directory cannot be listed.
func newRunProgress(videoDir string) *progressbar.ProgressBar {
	if !isTerminal(os.Stderr) {
		return nil
	}
	files, err := triage.Enumerate(videoDir)
	if err != nil {
		return nil
	}
	return progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Scanning videos"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("videos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func printReport(report *triage.Report) {
	fmt.Println()
	fmt.Println(renderTable(
		[]string{"Video", "Match", "Min distance", "Frames", "Result"},
		reportRows(report),
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	fmt.Printf("\nVideos: %d, matched: %d, skipped: %d, copy failed: %d\n",
		report.Videos(), report.Matched(), report.Count(triage.StatusSkipped), report.Count(triage.StatusRelocationFailed))
	fmt.Printf("Elapsed: %s\n", report.Elapsed.Round(100*time.Millisecond))
	fmt.Printf("Log: %s\n", report.LogFile)
}

func reportRows(report *triage.Report) [][]string {
	rows := make([][]string, 0, len(report.Results))
	for _, r := range report.Results {
		if !r.Logged() {
			rows = append(rows, []string{r.Video, "-", "-", "-", "skipped: " + r.Reason})
			continue
		}
		outcome := filepath.Dir(r.Destination)
		if r.Status == triage.StatusRelocationFailed {
			outcome = "copy failed: " + r.Reason
		}
		rows = append(rows, []string{r.Video, r.MatchLabel(), r.MinDistanceLabel(), strconv.Itoa(r.FramesChecked), outcome})
	}
	return rows
}
