package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-triage/internal/config"
	"github.com/kozaktomas/face-triage/internal/facematch"
	"github.com/kozaktomas/face-triage/internal/fingerprint"
	"github.com/kozaktomas/face-triage/internal/triage"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <reference-image> <image>",
	Short: "Compare the reference face against a single image",
	Long: `Send one verification request and print the distance and verdict.
Useful for choosing a threshold and checking that the verification service is reachable.

Examples:
  face-triage verify me.jpg frame.png
  face-triage verify me.jpg group.jpg --verifier embedding --threshold 0.5`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	addVerifierFlags(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	for _, path := range args {
		info, err := fingerprint.InspectImage(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s %dx%d\n", path, info.Format, info.Width, info.Height)
	}

	verifier, err := facematch.New(cfg.Verifier)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := verifier.Verify(ctx, facematch.Request{
		ReferencePath: args[0],
		CandidatePath: args[1],
		Model:         cfg.Triage.ModelName,
		Detector:      cfg.Triage.DetectorBackend,
		Align:         cfg.Triage.Align,
	})
	o := triage.Judge(res, err, cfg.Triage.Threshold)
	if o.Err != nil {
		return fmt.Errorf("verification failed: %w", o.Err)
	}

	fmt.Printf("Backend: %s\n", cfg.Verifier.Backend)
	if res.Model != "" {
		fmt.Printf("Model: %s\n", res.Model)
	}
	if res.Faces >= 0 {
		fmt.Printf("Faces in image: %d\n", res.Faces)
	}
	switch {
	case o.NoFace:
		fmt.Println("No face detected.")
	case !res.HasDistance:
		fmt.Printf("Distance: not reported, assuming %.4f\n", o.Distance)
	default:
		fmt.Printf("Distance: %.4f (threshold %.2f)\n", o.Distance, cfg.Triage.Threshold)
	}
	fmt.Printf("Verified: %v\n", o.Verified)
	return nil
}
