package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-tracker/internal/facematch"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the recognizer on every enrolled student",
	Long: `Train the active recognizer on the enrollment images of every student,
persist the resulting representations and rebuild the student index.

Examples:
  # Train with a progress bar
  attendance-tracker train

  # Print the training report as JSON
  attendance-tracker train --json`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().Bool("json", false, "Output the training report as JSON")
}

func runTrain(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()

	a, log, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		fmt.Printf("Training %s recognizer on %d students\n\n", a.Recognizer.Kind(), a.Roster.Len())
		bar = progressbar.NewOptions(a.Roster.Len(),
			progressbar.OptionSetDescription("Training"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("students"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	res, err := a.Trainer.Train(ctx, func(facematch.StudentTraining) {
		if bar != nil {
			_ = bar.Add(1)
		}
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	if jsonOutput {
		return outputJSON(res)
	}
	if res.Err != "" {
		return fmt.Errorf("training failed: %s", res.Err)
	}

	fmt.Printf("Trained:       %d\n", res.Trained())
	fmt.Printf("Skipped:       %d (no enrollment images)\n", res.Skipped())
	fmt.Printf("Failed images: %d\n", res.FailedImages())
	if len(res.Duplicates) > 0 {
		fmt.Println("\nPossible double enrollments:")
		for _, d := range res.Duplicates {
			fmt.Printf("  %s <-> %s (distance %.3f)\n", d.A, d.B, d.Distance)
		}
	}
	return nil
}
