package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <face-image>",
	Short: "Match a face crop against the roster",
	Long: `Match a single face crop against the trained roster and print the best
candidate. Nothing is recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

type recognizeOutput struct {
	StudentID            string  `json:"student_id,omitempty"`
	StudentName          string  `json:"student_name,omitempty"`
	Confidence           float64 `json:"confidence"`
	Match                bool    `json:"match"`
	RequiresConfirmation bool    `json:"requires_confirmation"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	face, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading face image: %w", err)
	}

	ctx := context.Background()
	a, log, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	res := a.Recognizer.Recognize(ctx, face, a.Roster.Snapshot())
	out := recognizeOutput{
		Confidence:           res.Confidence,
		Match:                res.Match,
		RequiresConfirmation: res.RequiresConfirmation(),
	}
	if res.Student != nil {
		out.StudentID, out.StudentName = res.Student.ID, res.Student.Name
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(out)
	}
	switch {
	case out.StudentID == "":
		fmt.Println("No candidate found")
	case out.Match:
		fmt.Printf("Match: %s (%s), confidence %.1f\n", out.StudentName, out.StudentID, out.Confidence)
	case out.RequiresConfirmation:
		fmt.Printf("Needs confirmation: %s (%s), confidence %.1f\n", out.StudentName, out.StudentID, out.Confidence)
	default:
		fmt.Printf("No match, best candidate %s (%s) at confidence %.1f\n", out.StudentName, out.StudentID, out.Confidence)
	}
	return nil
}
