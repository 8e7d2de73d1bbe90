package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-tracker/internal/database"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Manage enrolled students",
}

var rosterListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List students, optionally filtered by name",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRosterList,
}

var rosterImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import students from the campus registrar",
	Long: `Import student identities from the registrar database configured by
REGISTRAR_DATABASE_URL. Existing students are renamed but keep their
enrollment images and trained representation.`,
	RunE: runRosterImport,
}

var rosterEnrollCmd = &cobra.Command{
	Use:   "enroll <student-id> <image>...",
	Short: "Replace a student's enrollment images",
	Long: `Replace a student's enrollment images with the given files. Near-identical
images are dropped. Run "train" afterwards.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRosterEnroll,
}

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.AddCommand(rosterListCmd, rosterImportCmd, rosterEnrollCmd)

	rosterListCmd.Flags().String("course", "", "Only students of this course")
	rosterImportCmd.Flags().String("course", "", "Only students of this course")
	rosterImportCmd.Flags().Bool("dry-run", false, "Print what would be imported")
}

func runRosterList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, log, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	var query string
	if len(args) == 1 {
		query = args[0]
	}
	students := a.Roster.Search(query, mustGetString(cmd, "course"))
	for _, s := range students {
		images, trained := 0, "untrained"
		if rep := s.Representation(); rep != nil {
			images = rep.ImageCount()
			if t := rep.TrainedAt(); !t.IsZero() {
				trained = "trained " + t.Format("2006-01-02 15:04")
			}
		}
		fmt.Printf("%-16s  %-32s  %-10s  %2d images  %s\n", s.ID, s.Name, s.Course, images, trained)
	}
	fmt.Printf("\n%d students\n", len(students))
	return nil
}

func runRosterImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, log, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	if a.Stores.Registrar == nil {
		return errors.New("registrar is not configured or unreachable (REGISTRAR_DATABASE_URL)")
	}
	students, err := a.Stores.Registrar.ListRegistrarStudents(ctx, mustGetString(cmd, "course"))
	if err != nil {
		return fmt.Errorf("reading registrar: %w", err)
	}

	dryRun := mustGetBool(cmd, "dry-run")
	var imported, failed int
	for _, rs := range students {
		if dryRun {
			fmt.Printf("would import %s %s (%s)\n", rs.ID, rs.Name, rs.Course)
			continue
		}
		if _, err := a.Trainer.Register(ctx, database.StoredStudent{
			ID:     rs.ID,
			Name:   rs.Name,
			Course: rs.Course,
			Email:  rs.Email,
		}); err != nil {
			log.Warn("failed to import student", "student", rs.ID, "error", err)
			failed++
			continue
		}
		imported++
	}

	if !dryRun {
		fmt.Printf("Imported %d students (%d failed)\n", imported, failed)
	}
	return nil
}

func runRosterEnroll(cmd *cobra.Command, args []string) error {
	images := make([][]byte, 0, len(args)-1)
	for _, path := range args[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		images = append(images, data)
	}

	ctx := context.Background()
	a, log, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	res, err := a.Trainer.Enroll(ctx, args[0], images)
	if err != nil {
		return err
	}
	fmt.Printf("Stored %d images for %s (%d duplicates dropped)\n", res.Stored, res.StudentID, res.Dropped)
	return nil
}
