package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ignisattend/ignis/internal/attend"
	"github.com/ignisattend/ignis/internal/config"
	"github.com/ignisattend/ignis/internal/gallery"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <directory>",
	Short: "Bulk-enroll student face captures from a directory",
	Long: `Enroll face captures for many students at once.

The directory must contain one subdirectory per student ID, each holding
image files named after the capture view (front.jpg, left.jpg, right.jpg).
Each capture goes through the same quality gates as the API: face
detection, blur filtering and liveness (when enabled). Re-running the
command replaces previously stored views.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Float64("blur-threshold", 0, "Override the blur threshold (0 = use configured default)")
	enrollCmd.Flags().Bool("continue-on-error", true, "Keep enrolling after individual capture failures")
}

// enrollCapture is one (student, view, file) unit of work discovered on disk.
type enrollCapture struct {
	studentID string
	viewType  string
	path      string
}

// collectCaptures walks the enrollment directory and returns every
// student/view image found. Files whose basename is not a known view are
// skipped with a warning rather than failing the whole run.
func collectCaptures(root string) ([]enrollCapture, error) {
	students, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading enrollment directory: %w", err)
	}

	var captures []enrollCapture
	for _, s := range students {
		if !s.IsDir() {
			continue
		}
		studentID := s.Name()
		files, err := os.ReadDir(filepath.Join(root, studentID))
		if err != nil {
			return nil, fmt.Errorf("reading student directory %s: %w", studentID, err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			view := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
			if !gallery.ValidView(view) {
				fmt.Printf("Warning: skipping %s/%s (unknown view %q)\n", studentID, f.Name(), view)
				continue
			}
			captures = append(captures, enrollCapture{
				studentID: studentID,
				viewType:  view,
				path:      filepath.Join(root, studentID, f.Name()),
			})
		}
	}
	return captures, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	blurThreshold := mustGetFloat64(cmd, "blur-threshold")
	continueOnError := mustGetBool(cmd, "continue-on-error")

	captures, err := collectCaptures(args[0])
	if err != nil {
		return err
	}
	if len(captures) == 0 {
		fmt.Println("No captures found, nothing to do")
		return nil
	}

	service, pool, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	bar := progressbar.NewOptions(len(captures),
		progressbar.OptionSetDescription("Enrolling captures"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("captures"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var stored, failed int
	var failures []string
	completed := make(map[string]bool)
	for _, capture := range captures {
		data, err := os.ReadFile(capture.path)
		if err == nil {
			var res *attend.EnrollResult
			res, err = service.AddEmbedding(ctx, attend.EnrollRequest{
				StudentID:     capture.studentID,
				ViewType:      capture.viewType,
				Image:         data,
				BlurThreshold: blurThreshold,
			})
			if err == nil {
				stored++
				if res.Completed {
					completed[capture.studentID] = true
				}
			}
		}
		if err != nil {
			failed++
			failures = append(failures, fmt.Sprintf("%s/%s: %v", capture.studentID, capture.viewType, err))
			if !continueOnError {
				_ = bar.Finish()
				fmt.Println()
				return fmt.Errorf("enrolling %s/%s: %w", capture.studentID, capture.viewType, err)
			}
		}
		_ = bar.Add(1)
	}
	fmt.Println()

	fmt.Printf("Stored %d captures (%d failed), %d students fully set up\n", stored, failed, len(completed))
	for _, f := range failures {
		fmt.Printf("  failed: %s\n", f)
	}
	if failed > 0 {
		return fmt.Errorf("%d captures failed", failed)
	}
	return nil
}
