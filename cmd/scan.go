package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ignisattend/ignis/internal/config"
	"github.com/ignisattend/ignis/internal/faceengine"
	"github.com/ignisattend/ignis/internal/gallery"
	"github.com/ignisattend/ignis/internal/imaging"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Detect and identify faces in a photo without marking attendance",
	Long: `Run the recognition pipeline against a single photo and print each
detected face with its quality scores and best gallery match.

This is an offline diagnostic: it reads embeddings from EMBEDDINGS_DIR
directly and never touches the database or any session. Use the API's
scan endpoint to actually mark attendance.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Float64("threshold", 0, "Override the match threshold (0 = use configured default)")
	scanCmd.Flags().Int("top-k", 0, "Also print the K nearest gallery entries per face")
	scanCmd.Flags().Bool("json", false, "Output results as JSON")
}

// scanFace is one face's diagnostic report.
type scanFace struct {
	BBox       [4]int          `json:"bbox"`
	DetScore   float64         `json:"det_score"`
	BlurScore  float64         `json:"blur_score"`
	QualityOK  bool            `json:"quality_ok"`
	StudentID  string          `json:"student_id,omitempty"`
	Similarity float64         `json:"similarity,omitempty"`
	TopK       []gallery.Match `json:"top_k,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	threshold := mustGetFloat64(cmd, "threshold")
	if threshold <= 0 {
		threshold = cfg.Match.Threshold
	}
	topK := mustGetInt(cmd, "top-k")
	jsonOutput := mustGetBool(cmd, "json")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return err
	}

	engine, err := faceengine.Select(ctx, cfg.Face)
	if err != nil {
		return fmt.Errorf("selecting face engine: %w", err)
	}
	if err := cfg.CheckModelDim(engine.Embedder.Name(), engine.Embedder.Dim()); err != nil {
		return fmt.Errorf("face engine: %w", err)
	}

	snap, err := gallery.NewCache(gallery.NewStore(cfg.Storage.EmbeddingsDir)).Snapshot()
	if err != nil {
		return fmt.Errorf("loading gallery: %w", err)
	}

	detections, err := engine.Detector.Detect(ctx, &faceengine.Frame{Img: img, Raw: data})
	if err != nil {
		return fmt.Errorf("detecting faces: %w", err)
	}

	var faces []scanFace
	for _, det := range detections {
		face := scanFace{
			BBox:     [4]int{det.BBox.Min.X, det.BBox.Min.Y, det.BBox.Max.X, det.BBox.Max.Y},
			DetScore: det.Score,
		}
		crop, ok := imaging.CropPad(img, det.BBox, cfg.Face.CropPad)
		if ok {
			face.BlurScore = imaging.BlurScore(crop)
			face.QualityOK = det.Score >= cfg.Match.DetThreshold && face.BlurScore >= cfg.Match.BlurThreshold
		}
		if face.QualityOK && snap.Len() > 0 {
			embedding := det.Embedding
			if embedding == nil {
				embedding, err = engine.Embedder.Embed(ctx, crop)
				if err != nil {
					return fmt.Errorf("embedding face: %w", err)
				}
			}
			match, _, err := snap.Match(embedding, threshold)
			if err != nil {
				return err
			}
			if match != nil {
				face.StudentID = match.StudentID
				face.Similarity = match.Similarity
			}
			if topK > 0 {
				if face.TopK, err = snap.TopK(embedding, topK); err != nil {
					return err
				}
			}
		}
		faces = append(faces, face)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"detected_faces": len(faces),
			"gallery_size":   snap.Len(),
			"faces":          faces,
		})
	}

	fmt.Printf("Detected %d faces (gallery: %d embeddings)\n", len(faces), snap.Len())
	for i, f := range faces {
		fmt.Printf("  face %d: bbox=%v det=%.2f blur=%.1f", i+1, f.BBox, f.DetScore, f.BlurScore)
		switch {
		case !f.QualityOK:
			fmt.Printf(" (below quality gates)")
		case f.StudentID != "":
			fmt.Printf(" -> %s (%.4f)", f.StudentID, f.Similarity)
		default:
			fmt.Printf(" -> no match")
		}
		fmt.Println()
		for _, m := range f.TopK {
			fmt.Printf("      %s/%s %.4f\n", m.StudentID, m.ViewType, m.Similarity)
		}
	}
	return nil
}
