package demoserver

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/defectscan/defectscan-go/internal/errors"
)

// renderReport builds the PDF report for the given defects. Images are loaded
// from imageRoot; a missing or unreadable image skips the picture but keeps
// the entry.
func renderReport(defects []Defect, imageRoot string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("House Defect Report", false)

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "House Defect Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 8, fmt.Sprintf("Generated %s, %d defect(s)",
		time.Now().Format("2006-01-02 15:04"), len(defects)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	for i := range defects {
		defect := &defects[i]

		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, fmt.Sprintf("%d. %s", i+1, defect.Caption), "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "", 10)
		room := defect.Room
		if room == "" {
			room = "Unknown"
		}
		severity := defect.Severity
		if severity == "" {
			severity = "Low"
		}
		pdf.CellFormat(0, 6, fmt.Sprintf("Room: %s   Severity: %s   Confidence: %.0f%%",
			room, severity, defect.Confidence*100), "", 1, "L", false, 0, "")

		if defect.ImagePath != "" {
			imagePath := filepath.Join(imageRoot, filepath.FromSlash(defect.ImagePath))
			if format, ok := embeddableImage(imagePath); ok {
				pdf.ImageOptions(imagePath, pdf.GetX(), pdf.GetY(), 80, 0, true,
					fpdf.ImageOptions{ImageType: format, ReadDpi: true}, 0, "")
			} else {
				logger.Warn("Report image missing or unreadable, skipping picture", "path", imagePath)
			}
		}
		pdf.Ln(6)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Newf("failed to render report PDF: %w", err).
			Category(errors.CategoryReport).
			Component("demoserver").
			Build()
	}
	return buf.Bytes(), nil
}

// embeddableImage reports whether the file holds an image fpdf can embed, and
// in which format. A corrupt upload must not sink the whole report.
func embeddableImage(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer func() { _ = f.Close() }()

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", false
	}
	switch format {
	case "jpeg", "png", "gif":
		return format, true
	}
	return "", false
}
