// Package export は予定のドキュメント出力（PDF / JPG）を提供する。
// 入力は解決・認可済みの予定のみで、所有権の判定はここでは行わない。
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/hitoshi/planman/internal/model"
)

// timeLayout は出力に使う時刻表記。
const timeLayout = "2006-01-02 15:04"

// RenderPDF は予定をPDFドキュメントとしてレンダリングし、バイト列を返す。
func RenderPDF(plan *model.Plan) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, "Plan", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, plan.Title, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 8, "Start: "+formatTime(plan.Start), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, "End:   "+formatTime(plan.End), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, "Created: "+plan.CreatedAt.Format(timeLayout), "", 1, "L", false, 0, "")

	if plan.Detail != nil && plan.Detail.Content != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Notes", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, plan.Detail.Content, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// formatTime は未設定（nil）の時刻を "-" として表記する。
func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timeLayout)
}
