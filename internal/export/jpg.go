package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/hitoshi/planman/internal/model"
)

const (
	jpgWidth  = 640
	jpgHeight = 360
)

// RenderJPG は予定をJPG画像としてレンダリングし、バイト列を返す。
func RenderJPG(plan *model.Plan) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, jpgWidth, jpgHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	lines := []string{
		"Plan: " + plan.Title,
		"Start: " + formatTime(plan.Start),
		"End:   " + formatTime(plan.End),
		"Created: " + plan.CreatedAt.Format(timeLayout),
	}
	if plan.Detail != nil && plan.Detail.Content != "" {
		lines = append(lines, "", plan.Detail.Content)
	}

	y := 40
	for _, line := range lines {
		drawLine(img, 20, y, line)
		y += 20
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode JPG: %w", err)
	}
	return buf.Bytes(), nil
}

// drawLine は固定幅フォントで1行のテキストを描画する。
func drawLine(img draw.Image, x, y int, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
