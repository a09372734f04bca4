package cloud

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"stereo-mapper/internal/stereo"
)

// MaskMode selects which disparity pixels become points.
type MaskMode string

const (
	// MaskRelativeMin keeps pixels whose disparity is strictly greater than the smallest value
	// in the frame. A constant frame yields no points.
	MaskRelativeMin MaskMode = "relative-min"
	// MaskSentinel keeps pixels whose disparity is finite and differs from the frame's invalid
	// marker.
	MaskSentinel MaskMode = "sentinel"
)

// ParseMaskMode accepts the mode names case-insensitively.
func ParseMaskMode(s string) (MaskMode, error) {
	switch MaskMode(strings.ToLower(strings.TrimSpace(s))) {
	case MaskRelativeMin, "":
		return MaskRelativeMin, nil
	case MaskSentinel:
		return MaskSentinel, nil
	default:
		return "", fmt.Errorf("unknown mask mode %q (want %q or %q)", s, MaskRelativeMin, MaskSentinel)
	}
}

// Point is one colored vertex in the left rectified camera frame.
type Point struct {
	Position r3.Vector
	Color    color.RGBA
}

// PointCloud is rebuilt from scratch for every frame.
type PointCloud struct {
	Points []Point
}

func (pc *PointCloud) Len() int {
	if pc == nil {
		return 0
	}
	return len(pc.Points)
}

// Bounds returns the axis-aligned box of the finite points. ok is false when there are none.
func (pc *PointCloud) Bounds() (lo, hi r3.Vector, ok bool) {
	for _, p := range pc.Points {
		v := p.Position
		if math.IsNaN(v.X+v.Y+v.Z) || math.IsInf(v.X+v.Y+v.Z, 0) {
			continue
		}
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		lo = r3.Vector{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vector{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
	}
	return lo, hi, ok
}

// Keep reports whether pixel (x, y) of disp passes the mask. minimum is the frame minimum,
// used only by MaskRelativeMin.
func (m MaskMode) Keep(disp *stereo.DisparityFrame, x, y int, minimum float32) bool {
	if m == MaskSentinel {
		return disp.Valid(x, y)
	}
	return disp.At(x, y) > minimum
}

// Reproject lifts every kept pixel of disp to 3D with the 4x4 disparity-to-depth matrix q and
// colors it from img at the same pixel. img must have the frame's size and is expected to be
// the left rectified image. Points are emitted in row-major pixel order. Pixels whose
// homogeneous w is zero produce non-finite coordinates and are kept, so the point count only
// depends on the mask.
func Reproject(disp *stereo.DisparityFrame, img image.Image, q mat.Matrix, mode MaskMode) (*PointCloud, error) {
	if disp == nil {
		return nil, fmt.Errorf("missing disparity frame")
	}
	if img == nil {
		return nil, fmt.Errorf("missing color image")
	}
	if r, c := q.Dims(); r != 4 || c != 4 {
		return nil, fmt.Errorf("disparity-to-depth matrix must be 4x4, got %dx%d", r, c)
	}
	b := img.Bounds()
	if b.Dx() != disp.Width || b.Dy() != disp.Height {
		return nil, fmt.Errorf("color image %v does not match disparity frame %dx%d", b.Size(), disp.Width, disp.Height)
	}
	switch mode {
	case MaskRelativeMin, MaskSentinel:
	default:
		return nil, fmt.Errorf("unknown mask mode %q", mode)
	}

	var qa [4][4]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			qa[i][j] = q.At(i, j)
		}
	}

	minimum, _ := disp.MinMax()
	pc := &PointCloud{}
	for y := 0; y < disp.Height; y++ {
		for x := 0; x < disp.Width; x++ {
			if !mode.Keep(disp, x, y, minimum) {
				continue
			}
			d := float64(disp.At(x, y))
			fx, fy := float64(x), float64(y)
			var h [4]float64
			for i := 0; i < 4; i++ {
				h[i] = qa[i][0]*fx + qa[i][1]*fy + qa[i][2]*d + qa[i][3]
			}
			pc.Points = append(pc.Points, Point{
				Position: r3.Vector{X: h[0] / h[3], Y: h[1] / h[3], Z: h[2] / h[3]},
				Color:    color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA),
			})
		}
	}
	return pc, nil
}
