package stereo

import (
	"fmt"
	"image"
)

// BlockMatcherConfig mirrors the parameters of OpenCV's StereoBM.
type BlockMatcherConfig struct {
	MinDisparity     int
	NumDisparities   int  // search range, a positive multiple of 16
	BlockSize        int  // odd window edge, 5..255
	PreFilterCap     int  // clip for the x-Sobel prefilter, 1..63
	TextureThreshold int  // minimum summed prefiltered texture inside a window
	UniquenessRatio  int  // percent margin the best cost must win by
	SubPixel         bool // refine the winning disparity with a V-shaped fit
}

// DefaultBlockMatcherConfig returns StereoBM's defaults with 16 disparities and a 15 pixel block.
func DefaultBlockMatcherConfig() BlockMatcherConfig {
	return BlockMatcherConfig{
		MinDisparity:     0,
		NumDisparities:   16,
		BlockSize:        15,
		PreFilterCap:     31,
		TextureThreshold: 10,
		UniquenessRatio:  15,
		SubPixel:         true,
	}
}

func (c BlockMatcherConfig) Validate() error {
	if c.NumDisparities <= 0 || c.NumDisparities%16 != 0 {
		return fmt.Errorf("number of disparities must be a positive multiple of 16, got %d", c.NumDisparities)
	}
	if c.BlockSize < 5 || c.BlockSize > 255 || c.BlockSize%2 == 0 {
		return fmt.Errorf("block size must be odd and within 5..255, got %d", c.BlockSize)
	}
	if c.PreFilterCap < 1 || c.PreFilterCap > 63 {
		return fmt.Errorf("prefilter cap must be within 1..63, got %d", c.PreFilterCap)
	}
	if c.TextureThreshold < 0 {
		return fmt.Errorf("texture threshold must not be negative, got %d", c.TextureThreshold)
	}
	if c.UniquenessRatio < 0 {
		return fmt.Errorf("uniqueness ratio must not be negative, got %d", c.UniquenessRatio)
	}
	return nil
}

// BlockMatcher computes disparity between rectified grayscale images by comparing
// x-Sobel-prefiltered windows with the sum of absolute differences. A left pixel at x matches
// the right pixel at x-d.
type BlockMatcher struct {
	cfg BlockMatcherConfig
}

func NewBlockMatcher(cfg BlockMatcherConfig) (*BlockMatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BlockMatcher{cfg: cfg}, nil
}

// Invalid is the marker written for pixels without a reliable match.
func (m *BlockMatcher) Invalid() float32 {
	return float32(m.cfg.MinDisparity - 1)
}

func (m *BlockMatcher) Config() BlockMatcherConfig {
	return m.cfg
}

// Compute returns the disparity of left relative to right. Pixels too close to the border for a
// full window and search range, textureless windows and ambiguous matches are invalid.
func (m *BlockMatcher) Compute(left, right *image.Gray) (*DisparityFrame, error) {
	if err := checkSameSize(left, right); err != nil {
		return nil, err
	}

	size := left.Bounds().Size()
	width, height := size.X, size.Y
	out := NewDisparityFrame(width, height, m.Invalid())

	half := m.cfg.BlockSize / 2
	numD := m.cfg.NumDisparities
	minD := m.cfg.MinDisparity
	maxD := minD + numD

	// Every window column must have a partner in the right image for the whole search range.
	xStart := half + maxD - 1
	xEnd := width - half
	if minD < 0 {
		xEnd += minD
	}
	if xStart >= xEnd || height < m.cfg.BlockSize {
		return out, nil
	}

	lf := prefilterXSobel(left, m.cfg.PreFilterCap)
	rf := prefilterXSobel(right, m.cfg.PreFilterCap)
	center := int32(m.cfg.PreFilterCap)

	diff := func(x, y, d int) int32 {
		xr := x - d
		if xr < 0 || xr >= width {
			return 0
		}
		v := lf[y*width+x] - rf[y*width+xr]
		if v < 0 {
			return -v
		}
		return v
	}
	texture := func(x, y int) int32 {
		v := lf[y*width+x] - center
		if v < 0 {
			return -v
		}
		return v
	}

	// Column sums over the block height, per disparity, updated as the window slides down.
	colCost := make([][]int32, numD)
	for k := range colCost {
		colCost[k] = make([]int32, width)
	}
	colTexture := make([]int32, width)
	for y := 0; y < m.cfg.BlockSize; y++ {
		for x := 0; x < width; x++ {
			for k := 0; k < numD; k++ {
				colCost[k][x] += diff(x, y, minD+k)
			}
			colTexture[x] += texture(x, y)
		}
	}

	costs := make([]int32, numD)
	rowCost := make([][]int32, numD)
	for k := range rowCost {
		rowCost[k] = make([]int32, width)
	}
	rowTexture := make([]int32, width)

	for y := half; y < height-half; y++ {
		if y > half {
			add, drop := y+half, y-half-1
			for x := 0; x < width; x++ {
				for k := 0; k < numD; k++ {
					colCost[k][x] += diff(x, add, minD+k) - diff(x, drop, minD+k)
				}
				colTexture[x] += texture(x, add) - texture(x, drop)
			}
		}

		boxRow(colTexture, rowTexture, half)
		for k := 0; k < numD; k++ {
			boxRow(colCost[k], rowCost[k], half)
		}

		for x := xStart; x < xEnd; x++ {
			if rowTexture[x] < int32(m.cfg.TextureThreshold) {
				continue
			}
			for k := 0; k < numD; k++ {
				costs[k] = rowCost[k][x]
			}
			if d, ok := m.pick(costs); ok {
				out.Set(x, y, float32(minD)+d)
			}
		}
	}

	return out, nil
}

// pick selects the winning disparity offset from a cost column, applying the uniqueness test
// and optional sub-pixel refinement.
func (m *BlockMatcher) pick(costs []int32) (float32, bool) {
	best := 0
	for k := 1; k < len(costs); k++ {
		if costs[k] < costs[best] {
			best = k
		}
	}
	minCost := costs[best]

	if m.cfg.UniquenessRatio > 0 {
		thresh := minCost + minCost*int32(m.cfg.UniquenessRatio)/100
		for k, c := range costs {
			if (k < best-1 || k > best+1) && c <= thresh {
				return 0, false
			}
		}
	}

	d := float32(best)
	if !m.cfg.SubPixel {
		return d, true
	}

	prev, next := neighborCosts(costs, best)
	hi := prev
	if next > hi {
		hi = next
	}
	if denom := 2 * (hi - minCost); denom != 0 {
		d += float32(prev-next) / float32(denom)
	}
	return d, true
}

// neighborCosts returns the costs at best-1 and best+1, mirroring the existing neighbor at the
// ends of the range so the fit degenerates to no offset.
func neighborCosts(costs []int32, best int) (int32, int32) {
	var prev, next int32
	switch {
	case len(costs) == 1:
		return costs[0], costs[0]
	case best == 0:
		next = costs[1]
		prev = next
	case best == len(costs)-1:
		prev = costs[best-1]
		next = prev
	default:
		prev, next = costs[best-1], costs[best+1]
	}
	return prev, next
}

// boxRow writes the horizontal window sum of src into dst for every x with a full window.
func boxRow(src, dst []int32, half int) {
	width := len(src)
	if width < 2*half+1 {
		return
	}
	var s int32
	for x := 0; x <= 2*half; x++ {
		s += src[x]
	}
	dst[half] = s
	for x := half + 1; x < width-half; x++ {
		s += src[x+half] - src[x-half-1]
		dst[x] = s
	}
}

// prefilterXSobel applies OpenCV's StereoBM x-Sobel prefilter: the horizontal Sobel response
// clipped to [-cap, cap] and shifted to [0, 2*cap]. Borders replicate.
func prefilterXSobel(img *image.Gray, clip int) []int32 {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	out := make([]int32, width*height)

	at := func(x, y int) int32 {
		if x < 0 {
			x = 0
		} else if x >= width {
			x = width - 1
		}
		if y < 0 {
			y = 0
		} else if y >= height {
			y = height - 1
		}
		return int32(img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)])
	}

	c := int32(clip)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := 2*(at(x+1, y)-at(x-1, y)) + at(x+1, y-1) - at(x-1, y-1) + at(x+1, y+1) - at(x-1, y+1)
			if v < -c {
				v = -c
			} else if v > c {
				v = c
			}
			out[y*width+x] = v + c
		}
	}
	return out
}
