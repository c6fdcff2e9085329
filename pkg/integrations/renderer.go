package integrations

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultWidth is used when the caller has no terminal geometry.
	DefaultWidth = 80
	// CellAspect is the width/height ratio of a terminal glyph cell.
	CellAspect = 0.5
	// maxPixels bounds the work done for a single page.
	maxPixels = 64 << 20
	// identityMaxHeight is the tallest image drawn one cell per pixel when
	// it fits the width. Halving shorter images would drop whole pixel rows.
	identityMaxHeight = 3
)

// DecodeError is returned when the page bytes are not a supported image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode image: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// Sampling selects how source pixels are reduced to one cell.
type Sampling int

const (
	// SampleAverage averages every pixel covered by a cell.
	SampleAverage Sampling = iota
	// SampleNearest picks one pixel per cell.
	SampleNearest
)

// Profile fixes the character ramp and the sampling used for a render.
// Ramps go from sparse (bright) to dense (dark) and must be ASCII.
type Profile struct {
	Name     string
	Ramp     string
	Sampling Sampling
	Contrast float64 // 1.0 = no change
}

var (
	ProfileLow    = Profile{Name: "low", Ramp: " .:*#", Sampling: SampleNearest, Contrast: 1.2}
	ProfileMedium = Profile{Name: "medium", Ramp: " .:-=+*#%@", Sampling: SampleAverage, Contrast: 1.0}
	ProfileHigh   = Profile{
		Name:     "high",
		Ramp:     " .'`^\",:;Il!i~+_-?][}{1)(|\\/tfjrxnuvczXYUJCLQ0OZmwqpdbkhao*#MW&8%B@$",
		Sampling: SampleAverage,
		Contrast: 1.0,
	}
)

// ProfileByName resolves low, medium or high.
func ProfileByName(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "low":
		return ProfileLow, nil
	case "", "medium":
		return ProfileMedium, nil
	case "high":
		return ProfileHigh, nil
	}
	return Profile{}, fmt.Errorf("unknown render profile %q", name)
}

func (p Profile) validate() error {
	if len(p.Ramp) < 2 {
		return fmt.Errorf("profile %q: ramp needs at least two characters", p.Name)
	}
	for i := 0; i < len(p.Ramp); i++ {
		if p.Ramp[i] < 0x20 || p.Ramp[i] > 0x7e {
			return fmt.Errorf("profile %q: ramp must be printable ASCII", p.Name)
		}
	}
	return nil
}

// Frame is one rendered page. Every row has exactly Width characters.
type Frame struct {
	Rows   []string
	Width  int
	Height int
}

func (f Frame) String() string {
	return strings.Join(f.Rows, "\n")
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithMaxRows caps the frame height, shrinking the width to keep the aspect
// ratio. Zero disables the cap.
func WithMaxRows(rows int) RendererOption {
	return func(r *Renderer) { r.maxRows = rows }
}

// WithCellAspect overrides the glyph width/height ratio.
func WithCellAspect(aspect float64) RendererOption {
	return func(r *Renderer) {
		if aspect > 0 {
			r.cellAspect = aspect
		}
	}
}

// Renderer turns page images into grayscale text frames. It holds no state
// between calls and is safe for concurrent use.
type Renderer struct {
	cellAspect float64
	maxRows    int
}

// NewRenderer creates a renderer with the given options.
func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{cellAspect: CellAspect}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render decodes data and draws it at most width columns wide. The same
// bytes, width and profile always produce the same frame.
func (r *Renderer) Render(data []byte, width int, profile Profile) (Frame, error) {
	if err := profile.validate(); err != nil {
		return Frame{}, err
	}
	if width <= 0 {
		width = DefaultWidth
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Frame{}, &DecodeError{Err: fmt.Errorf("empty image %dx%d", cfg.Width, cfg.Height)}
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return Frame{}, &DecodeError{Err: fmt.Errorf("image too large: %dx%d", cfg.Width, cfg.Height)}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, &DecodeError{Err: err}
	}

	bounds := img.Bounds()
	cols, rows := r.gridSize(bounds.Dx(), bounds.Dy(), width)

	var cells []uint8
	if profile.Sampling == SampleNearest {
		cells = sampleNearest(img, cols, rows)
	} else {
		cells = sampleAverage(img, cols, rows)
	}

	return buildFrame(cells, cols, rows, profile), nil
}

// gridSize picks the frame dimensions. Wide images are scaled to width,
// narrower ones keep one column per pixel. The glyph aspect correction is
// applied to the height except for tiny images that fit, which are drawn
// one cell per pixel.
func (r *Renderer) gridSize(imgW, imgH, width int) (cols, rows int) {
	cols = min(imgW, width)
	if imgW <= width && imgH <= identityMaxHeight {
		rows = imgH
	} else {
		rows = int(math.Round(float64(imgH) * float64(cols) / float64(imgW) * r.cellAspect))
		if rows > imgH {
			rows = imgH
		}
		if rows < 1 {
			rows = 1
		}
	}

	if r.maxRows > 0 && rows > r.maxRows {
		cols = int(math.Round(float64(cols) * float64(r.maxRows) / float64(rows)))
		if cols < 1 {
			cols = 1
		}
		rows = r.maxRows
	}
	return cols, rows
}

// sampleNearest scales the image onto a white grayscale canvas of one pixel
// per cell.
func sampleNearest(img image.Image, cols, rows int) []uint8 {
	dst := image.NewGray(image.Rect(0, 0, cols, rows))
	for i := range dst.Pix {
		dst.Pix[i] = 0xff
	}
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst.Pix
}

// sampleAverage walks every source pixel once and averages the luminance of
// the pixels falling in each cell.
func sampleAverage(img image.Image, cols, rows int) []uint8 {
	bounds := img.Bounds()
	imgW, imgH := bounds.Dx(), bounds.Dy()

	sums := make([]uint64, cols*rows)
	counts := make([]uint32, cols*rows)

	colOf := make([]int, imgW)
	for x := range colOf {
		colOf[x] = x * cols / imgW
	}

	line := make([]uint8, imgW)
	readRow := rowReader(img)
	for y := 0; y < imgH; y++ {
		readRow(bounds.Min.Y+y, line)
		base := (y * rows / imgH) * cols
		for x, lum := range line {
			cell := base + colOf[x]
			sums[cell] += uint64(lum)
			counts[cell]++
		}
	}

	cells := make([]uint8, cols*rows)
	for i := range cells {
		if counts[i] == 0 {
			cells[i] = 0xff
			continue
		}
		cells[i] = uint8((sums[i] + uint64(counts[i])/2) / uint64(counts[i]))
	}
	return cells
}

// rowReader returns a function filling dst with the luminance of row y. The
// common decoder outputs are read straight from their pixel buffers;
// transparent pixels are composited onto white.
func rowReader(img image.Image) func(y int, dst []uint8) {
	b := img.Bounds()

	switch src := img.(type) {
	case *image.Gray:
		return func(y int, dst []uint8) {
			off := src.PixOffset(b.Min.X, y)
			copy(dst, src.Pix[off:off+len(dst)])
		}
	case *image.YCbCr:
		return func(y int, dst []uint8) {
			for x := range dst {
				dst[x] = src.Y[src.YOffset(b.Min.X+x, y)]
			}
		}
	case *image.NRGBA:
		return func(y int, dst []uint8) {
			off := src.PixOffset(b.Min.X, y)
			for x := range dst {
				p := src.Pix[off+4*x : off+4*x+4 : off+4*x+4]
				a := uint32(p[3])
				r := (uint32(p[0])*a + 0xff*(0xff-a)) / 0xff
				g := (uint32(p[1])*a + 0xff*(0xff-a)) / 0xff
				bl := (uint32(p[2])*a + 0xff*(0xff-a)) / 0xff
				dst[x] = luma(r, g, bl)
			}
		}
	case *image.RGBA:
		return func(y int, dst []uint8) {
			off := src.PixOffset(b.Min.X, y)
			for x := range dst {
				p := src.Pix[off+4*x : off+4*x+4 : off+4*x+4]
				white := 0xff - uint32(p[3])
				dst[x] = luma(uint32(p[0])+white, uint32(p[1])+white, uint32(p[2])+white)
			}
		}
	case *image.Paletted:
		table := make([]uint8, len(src.Palette))
		for i, c := range src.Palette {
			table[i] = colorLuma(c)
		}
		return func(y int, dst []uint8) {
			off := src.PixOffset(b.Min.X, y)
			for x := range dst {
				idx := int(src.Pix[off+x])
				if idx < len(table) {
					dst[x] = table[idx]
				} else {
					dst[x] = 0
				}
			}
		}
	}

	return func(y int, dst []uint8) {
		for x := range dst {
			dst[x] = colorLuma(img.At(b.Min.X+x, y))
		}
	}
}

// colorLuma converts any color, composited onto white, to 8-bit luminance.
func colorLuma(c color.Color) uint8 {
	r, g, b, a := c.RGBA()
	white := 0xffff - a
	return luma((r+white)>>8, (g+white)>>8, (b+white)>>8)
}

// luma is the Rec. 601 luminance of 8-bit channels.
func luma(r, g, b uint32) uint8 {
	y := (299*r + 587*g + 114*b + 500) / 1000
	if y > 0xff {
		y = 0xff
	}
	return uint8(y)
}

// adjustContrast stretches a luminance value around middle gray.
func adjustContrast(value uint8, factor float64) uint8 {
	if factor == 1.0 || factor <= 0 {
		return value
	}
	adjusted := (float64(value)-128)*factor + 128
	if adjusted < 0 {
		return 0
	}
	if adjusted > 255 {
		return 255
	}
	return uint8(math.Round(adjusted))
}

func buildFrame(cells []uint8, cols, rows int, profile Profile) Frame {
	ramp := profile.Ramp
	last := len(ramp) - 1

	var lut [256]byte
	for v := 0; v < 256; v++ {
		lum := int(adjustContrast(uint8(v), profile.Contrast))
		lut[v] = ramp[((255-lum)*last+127)/255]
	}

	frame := Frame{Rows: make([]string, rows), Width: cols, Height: rows}
	line := make([]byte, cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			line[x] = lut[cells[y*cols+x]]
		}
		frame.Rows[y] = string(line)
	}
	return frame
}
