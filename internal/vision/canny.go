package vision

import (
	"image"
	"image/draw"
)

// edge map values
const (
	none   uint8 = 0
	weak   uint8 = 1
	strong uint8 = 2
)

// EdgeMap is a binary edge raster, true where an edge pixel survived hysteresis.
type EdgeMap struct {
	Width, Height int
	Pix           []bool
}

func (m *EdgeMap) At(x, y int) bool {
	return m.Pix[y*m.Width+x]
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Canny runs Sobel gradients, non-maximum suppression and double-threshold
// hysteresis over a grayscale image. Gradient magnitude is |gx|+|gy|.
func Canny(gray *image.Gray, low, high int) *EdgeMap {
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	out := &EdgeMap{Width: w, Height: h, Pix: make([]bool, w*h)}
	if w < 3 || h < 3 {
		return out
	}

	mag := make([]int32, w*h)
	dir := make([]uint8, w*h)
	px := func(x, y int) int32 { return int32(gray.Pix[y*gray.Stride+x]) }

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -px(x-1, y-1) - 2*px(x-1, y) - px(x-1, y+1) +
				px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1)
			gy := -px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1) +
				px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1)

			i := y*w + x
			mag[i] = abs32(gx) + abs32(gy)
			dir[i] = quantizeDirection(gx, gy)
		}
	}

	state := make([]uint8, w*h)
	stack := make([]int, 0, 1024)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= int32(low) {
				continue
			}

			var a, b int32
			switch dir[i] {
			case 0:
				a, b = mag[i-1], mag[i+1]
			case 1:
				a, b = mag[i-w+1], mag[i+w-1]
			case 2:
				a, b = mag[i-w], mag[i+w]
			default:
				a, b = mag[i-w-1], mag[i+w+1]
			}
			if m < a || m <= b {
				continue
			}

			if m > int32(high) {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	// grow strong edges through connected weak pixels
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.Pix[i] = true

		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	return out
}

// quantizeDirection maps the gradient angle to 0 (horizontal), 1 (45°),
// 2 (vertical) or 3 (135°) in image coordinates.
func quantizeDirection(gx, gy int32) uint8 {
	ax, ay := abs32(gx), abs32(gy)
	// tan(22.5°) ~ 0.4142, tan(67.5°) ~ 2.4142, scaled by 10000
	switch {
	case ay*10000 <= ax*4142:
		return 0
	case ay*10000 >= ax*24142:
		return 2
	case (gx > 0) == (gy > 0):
		return 3
	default:
		return 1
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
