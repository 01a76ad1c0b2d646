package imaging

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// sampleValues holds every 8-bit sample value, index == value.
var sampleValues = func() (v [256]float64) {
	for i := range v {
		v[i] = float64(i)
	}
	return v
}()

// toRGBA copies img into an RGBA buffer anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// rgbStdDev is the population standard deviation over every R, G and B
// sample, computed from the weighted value histogram.
func rgbStdDev(img *image.RGBA) float64 {
	var counts [256]float64
	forEachRGB(img, func(r, g, b uint8) {
		counts[r]++
		counts[g]++
		counts[b]++
	})
	if floats.Sum(counts[:]) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(sampleValues[:], counts[:])
	return std
}

// histogramEntropy is the Shannon entropy in bits of the concatenated 3x256 channel histogram.
func histogramEntropy(img *image.RGBA) float64 {
	hist := make([]float64, 768)
	forEachRGB(img, func(r, g, b uint8) {
		hist[r]++
		hist[256+int(g)]++
		hist[512+int(b)]++
	})
	total := floats.Sum(hist)
	if total == 0 {
		return 0
	}
	floats.Scale(1/total, hist)
	return stat.Entropy(hist) / math.Ln2
}

// pixelationDiff is the mean absolute sample difference between img and its
// quarter-scale downsample rescaled back with nearest neighbour.
func pixelationDiff(img *image.RGBA) float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	sw, sh := w/4, h/4
	if sw < 1 || sh < 1 {
		return 0
	}

	small := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.CatmullRom.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	restored := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(restored, restored.Bounds(), small, small.Bounds(), draw.Src, nil)

	var sum float64
	for y := 0; y < h; y++ {
		a := img.Pix[y*img.Stride : y*img.Stride+w*4]
		b := restored.Pix[y*restored.Stride : y*restored.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			for c := 0; c < 3; c++ {
				sum += math.Abs(float64(a[x+c]) - float64(b[x+c]))
			}
		}
	}
	return sum / float64(w*h*3)
}

// grayFingerprint downsizes img to a size x size grayscale vector.
func grayFingerprint(img image.Image, size int) []float64 {
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	vec := make([]float64, 0, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			vec = append(vec, float64(dst.GrayAt(x, y).Y))
		}
	}
	return vec
}

// pearson returns the correlation coefficient of a and b, or ok=false when
// either vector has zero variance.
func pearson(a, b []float64) (corr float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	if stat.PopVariance(a, nil) == 0 || stat.PopVariance(b, nil) == 0 {
		return 0, false
	}
	return stat.Correlation(a, b, nil), true
}

func forEachRGB(img *image.RGBA, fn func(r, g, b uint8)) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			fn(row[x], row[x+1], row[x+2])
		}
	}
}
