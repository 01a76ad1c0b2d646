package vision

import "image"

// Regions returns the bounding boxes of 8-connected edge components in scan
// order of their first pixel.
func Regions(edges *EdgeMap) []image.Rectangle {
	w, h := edges.Width, edges.Height
	visited := make([]bool, w*h)
	var boxes []image.Rectangle
	stack := make([]int, 0, 1024)

	for start := range edges.Pix {
		if !edges.Pix[start] || visited[start] {
			continue
		}

		minX, minY := start%w, start/w
		maxX, maxY := minX, minY
		visited[start] = true
		stack = append(stack[:0], start)

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w

			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					j := ny*w + nx
					if edges.Pix[j] && !visited[j] {
						visited[j] = true
						stack = append(stack, j)
					}
				}
			}
		}

		boxes = append(boxes, image.Rect(minX, minY, maxX+1, maxY+1))
	}

	return boxes
}

// Outermost drops boxes enclosed by another box, keeping only outer shapes.
func Outermost(boxes []image.Rectangle) []image.Rectangle {
	out := make([]image.Rectangle, 0, len(boxes))
	for i, b := range boxes {
		enclosed := false
		for j, other := range boxes {
			if i == j || !b.In(other) {
				continue
			}
			// identical boxes: keep the first one only
			if b == other && i < j {
				continue
			}
			enclosed = true
			break
		}
		if !enclosed {
			out = append(out, b)
		}
	}
	return out
}

// LargerThan keeps boxes strictly wider than minW and taller than minH.
func LargerThan(boxes []image.Rectangle, minW, minH int) []image.Rectangle {
	var out []image.Rectangle
	for _, b := range boxes {
		if b.Dx() > minW && b.Dy() > minH {
			out = append(out, b)
		}
	}
	return out
}
