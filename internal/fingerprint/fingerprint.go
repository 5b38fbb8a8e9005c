package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Algorithm selects how a perceptual hash is derived from an image.
type Algorithm string

const (
	Average    Algorithm = "average"    // pixel brighter than the mean of a size×size thumbnail
	Difference Algorithm = "difference" // pixel brighter than its right neighbour
	Perceptual Algorithm = "perceptual" // DCT coefficient above the median
)

// DefaultHashSize gives the 8×8 = 64 bit hashes used for near-duplicate detection.
const DefaultHashSize = 8

// Hash is a perceptual hash of Size×Size bits, packed most significant bit first.
type Hash struct {
	Size int
	Bits []uint64
}

// Len returns the number of bits in the hash.
func (h Hash) Len() int {
	return h.Size * h.Size
}

func (h Hash) set(i int) {
	h.Bits[i/64] |= 1 << (63 - uint(i%64))
}

// Bit reports whether bit i is set.
func (h Hash) Bit(i int) bool {
	return h.Bits[i/64]&(1<<(63-uint(i%64))) != 0
}

// String formats the hash as hex, 16 characters per 64-bit word.
func (h Hash) String() string {
	var buf bytes.Buffer
	for _, w := range h.Bits {
		fmt.Fprintf(&buf, "%016x", w)
	}
	return buf.String()
}

// Distance returns the Hamming distance to o. Hashes of different sizes are
// maximally distant.
func (h Hash) Distance(o Hash) int {
	if h.Size != o.Size {
		return max(h.Len(), o.Len())
	}
	distance := 0
	for i := range h.Bits {
		distance += HammingDistance(h.Bits[i], o.Bits[i])
	}
	return distance
}

func newHash(size int) Hash {
	return Hash{Size: size, Bits: make([]uint64, (size*size+63)/64)}
}

// HammingDistance computes the Hamming distance between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	xor := hash1 ^ hash2
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1 // Clear lowest set bit
	}
	return distance
}

// DiffLimit converts a similarity percentage into the largest Hamming distance that
// still counts as similar for hashes of hashSize×hashSize bits:
// round((1 - similarity/100) * hashSize²). Similarity is clamped to [0, 100].
func DiffLimit(similarity float64, hashSize int) int {
	similarity = min(max(similarity, 0), 100)
	return int(math.Round((1 - similarity/100) * float64(hashSize*hashSize)))
}

// Compute hashes img with the given algorithm and size.
func Compute(img image.Image, algo Algorithm, size int) (Hash, error) {
	if size < 2 {
		return Hash{}, fmt.Errorf("hash size must be at least 2, got %d", size)
	}
	switch algo {
	case Average, "":
		return computeAHash(img, size), nil
	case Difference:
		return computeDHash(img, size), nil
	case Perceptual:
		return computePHash(img, size), nil
	default:
		return Hash{}, fmt.Errorf("unknown hash algorithm %q", algo)
	}
}

// computeAHash computes an average hash over a size×size grayscale thumbnail.
func computeAHash(img image.Image, size int) Hash {
	gray := toGrayscale(resizeImage(img, size, size))

	var sum float64
	for x := range size {
		for y := range size {
			sum += gray[x][y]
		}
	}
	mean := sum / float64(size*size)

	hash := newHash(size)
	for y := range size {
		for x := range size {
			if gray[x][y] > mean {
				hash.set(y*size + x)
			}
		}
	}
	return hash
}

// computePHash computes a perceptual hash using DCT.
func computePHash(img image.Image, size int) Hash {
	// 1. Resize to 4*size for DCT processing
	resized := resizeImage(img, 4*size, 4*size)

	// 2. Convert to grayscale
	gray := toGrayscale(resized)

	// 3. Compute DCT (Discrete Cosine Transform)
	dct := computeDCT(gray)

	// 4. Extract top-left size×size DCT coefficients (low frequencies)
	//    excluding DC component (0,0)
	n := size * size
	lowFreq := make([]float64, 0, n)
	for u := range size {
		for v := range size {
			if u == 0 && v == 0 {
				continue // Skip DC component
			}
			lowFreq = append(lowFreq, dct[u][v])
		}
	}
	// Fill the slot left by the DC component with the next coefficient.
	lowFreq = append(lowFreq, dct[0][size])

	// 5. Compute median of the values
	median := computeMedian(lowFreq)

	// 6. Generate hash: 1 if value > median, 0 otherwise
	hash := newHash(size)
	for i := range n {
		if lowFreq[i] > median {
			hash.set(i)
		}
	}

	return hash
}

// computeDHash computes a difference hash.
func computeDHash(img image.Image, size int) Hash {
	// 1. Resize to (size+1)×size, we need size+1 columns for size differences
	resized := resizeImage(img, size+1, size)

	// 2. Convert to grayscale
	gray := toGrayscale(resized)

	// 3. Compare adjacent pixels horizontally
	hash := newHash(size)
	bit := 0
	for y := range size {
		for x := range size {
			if gray[x][y] > gray[x+1][y] {
				hash.set(bit)
			}
			bit++
		}
	}

	return hash
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// ResizeImage resizes an image to fit within maxSize while keeping aspect ratio.
// Returns JPEG-encoded bytes, or data unchanged when it already fits.
func ResizeImage(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Check if resizing is needed.
	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		return data, nil
	}

	// Calculate new dimensions.
	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
	}

	// Create resized image.
	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	// Encode as JPEG.
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray[x][y] = luma
		}
	}

	return gray
}

// computeDCT computes the Discrete Cosine Transform of a grayscale image.
func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)
	dct := make([][]float64, size)
	for i := range dct {
		dct[i] = make([]float64, size)
	}

	// Precompute cosine values for efficiency.
	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	// DCT-II formula.
	for u := range size {
		for v := range size {
			var sum float64
			for x := range size {
				for y := range size {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			dct[u][v] = sum
		}
	}

	return dct
}

// computeMedian returns the median value from a slice.
func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
