package facematch

import "image"

// DifferenceHash computes a 64-bit dHash of img.
func DifferenceHash(img image.Image) uint64 {
	small := resizeImage(img, img.Bounds(), 9, 8)
	gray := luma(small)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[y*9+x] > gray[y*9+x+1] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
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

// DedupeImages drops enrollment images whose dHash is within maxDistance of an
// earlier kept image. Undecodable images are kept so training can report them.
func DedupeImages(images [][]byte, maxDistance int) (kept [][]byte, dropped int) {
	var hashes []uint64
	for _, data := range images {
		img, err := DecodeImage(data)
		if err != nil {
			kept = append(kept, data)
			continue
		}
		h := DifferenceHash(img)
		dup := false
		for _, seen := range hashes {
			if HammingDistance(h, seen) <= maxDistance {
				dup = true
				break
			}
		}
		if dup {
			dropped++
			continue
		}
		hashes = append(hashes, h)
		kept = append(kept, data)
	}
	return kept, dropped
}
