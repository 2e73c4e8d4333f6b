package sim

import (
	"fmt"
	"io/ioutil"
)

// MaxImageSize is the largest image the address bus can reach.
const MaxImageSize = 1 << 16

// LoadImage reads a raw binary image.
func LoadImage(path string) ([]byte, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s is empty", path)
	}
	if len(data) > MaxImageSize {
		return nil, fmt.Errorf("image %s too large: %d > %d bytes", path, len(data), MaxImageSize)
	}
	return data, nil
}

// PatternImage creates an image whose content is derived from the address,
// so any misplaced byte is visible.
func PatternImage(size int) []byte {
	data := make([]byte, size)
	for n := range data {
		data[n] = PatternByte(int64(n))
	}
	return data
}

// PatternByte is the content of PatternImage at addr.
func PatternByte(addr int64) byte {
	return byte(addr) ^ byte(addr>>8)*7
}
