package correlate

import (
	"os"
	"path/filepath"
)

// SizeLookup reports the current byte size of a file in the TFTP root. A nil
// result means the size is unknown. Implementations must not block for long.
type SizeLookup interface {
	Size(filename string) *int64
}

// FileSizer looks up sizes with a local stat under Root
type FileSizer struct {
	Root string
}

// Size implements SizeLookup
func (f FileSizer) Size(filename string) *int64 {
	// Cleaning against "/" keeps the lookup inside Root
	path := filepath.Join(f.Root, filepath.Clean("/"+filename))
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	size := info.Size()
	return &size
}

// SizeFunc adapts a function to SizeLookup
type SizeFunc func(filename string) *int64

// Size implements SizeLookup
func (f SizeFunc) Size(filename string) *int64 {
	return f(filename)
}
