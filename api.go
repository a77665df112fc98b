package sdfat

import (
	"os"
	"time"
)

//go:generate mockgen -destination=testing/mocks/mock_blockdevice.go -package=mocks github.com/sdfat/sdfat BlockDevice

// BlockDevice is the interface for storage that can only be read from or
// written to in whole sectors, addressed by LBA.
//
// Implementations must return exactly `count * SectorSize()` bytes from
// ReadSectors, and WriteSectors must reject data that isn't a whole number of
// sectors.
type BlockDevice interface {
	// SectorSize gives the size of a single sector, in bytes.
	SectorSize() uint
	// ReadSectors reads `count` whole sectors starting at `lba`.
	ReadSectors(lba uint32, count uint) ([]byte, error)
	// WriteSectors writes `data` starting at sector `lba`.
	WriteSectors(lba uint32, data []byte) error
}

// Clock returns the current time. Drivers use it to stamp directory entries.
type Clock func() time.Time

// FileSystem is the path-oriented interface the command line tools work with.
// Paths are always absolute and use `/` as the separator.
type FileSystem interface {
	ReadDir(path string) ([]os.FileInfo, error)
	Stat(path string) (os.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Mkdir(path string) error
	MkdirAll(path string) error
	Remove(path string) error
	Rename(oldPath, newPath string) error
	Truncate(path string, size int64) error
	Flush() error
}
