package testing

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/sdfat/sdfat"
	"github.com/sdfat/sdfat/drivers/common"
	"github.com/sdfat/sdfat/drivers/fat32"
	"github.com/sdfat/sdfat/utilities/compression"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// LoadDiskImage takes a compressed disk image and returns a stream to access the
// uncompressed data.
//
//   - Writes to the stream do not affect `compressedImageBytes`.
//   - While the stream can be written to, its size is fixed to `sectorSize * totalSectors`.
//     Attempting to write past the end of this buffer will trigger an error.
func LoadDiskImage(
	t *testing.T, compressedImageBytes []byte, sectorSize, totalSectors uint,
) io.ReadWriteSeeker {
	require.Greater(t, len(compressedImageBytes), 0, "compressed image is empty")

	imageBytes, err := compression.DecompressImageToBytes(bytes.NewReader(compressedImageBytes))
	require.NoError(t, err)

	require.Equal(
		t,
		totalSectors*sectorSize,
		uint(len(imageBytes)),
		"uncompressed image is wrong size",
	)
	return bytesextra.NewReadWriteSeeker(imageBytes)
}

// NewBlankImage creates a zero-filled in-memory image and a sector device over
// it. Changes made through the device are visible in the returned slice.
func NewBlankImage(
	t *testing.T, sectorSize, totalSectors uint,
) ([]byte, *common.BlockStream) {
	image := make([]byte, sectorSize*totalSectors)
	device := common.NewBlockStream(
		bytesextra.NewReadWriteSeeker(image), totalSectors, sectorSize, 0)
	require.EqualValues(t, sectorSize, device.SectorSize())
	return image, device
}

// NewFormattedImage creates an in-memory image of `totalSectors` 512-byte
// sectors holding a single empty FAT32 volume that starts at sector 0.
func NewFormattedImage(
	t *testing.T, totalSectors uint, options fat32.FormatOptions,
) ([]byte, *common.BlockStream) {
	image, device := NewBlankImage(t, 512, totalSectors)
	err := fat32.Format(device, 0, uint32(totalSectors), options)
	require.NoError(t, err, "failed to format image")
	return image, device
}

// MountNewVolume formats a new in-memory volume and mounts it. The clock of
// the driver is fixed at [FixedTime] unless overridden in `driverOptions`.
func MountNewVolume(
	t *testing.T,
	totalSectors uint,
	formatOptions fat32.FormatOptions,
	driverOptions ...fat32.Option,
) (*fat32.Driver, []byte) {
	image, device := NewFormattedImage(t, totalSectors, formatOptions)

	options := append([]fat32.Option{fat32.WithClock(FixedClock(FixedTime))}, driverOptions...)
	driver, err := fat32.Mount(device, 0, options...)
	require.NoError(t, err, "failed to mount freshly formatted image")
	return driver, image
}

// FixedTime is the time reported by clocks from [FixedClock] in tests that
// don't care about the exact value. It falls on an even second.
var FixedTime = time.Date(2021, time.March, 14, 15, 9, 26, 0, time.UTC)

// FixedClock returns a clock that always reports `at`.
func FixedClock(at time.Time) sdfat.Clock {
	return func() time.Time {
		return at
	}
}

// SnapshotImage returns a copy of an image, for comparing before and after
// an operation.
func SnapshotImage(image []byte) []byte {
	snapshot := make([]byte, len(image))
	copy(snapshot, image)
	return snapshot
}
