package common

import (
	"fmt"
	"io"

	"github.com/sdfat/sdfat"
)

// BlockStream is an abstraction layer around a stream to make it look like a
// sector device, i.e. a file that can only be read from or written to in
// multiples of its fundamental unit, a "sector".
//
// The exposed fields are for informational purposes only and should never be
// changed.
type BlockStream struct {
	// BytesPerBlock gives the size of a sector on this device, in bytes. All
	// reads and writes must be done in integer multiples of this size.
	BytesPerBlock uint
	// TotalBlocks is the total number of sectors in this stream.
	TotalBlocks uint
	// StartOffset is an offset from the beginning of the stream, in bytes, that
	// will be considered the beginning of sector 0 for the device. This is
	// useful for skipping over headers stored in front of the image.
	StartOffset int64
	stream      io.ReadWriteSeeker
}

var _ sdfat.BlockDevice = (*BlockStream)(nil)

func NewBlockStream(
	stream io.ReadWriteSeeker, totalBlocks uint, blockSize uint, startOffset int64,
) *BlockStream {
	return &BlockStream{
		StartOffset:   startOffset,
		BytesPerBlock: blockSize,
		TotalBlocks:   totalBlocks,
		stream:        stream,
	}
}

// NewSectorStream wraps an entire stream as a device with 512-byte sectors. The
// number of sectors is determined from the size of the stream.
func NewSectorStream(stream io.ReadWriteSeeker) (*BlockStream, error) {
	totalBlocks, err := DetermineBlockCount(stream, 512)
	if err != nil {
		return nil, err
	}
	return NewBlockStream(stream, totalBlocks, 512, 0), nil
}

// DetermineBlockCount gives the total number of blocks in a stream, rounded down
// to the nearest block.
func DetermineBlockCount(stream io.Seeker, blockSize uint) (uint, error) {
	offset, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, sdfat.ErrIOFailed.Wrap(err)
	}
	return uint(offset / int64(blockSize)), nil
}

// SectorSize implements [sdfat.BlockDevice].
func (device *BlockStream) SectorSize() uint {
	return device.BytesPerBlock
}

// BlockIDToFileOffset converts a sector number into a byte offset into the
// backing I/O stream.
func (device *BlockStream) BlockIDToFileOffset(lba uint32) (int64, error) {
	if uint(lba) >= device.TotalBlocks {
		return -1,
			sdfat.ErrArgumentOutOfRange.WithMessage(
				fmt.Sprintf(
					"invalid sector %d: not in range [0, %d)",
					lba,
					device.TotalBlocks))
	}
	return device.StartOffset + (int64(lba) * int64(device.BytesPerBlock)), nil
}

// CheckIOBounds checks to see if `dataLength` bytes can be read from or written
// to the device, starting at sector `lba`. If the bounds check fails, it
// returns an error indicating exactly what went wrong.
func (device *BlockStream) CheckIOBounds(lba uint32, dataLength uint) error {
	if uint(lba) >= device.TotalBlocks {
		return sdfat.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid sector %d: not in range [0, %d)",
				lba,
				device.TotalBlocks))
	}

	if dataLength%device.BytesPerBlock != 0 {
		return sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"data must be a multiple of the sector size (%d B), got %d (remainder %d)",
				device.BytesPerBlock,
				dataLength,
				dataLength%device.BytesPerBlock))
	}

	dataSizeInBlocks := dataLength / device.BytesPerBlock
	if uint(lba)+dataSizeInBlocks > device.TotalBlocks {
		return sdfat.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"sector %d plus %d sectors of data extends past end of image",
				lba,
				dataSizeInBlocks))
	}

	return nil
}

// seekToBlock positions the stream pointer at the byte offset where the given
// sector starts.
func (device *BlockStream) seekToBlock(lba uint32) error {
	offset, err := device.BlockIDToFileOffset(lba)
	if err != nil {
		return err
	}
	_, err = device.stream.Seek(offset, io.SeekStart)
	if err != nil {
		return sdfat.ErrIOFailed.Wrap(err)
	}
	return nil
}

// ReadSectors reads `count` whole sectors starting from `lba`.
func (device *BlockStream) ReadSectors(lba uint32, count uint) ([]byte, error) {
	err := device.CheckIOBounds(lba, count*device.BytesPerBlock)
	if err != nil {
		return nil, err
	}

	err = device.seekToBlock(lba)
	if err != nil {
		return nil, err
	}

	buffer := make([]byte, device.BytesPerBlock*count)
	_, err = io.ReadFull(device.stream, buffer)
	if err != nil {
		return nil, sdfat.ErrIOFailed.Wrap(err)
	}
	return buffer, nil
}

// WriteSectors writes data to the device. `data` must be a multiple of the
// sector size.
func (device *BlockStream) WriteSectors(lba uint32, data []byte) error {
	err := device.CheckIOBounds(lba, uint(len(data)))
	if err != nil {
		return err
	}

	err = device.seekToBlock(lba)
	if err != nil {
		return err
	}

	_, err = device.stream.Write(data)
	if err != nil {
		return sdfat.ErrIOFailed.Wrap(err)
	}
	return nil
}
