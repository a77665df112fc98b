// Package basicstream implements a basic file-like abstraction around a
// block-oriented cache.
package basicstream

import (
	"fmt"
	"io"

	"github.com/sdfat/sdfat"
	c "github.com/sdfat/sdfat/drivers/common"
	"github.com/sdfat/sdfat/drivers/common/blockcache"
)

// Mode controls what a stream may be used for.
type Mode int

const (
	ModeRead Mode = 1 << iota
	ModeWrite
	// ModeAppend forces every write to the end of the stream.
	ModeAppend
	// ModeTruncate empties the stream when it's created.
	ModeTruncate

	ModeReadWrite = ModeRead | ModeWrite
)

func (mode Mode) canRead() bool {
	return mode&ModeRead != 0
}

func (mode Mode) canWrite() bool {
	return mode&(ModeWrite|ModeAppend) != 0
}

// BasicStream is a file-like wrapper around a BlockCache that emulates a
// subset of the functionality provided by an [os.File] instance.
type BasicStream struct {
	size     int64
	position int64
	data     *blockcache.BlockCache
	mode     Mode
}

var _ io.ReadWriteSeeker = (*BasicStream)(nil)
var _ io.ReaderAt = (*BasicStream)(nil)
var _ io.WriterAt = (*BasicStream)(nil)
var _ io.WriterTo = (*BasicStream)(nil)

// New creates a BasicStream on top of a block cache. The `size` argument gives
// the exact size of the stream, in bytes. The only requirement for this is that
// it must be between 0 and `data.Size()` (inclusive).
func New(size int64, data *blockcache.BlockCache, mode Mode) (*BasicStream, error) {
	maxSize := data.Size()
	if size < 0 || size > maxSize {
		return nil, sdfat.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("invalid stream size: %d not in the range [0, %d]", size, maxSize))
	}

	stream := &BasicStream{
		size: size,
		data: data,
		mode: mode,
	}

	if mode&ModeTruncate != 0 {
		return stream, stream.Truncate(0)
	}
	return stream, nil
}

func (stream *BasicStream) convertLinearAddr(offset int64) (c.LogicalBlock, uint) {
	bytesPerBlock := int64(stream.data.BytesPerBlock())
	return c.LogicalBlock(offset / bytesPerBlock), uint(offset % bytesPerBlock)
}

// Close writes out all pending changes to the underlying storage. The stream
// should not be used for I/O operations after calling this method.
func (stream *BasicStream) Close() error {
	return stream.Sync()
}

func (stream *BasicStream) Read(buffer []byte) (int, error) {
	totalRead, err := stream.ReadAt(buffer, stream.position)
	stream.position += int64(totalRead)
	return totalRead, err
}

func (stream *BasicStream) ReadAt(buffer []byte, offset int64) (int, error) {
	if !stream.mode.canRead() {
		return 0, sdfat.ErrPermissionDenied.WithMessage("stream is write-only")
	}
	if offset >= stream.size {
		return 0, io.EOF
	}

	// Clamp the number of bytes to read to whichever is smaller; the length of
	// the buffer or the end of the file.
	toRead := int64(len(buffer))
	if offset+toRead > stream.size {
		toRead = stream.size - offset
	}

	contents, err := stream.data.Data()
	if err != nil {
		return 0, err
	}
	copy(buffer, contents[offset:offset+toRead])

	if toRead < int64(len(buffer)) {
		return int(toRead), io.EOF
	}
	return int(toRead), nil
}

// Seek resets the stream pointer to `offset` bytes from the origin specified in
// `whence`. It must be one of [io.SeekStart], [io.SeekCurrent], or [io.SeekEnd].
//
// Seeking past the end of the file is possible; the file will automatically be
// resized upon the first write. Attempting to read past the end of the file
// returns no data.
func (stream *BasicStream) Seek(offset int64, whence int) (int64, error) {
	var absoluteOffset int64

	switch whence {
	case io.SeekStart:
		absoluteOffset = offset
	case io.SeekCurrent:
		absoluteOffset = stream.position + offset
	case io.SeekEnd:
		absoluteOffset = stream.size + offset
	default:
		return stream.position, sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid seek origin: %d", whence))
	}

	if absoluteOffset < 0 {
		return stream.position, sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("result of Seek(offset=%d, whence=%d) is negative", offset, whence))
	}

	stream.position = absoluteOffset
	return absoluteOffset, nil
}

// Size returns the size of the file, in bytes.
func (stream *BasicStream) Size() int64 {
	return stream.size
}

// Sync writes out all pending changes to the backing storage. After calling this,
// all loaded blocks will be marked clean.
func (stream *BasicStream) Sync() error {
	return stream.data.Flush()
}

// Tell returns the current stream position. It's a more concise way of calling
// `Seek(0, io.SeekCurrent)`.
func (stream *BasicStream) Tell() int64 {
	return stream.position
}

// Truncate resizes the stream to the given number of bytes but does not move
// the stream pointer. Bytes added to the end are zeroed.
func (stream *BasicStream) Truncate(size int64) error {
	if !stream.mode.canWrite() {
		return sdfat.ErrPermissionDenied.WithMessage("stream is read-only")
	}
	if size < 0 {
		return sdfat.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("truncate failed: %d is not a valid file size", size))
	}

	// Anything in the cache past the end of the stream is zeroed so that growing
	// it later never exposes stale data.
	contents, err := stream.data.Data()
	if err != nil {
		return err
	}
	keep := size
	if stream.size < keep {
		keep = stream.size
	}
	if keep < int64(len(contents)) {
		tail := contents[keep:]
		for i := range tail {
			tail[i] = 0
		}
		firstBlock, _ := stream.convertLinearAddr(keep)
		err = stream.data.MarkBlockRangeDirty(
			firstBlock, stream.data.TotalBlocks()-uint(firstBlock))
		if err != nil {
			return err
		}
	}

	stream.data.Resize(stream.data.LengthToNumBlocks(uint(size)))
	stream.size = size
	return nil
}

func (stream *BasicStream) Write(buffer []byte) (int, error) {
	if stream.mode&ModeAppend != 0 {
		stream.position = stream.size
	}

	totalWritten, err := stream.implWriteAt(buffer, stream.position)
	stream.position += int64(totalWritten)
	return totalWritten, err
}

// implWriteAt implements the bulk of WriteAt with the exception that it doesn't
// check for append mode.
func (stream *BasicStream) implWriteAt(buffer []byte, offset int64) (int, error) {
	if !stream.mode.canWrite() {
		return 0, sdfat.ErrPermissionDenied.WithMessage("stream is read-only")
	}
	if len(buffer) == 0 {
		return 0, nil
	}

	end := offset + int64(len(buffer))
	if end > stream.size {
		err := stream.Truncate(end)
		if err != nil {
			return 0, err
		}
	}

	contents, err := stream.data.Data()
	if err != nil {
		return 0, err
	}
	copy(contents[offset:], buffer)

	firstBlock, _ := stream.convertLinearAddr(offset)
	lastBlock, _ := stream.convertLinearAddr(end - 1)
	err = stream.data.MarkBlockRangeDirty(firstBlock, uint(lastBlock-firstBlock)+1)
	if err != nil {
		return 0, err
	}
	return len(buffer), nil
}

func (stream *BasicStream) WriteAt(buffer []byte, offset int64) (int, error) {
	if stream.mode&ModeAppend != 0 {
		return 0, sdfat.ErrPermissionDenied.WithMessage("can't write at an offset in append mode")
	}
	return stream.implWriteAt(buffer, offset)
}

// WriteString writes a string to the stream.
func (stream *BasicStream) WriteString(s string) (int, error) {
	return stream.Write([]byte(s))
}

func (stream *BasicStream) WriteTo(w io.Writer) (int64, error) {
	buffer := make([]byte, stream.data.BytesPerBlock())
	totalWritten := int64(0)

	for {
		blockSize, readErr := stream.Read(buffer)
		if blockSize > 0 {
			written, err := w.Write(buffer[:blockSize])
			totalWritten += int64(written)
			if err != nil {
				return totalWritten, err
			}
		}

		if readErr == io.EOF {
			return totalWritten, nil
		} else if readErr != nil {
			return totalWritten, readErr
		}
	}
}
