package basicstream_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/sdfat/sdfat"
	"github.com/sdfat/sdfat/drivers/common/basicstream"
	sdfattest "github.com/sdfat/sdfat/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SeekInfo is a struct useful for testing seeking in a stream using relative
// offsets.
type SeekInfo struct {
	Offset                int64
	Whence                int
	ExpectedFinalPosition int64
}

// Read the entire image all at once
func TestBasicStreamNew__Basic(t *testing.T) {
	cache := sdfattest.CreateDefaultCache(128, 256, false, nil, t)
	stream, err := basicstream.New(cache.Size(), cache, basicstream.ModeRead)
	require.NoError(t, err, "couldn't create stream")

	rawExpectedData, err := cache.Data()
	require.NoError(t, err, "failed to get cache data as slice")

	streamData := make([]byte, cache.Size())
	n, err := stream.Read(streamData)

	require.NoError(t, err, "failed to read entire stream contents")
	assert.EqualValues(t, cache.Size(), n, "read wrong number of bytes from stream")
	assert.True(
		t,
		bytes.Equal(rawExpectedData, streamData),
		"data read from stream is not equal to the expected raw data")
}

func TestBasicStreamNew__SizeTooBig(t *testing.T) {
	cache := sdfattest.CreateDefaultCache(128, 4, false, nil, t)
	_, err := basicstream.New(cache.Size()+1, cache, basicstream.ModeRead)
	assert.ErrorIs(t, err, sdfat.ErrArgumentOutOfRange)
}

// Read less than one block (ensures rounding is correct)
func TestBasicStreamNew__LessThanOneBlock(t *testing.T) {
	rawExpectedData := sdfattest.CreateRandomImage(128, 16, t)
	cache := sdfattest.CreateDefaultCache(128, 16, false, rawExpectedData, t)
	stream, err := basicstream.New(cache.Size(), cache, basicstream.ModeRead)
	require.NoError(t, err, "couldn't create stream")

	const readSize = 39

	streamData := make([]byte, readSize)
	n, err := stream.Read(streamData)
	require.NoErrorf(t, err, "failed to read %d bytes from stream", readSize)
	assert.EqualValues(t, 39, n, "read wrong number of bytes from stream")
	assert.Equal(t, rawExpectedData[:readSize], streamData)
}

// Read various sizes at various offsets from the beginning of the stream. This
// only tests Seek() with [io.SeekStart] as `whence`.
func TestBasicStream__SeekStart(t *testing.T) {
	rawUnderlyingBytes := sdfattest.CreateRandomImage(128, 16, t)
	cache := sdfattest.CreateDefaultCache(128, 16, false, rawUnderlyingBytes, t)
	stream, err := basicstream.New(cache.Size(), cache, basicstream.ModeRead)
	require.NoError(t, err, "failed to create stream")

	byteOffsets := []int64{
		// Beginning of the stream
		0,
		// Exactly at the second block
		128,
		// Within the first block
		90,
		// Starting within the third block
		300,
	}
	readSizes := []int{1, 93, 128, 829}

	for _, readSize := range readSizes {
		for _, offset := range byteOffsets {
			info := SeekInfo{
				Offset:                offset,
				Whence:                io.SeekStart,
				ExpectedFinalPosition: offset,
			}

			testName := fmt.Sprintf("Offset_%d_Size_%d", offset, readSize)
			t.Run(
				testName,
				func(subT *testing.T) {
					checkStreamRead(stream, info, readSize, rawUnderlyingBytes, subT)
				},
			)
		}
	}
}

// Hopping around
func TestBasicStream__SeekJumpingAround(t *testing.T) {
	cache := sdfattest.CreateDefaultCache(128, 8, false, nil, t)
	stream, err := basicstream.New(cache.Size(), cache, basicstream.ModeRead)
	require.NoError(t, err, "failed to create stream")

	seeks := []SeekInfo{
		{Offset: 10, Whence: io.SeekStart, ExpectedFinalPosition: 10},
		// Seek backwards from the current position
		{Offset: -3, Whence: io.SeekCurrent, ExpectedFinalPosition: 7},
		// Don't go anywhere
		{Offset: 0, Whence: io.SeekCurrent, ExpectedFinalPosition: 7},
		{Offset: 30, Whence: io.SeekCurrent, ExpectedFinalPosition: 37},
		{Offset: -39, Whence: io.SeekEnd, ExpectedFinalPosition: cache.Size() - 39},
		// Allow seeking past the end of the stream from the current position
		{Offset: 102, Whence: io.SeekCurrent, ExpectedFinalPosition: cache.Size() - 39 + 102},
		{Offset: 0, Whence: io.SeekStart, ExpectedFinalPosition: 0},
	}

	for _, seek := range seeks {
		doCheckedSeek(stream, seek, t)
	}
}

func TestBasicStream__SeekErrors(t *testing.T) {
	cache := sdfattest.CreateDefaultCache(128, 8, false, nil, t)
	stream, err := basicstream.New(cache.Size(), cache, basicstream.ModeRead)
	require.NoError(t, err)

	_, err = stream.Seek(50, io.SeekStart)
	require.NoError(t, err)

	where, err := stream.Seek(-51, io.SeekCurrent)
	assert.ErrorIs(t, err, sdfat.ErrInvalidArgument)
	assert.EqualValues(t, 50, where, "failed seek must not move the stream")

	_, err = stream.Seek(0, 17)
	assert.ErrorIs(t, err, sdfat.ErrInvalidArgument)
}

func TestBasicStream__ReadBasic(t *testing.T) {
	data := sdfattest.CreateRandomImage(64, 8, t)
	require.Equal(t, 512, len(data), "raw data size is wrong")

	cache := sdfattest.CreateDefaultCache(64, 8, false, data, t)
	stream, err := basicstream.New(cache.Size(), cache, basicstream.ModeRead)
	require.NoError(t, err, "failed to create stream")

	assert.EqualValues(t, 0, stream.Tell(), "Tell() at beginning of stream should be 0")

	bytesRemaining := 512
	bytesRead := 0

	// A read size of 0 can happen with one byte left, so stop there instead of
	// looping forever.
	for bytesRead < 511 {
		readSize := rand.Int() % bytesRemaining
		buffer := make([]byte, readSize)

		n, readErr := stream.Read(buffer)
		require.NoError(t, readErr)
		assert.Equal(t, readSize, n, "read wrong # of bytes")
		assert.Equal(t, int64(bytesRead+n), stream.Tell(), "fpos is wrong")
		require.Equal(t, data[bytesRead:bytesRead+n], buffer)

		bytesRead += n
		bytesRemaining -= n
	}
}

func TestBasicStream__ReadPastEndOfStream(t *testing.T) {
	data := sdfattest.CreateRandomImage(64, 8, t)
	cache := sdfattest.CreateDefaultCache(64, 8, false, data, t)

	// The stream is shorter than the cache, like a file whose last cluster
	// isn't full.
	stream, err := basicstream.New(100, cache, basicstream.ModeRead)
	require.NoError(t, err)

	buffer := make([]byte, 64)
	_, err = stream.Seek(80, io.SeekStart)
	require.NoError(t, err)

	n, err := stream.Read(buffer)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, data[80:100], buffer[:n])

	n, err = stream.Read(buffer)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, n)
}

func TestBasicStream__WriteAndSync(t *testing.T) {
	backing := make([]byte, 64*8)
	cache := sdfattest.CreateDefaultCache(64, 8, true, backing, t)
	stream, err := basicstream.New(0, cache, basicstream.ModeReadWrite)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("sdfat!"), 30)
	n, err := stream.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.EqualValues(t, len(payload), stream.Size())
	assert.EqualValues(t, 3, cache.TotalBlocks())

	// Nothing reaches the backing storage until the stream is synced.
	assert.Equal(t, make([]byte, len(payload)), backing[:len(payload)])
	require.NoError(t, stream.Sync())
	assert.Equal(t, payload, backing[:len(payload)])

	n, err = stream.WriteAt([]byte("XY"), 64)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, stream.Close())
	assert.Equal(t, []byte("XY"), backing[64:66])
}

func TestBasicStream__Truncate(t *testing.T) {
	backing := sdfattest.CreateRandomImage(64, 8, t)
	original := append([]byte{}, backing...)
	cache := sdfattest.CreateDefaultCache(64, 8, true, backing, t)
	stream, err := basicstream.New(cache.Size(), cache, basicstream.ModeReadWrite)
	require.NoError(t, err)

	require.NoError(t, stream.Truncate(100))
	assert.EqualValues(t, 100, stream.Size())
	assert.EqualValues(t, 2, cache.TotalBlocks())

	require.NoError(t, stream.Truncate(200))
	assert.EqualValues(t, 200, stream.Size())

	contents := make([]byte, 200)
	n, err := stream.ReadAt(contents, 0)
	require.NoError(t, err)
	assert.Equal(t, 200, n)
	assert.Equal(t, original[:100], contents[:100])
	assert.Equal(t, make([]byte, 100), contents[100:], "growing must expose only zeros")

	assert.ErrorIs(t, stream.Truncate(-1), sdfat.ErrArgumentOutOfRange)
}

func TestBasicStream__ModeTruncate(t *testing.T) {
	cache := sdfattest.CreateDefaultCache(64, 8, true, nil, t)
	stream, err := basicstream.New(cache.Size(), cache, basicstream.ModeWrite|basicstream.ModeTruncate)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stream.Size())
	assert.EqualValues(t, 0, cache.TotalBlocks())
}

func TestBasicStream__AppendMode(t *testing.T) {
	backing := make([]byte, 64*8)
	copy(backing, "hello")
	cache := sdfattest.CreateDefaultCache(64, 8, true, backing, t)
	stream, err := basicstream.New(5, cache, basicstream.ModeRead|basicstream.ModeAppend)
	require.NoError(t, err)

	_, err = stream.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = stream.WriteString(", world")
	require.NoError(t, err)
	assert.EqualValues(t, 12, stream.Tell())

	_, err = stream.WriteAt([]byte("J"), 0)
	assert.ErrorIs(t, err, sdfat.ErrPermissionDenied)

	require.NoError(t, stream.Sync())
	assert.Equal(t, []byte("hello, world"), backing[:12])
}

func TestBasicStream__Permissions(t *testing.T) {
	cache := sdfattest.CreateDefaultCache(64, 8, false, nil, t)
	readOnly, err := basicstream.New(cache.Size(), cache, basicstream.ModeRead)
	require.NoError(t, err)

	_, err = readOnly.Write([]byte("nope"))
	assert.ErrorIs(t, err, sdfat.ErrPermissionDenied)
	assert.ErrorIs(t, readOnly.Truncate(0), sdfat.ErrPermissionDenied)

	writeOnly, err := basicstream.New(cache.Size(), cache, basicstream.ModeWrite)
	require.NoError(t, err)
	_, err = writeOnly.Read(make([]byte, 4))
	assert.ErrorIs(t, err, sdfat.ErrPermissionDenied)
}

func TestBasicStream__WriteTo(t *testing.T) {
	data := sdfattest.CreateRandomImage(64, 8, t)
	cache := sdfattest.CreateDefaultCache(64, 8, false, data, t)
	stream, err := basicstream.New(500, cache, basicstream.ModeRead)
	require.NoError(t, err)

	var output bytes.Buffer
	n, err := stream.WriteTo(&output)
	require.NoError(t, err)
	assert.EqualValues(t, 500, n)
	assert.Equal(t, data[:500], output.Bytes())
}

// doCheckedSeek performs the requested seek on the stream and checks the results.
func doCheckedSeek(stream *basicstream.BasicStream, seek SeekInfo, t *testing.T) (int64, error) {
	originalAbsolutePosition := stream.Tell()
	where, err := stream.Seek(seek.Offset, seek.Whence)

	assert.NoErrorf(
		t,
		err,
		"failed to seek from %d to %d using offset %d, origin %d",
		originalAbsolutePosition,
		seek.ExpectedFinalPosition,
		seek.Offset,
		seek.Whence)
	assert.Equal(t, seek.ExpectedFinalPosition, where, "return value of Seek() is wrong")
	assert.Equal(t, seek.ExpectedFinalPosition, stream.Tell(), "Tell() returned the wrong value")

	if err == nil && t.Failed() {
		return where, errors.New("one or more assertions failed")
	}
	return seek.ExpectedFinalPosition, err
}

func checkStreamRead(
	stream *basicstream.BasicStream,
	seek SeekInfo,
	readSize int,
	rawUnderlyingBytes []byte,
	t *testing.T,
) {
	where, err := doCheckedSeek(stream, seek, t)
	require.NoError(t, err)

	expectedData := rawUnderlyingBytes[where : where+int64(readSize)]

	buffer := make([]byte, readSize)
	n, err := stream.Read(buffer)
	assert.NoErrorf(t, err, "failed to read %d bytes from absolute offset %d", readSize, where)
	assert.EqualValues(t, readSize, n, "read wrong number of bytes")
	assert.Equal(t, expectedData, buffer)
}
