package compression

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// maxGroupLength is the longest run a single RLE8 group can hold.
const maxGroupLength = 257

// CompressRLE8 encodes everything in `input` with RLE8 and writes it to
// `output`. It returns the number of encoded bytes written.
func CompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	grouper := NewRunLengthGrouper(input)
	writer := bufio.NewWriter(output)
	written := int64(0)

	for {
		run, err := grouper.NextRun()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return written, err
		}

		for remaining := run.RunLength; remaining > 0; {
			if remaining == 1 {
				err = writer.WriteByte(run.Byte)
				written++
				remaining = 0
			} else {
				groupLength := remaining
				if groupLength > maxGroupLength {
					groupLength = maxGroupLength
				}
				_, err = writer.Write([]byte{run.Byte, run.Byte, byte(groupLength - 2)})
				written += 3
				remaining -= groupLength
			}
			if err != nil {
				return written, err
			}
		}
	}
	return written, writer.Flush()
}

// DecompressRLE8 decodes RLE8 data from `input` and writes the original bytes
// to `output`. It returns the number of decoded bytes written.
func DecompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	reader := bufio.NewReader(input)
	writer := bufio.NewWriter(output)
	written := int64(0)

	// -1 means the next byte starts a new group.
	previous := -1
	for {
		current, err := reader.ReadByte()
		if errors.Is(err, io.EOF) {
			return written, writer.Flush()
		} else if err != nil {
			return written, fmt.Errorf("error reading input: %w", err)
		}

		if int(current) != previous {
			previous = int(current)
			err = writer.WriteByte(current)
			written++
		} else {
			count, countErr := reader.ReadByte()
			if errors.Is(countErr, io.EOF) {
				return written, fmt.Errorf(
					"%w: missing repeat count after two %02x bytes",
					io.ErrUnexpectedEOF,
					current)
			} else if countErr != nil {
				return written, fmt.Errorf("error reading input: %w", countErr)
			}

			// The first byte of the pair has already been written out.
			var n int
			n, err = writer.Write(bytes.Repeat([]byte{current}, int(count)+1))
			written += int64(n)
			previous = -1
		}

		if err != nil {
			return written, fmt.Errorf("failed to write to output: %w", err)
		}
	}
}
