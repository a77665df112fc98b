package compression

import (
	"bufio"
	"io"
)

// ByteRun is a single run of one byte value.
type ByteRun struct {
	Byte byte
	// RunLength is the number of times Byte occurs, always at least 1 for a
	// real run.
	RunLength int
}

// RunLengthGrouper splits a stream into runs of identical bytes.
type RunLengthGrouper struct {
	rd *bufio.Reader
}

func NewRunLengthGrouper(rd io.Reader) RunLengthGrouper {
	return RunLengthGrouper{rd: bufio.NewReader(rd)}
}

// NextRun returns the next run in the stream. At the end of the stream it
// returns an empty run and [io.EOF].
func (grouper RunLengthGrouper) NextRun() (ByteRun, error) {
	first, err := grouper.rd.ReadByte()
	if err != nil {
		return ByteRun{}, err
	}

	run := ByteRun{Byte: first, RunLength: 1}
	for {
		next, err := grouper.rd.ReadByte()
		if err == io.EOF {
			return run, nil
		} else if err != nil {
			return ByteRun{}, err
		}

		if next != first {
			return run, grouper.rd.UnreadByte()
		}
		run.RunLength++
	}
}
