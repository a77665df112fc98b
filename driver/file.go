package driver

import (
	"errors"
	"fmt"
	"os"

	"github.com/sdfat/sdfat"
	c "github.com/sdfat/sdfat/drivers/common"
	"github.com/sdfat/sdfat/drivers/common/basicstream"
	"github.com/sdfat/sdfat/drivers/common/blockcache"
)

// fileBlockSize is the granularity File buffers data in. It doesn't need to
// match the volume's cluster size.
const fileBlockSize = 512

// File is an open file on a volume, usable more or less like an [os.File]. Its
// contents are buffered in memory; changes are written back to the volume on
// Sync or Close.
type File struct {
	*basicstream.BasicStream

	owningDriver *BaseDriver
	absolutePath string
	ioFlags      sdfat.IOFlags
	contents     []byte
	closed       bool
}

// OpenFile opens the file at `path` the way [os.OpenFile] does.
func (driver *BaseDriver) OpenFile(path string, flags sdfat.IOFlags) (*File, error) {
	absPath := driver.NormalizePath(path)
	parent, baseName, err := driver.lookupParent(absPath)
	if err != nil {
		return nil, err
	}

	dirent, err := driver.volume.Stat(parent, baseName)
	switch {
	case err == nil:
		if flags.Create() && flags.Exclusive() {
			return nil, sdfat.ErrExists.WithMessage(absPath)
		}
		if dirent.IsDir() {
			return nil, sdfat.ErrIsADirectory.WithMessage(absPath)
		}
	case errors.Is(err, sdfat.ErrNotFound) && flags.Create():
		if !flags.CanWrite() {
			return nil, sdfat.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("can't create %q without opening it for writing", absPath))
		}
		_, err = driver.volume.Create(parent, baseName, false)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	contents, err := driver.volume.ReadFile(parent, baseName)
	if err != nil {
		return nil, err
	}

	file := &File{
		owningDriver: driver,
		absolutePath: absPath,
		ioFlags:      flags,
		contents:     contents,
	}

	totalBlocks := (uint(len(contents)) + fileBlockSize - 1) / fileBlockSize
	cache := blockcache.New(fileBlockSize, totalBlocks, file.fetchBlock, file.flushBlock)

	file.BasicStream, err = basicstream.New(int64(len(contents)), cache, streamMode(flags))
	if err != nil {
		return nil, err
	}
	return file, nil
}

// Open opens a file for reading.
func (driver *BaseDriver) Open(path string) (*File, error) {
	return driver.OpenFile(path, sdfat.O_RDONLY)
}

// Create creates or truncates the file at `path` and opens it for reading and
// writing.
func (driver *BaseDriver) Create(path string) (*File, error) {
	return driver.OpenFile(path, sdfat.O_RDWR|sdfat.O_CREATE|sdfat.O_TRUNC)
}

func streamMode(flags sdfat.IOFlags) basicstream.Mode {
	var mode basicstream.Mode
	if flags.CanRead() {
		mode |= basicstream.ModeRead
	}
	if flags.CanWrite() {
		mode |= basicstream.ModeWrite
		if flags.Append() {
			mode |= basicstream.ModeAppend
		}
		if flags.Truncate() {
			mode |= basicstream.ModeTruncate
		}
	}
	return mode
}

func (file *File) fetchBlock(index c.LogicalBlock, buffer []byte) error {
	start := int(index) * fileBlockSize
	if start < len(file.contents) {
		n := copy(buffer, file.contents[start:])
		buffer = buffer[n:]
	}
	for i := range buffer {
		buffer[i] = 0
	}
	return nil
}

func (file *File) flushBlock(index c.LogicalBlock, buffer []byte) error {
	end := (int(index) + 1) * fileBlockSize
	if end > len(file.contents) {
		grown := make([]byte, end)
		copy(grown, file.contents)
		file.contents = grown
	}
	copy(file.contents[int(index)*fileBlockSize:], buffer)
	return nil
}

// Name returns the absolute path the file was opened with.
func (file *File) Name() string {
	return file.absolutePath
}

// Stat returns information about the file as it is on the volume. Changes not
// yet written back with Sync aren't reflected in it.
func (file *File) Stat() (os.FileInfo, error) {
	return file.owningDriver.Stat(file.absolutePath)
}

// Sync writes the file's contents back to the volume. For read-only files it
// does nothing.
func (file *File) Sync() error {
	if file.closed {
		return os.ErrClosed
	}
	if !file.ioFlags.CanWrite() {
		return nil
	}

	err := file.BasicStream.Sync()
	if err != nil {
		return err
	}
	return file.owningDriver.WriteFile(file.absolutePath, file.contents[:file.Size()])
}

// Close writes the file back to the volume with Sync. The file can't be used
// afterwards.
func (file *File) Close() error {
	if file.closed {
		return os.ErrClosed
	}
	err := file.Sync()
	file.closed = true
	return err
}
