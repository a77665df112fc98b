//go:build linux

package main

import (
	"fmt"

	"github.com/sdfat/sdfat"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// blockDeviceSize gets the size of an opened block device in bytes.
func blockDeviceSize(file afero.File) (int64, error) {
	osFile, ok := file.(interface{ Fd() uintptr })
	if !ok {
		return 0, sdfat.ErrNotSupported.WithMessage(
			fmt.Sprintf("%s is a device but has no file descriptor", file.Name()))
	}
	fd := int(osFile.Fd())

	sectorSize, err := unix.IoctlGetInt(fd, unix.BLKSSZGET)
	if err != nil {
		return 0, sdfat.ErrIOFailed.Wrap(
			fmt.Errorf("unable to get device logical sector size: %w", err))
	}
	if sectorSize != imageSectorSize {
		return 0, sdfat.ErrNotSupported.WithMessage(
			fmt.Sprintf("%s has %d-byte sectors", file.Name(), sectorSize))
	}

	size, err := unix.IoctlGetInt(fd, unix.BLKGETSIZE64)
	if err != nil {
		return 0, sdfat.ErrIOFailed.Wrap(fmt.Errorf("unable to get block device size: %w", err))
	}
	return int64(size), nil
}
