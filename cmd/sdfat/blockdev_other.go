//go:build !linux

package main

import (
	"github.com/sdfat/sdfat"
	"github.com/spf13/afero"
)

func blockDeviceSize(file afero.File) (int64, error) {
	return 0, sdfat.ErrNotSupported.WithMessage(
		"raw block devices are only supported on Linux: " + file.Name())
}
