package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/sdfat/sdfat"
	"github.com/sdfat/sdfat/driver"
	"github.com/sdfat/sdfat/drivers/common"
	"github.com/sdfat/sdfat/drivers/fat32"
	"github.com/sdfat/sdfat/drivers/mbr"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

const imageSectorSize = 512

// environment is everything the commands share: where host files come from,
// the merged configuration and the logger.
type environment struct {
	hostFs afero.Fs
	config GlobalConfig
	logger *log.Logger
}

// session is an image with a mounted volume. Close must be called to write
// back the FSInfo hints.
type session struct {
	file   afero.File
	device *common.BlockStream
	volume *fat32.Driver
	fs     *driver.BaseDriver
}

func (s *session) Close() error {
	var result *multierror.Error
	if s.volume != nil {
		result = multierror.Append(result, s.volume.Flush())
	}
	result = multierror.Append(result, s.file.Close())
	return result.ErrorOrNil()
}

func (env *environment) imagePath(ctx *cli.Context) (string, error) {
	path := ctx.String("image")
	if path == "" {
		path = env.config.Image
	}
	if path == "" {
		return "", sdfat.ErrInvalidArgument.WithMessage(
			"no image given; use --image or set `image` in the config file")
	}
	return path, nil
}

// imageSize gives the size of an image file or raw block device, in bytes.
func imageSize(file afero.File) (int64, error) {
	stat, err := file.Stat()
	if err != nil {
		return 0, sdfat.ErrIOFailed.Wrap(err)
	}
	if stat.Mode()&os.ModeDevice != 0 {
		return blockDeviceSize(file)
	}
	return stat.Size(), nil
}

// openImage opens an existing image and wraps it in a sector device.
func (env *environment) openImage(ctx *cli.Context) (afero.File, *common.BlockStream, error) {
	path, err := env.imagePath(ctx)
	if err != nil {
		return nil, nil, err
	}

	file, err := env.hostFs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, sdfat.ErrNotFound.WithMessage(path)
		}
		return nil, nil, sdfat.ErrIOFailed.Wrap(err)
	}

	size, err := imageSize(file)
	if err != nil {
		file.Close()
		return nil, nil, err
	}

	totalSectors := uint(size / imageSectorSize)
	env.logger.WithFields(log.Fields{
		"image":   path,
		"sectors": totalSectors,
	}).Debug("opened image")
	return file, common.NewBlockStream(file, totalSectors, imageSectorSize, 0), nil
}

// locateVolume finds the first sector of the volume according to the
// partition selector: "auto" uses the first FAT32 partition if the image has
// an MBR and the whole image otherwise, "none" always uses the whole image,
// and a number picks that partition.
func locateVolume(file afero.File, selector string) (uint32, error) {
	switch selector {
	case "", "auto":
		partition, err := mbr.FindFAT32(file)
		if err == nil {
			return partition.StartLBA, nil
		}
		if errors.Is(err, sdfat.ErrInvalidFileSystem) || errors.Is(err, sdfat.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	case "none":
		return 0, nil
	}

	index, err := strconv.Atoi(selector)
	if err != nil {
		return 0, sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("partition must be \"auto\", \"none\" or a number, not %q", selector))
	}
	partition, err := mbr.ReadPartition(file, index)
	if err != nil {
		return 0, err
	}
	if !partition.IsFAT32() {
		return 0, sdfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf("partition %d has type %#02x, not FAT32", index, partition.Type))
	}
	return partition.StartLBA, nil
}

func (env *environment) partitionSelector(ctx *cli.Context) string {
	if ctx.IsSet("partition") {
		return ctx.String("partition")
	}
	return env.config.Partition
}

// mount opens the image and mounts the volume in it.
func (env *environment) mount(ctx *cli.Context) (*session, error) {
	file, device, err := env.openImage(ctx)
	if err != nil {
		return nil, err
	}
	s := &session{file: file, device: device}

	lbaStart, err := locateVolume(file, env.partitionSelector(ctx))
	if err != nil {
		s.Close()
		return nil, err
	}

	s.volume, err = fat32.Mount(device, lbaStart, fat32.WithLogger(env.logger))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.fs = driver.New(s.volume)
	return s, nil
}

// withVolume runs `action` with a mounted volume and unmounts it afterwards.
func (env *environment) withVolume(
	action func(ctx *cli.Context, s *session) error,
) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		s, err := env.mount(ctx)
		if err != nil {
			return err
		}

		err = action(ctx, s)
		closeErr := s.Close()
		if err == nil {
			return closeErr
		}
		if closeErr != nil {
			env.logger.WithError(closeErr).Warn("failed to unmount cleanly")
		}
		return err
	}
}
