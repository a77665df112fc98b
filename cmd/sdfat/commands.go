package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"

	"github.com/sdfat/sdfat"
	"github.com/sdfat/sdfat/disks"
	"github.com/sdfat/sdfat/drivers/common"
	"github.com/sdfat/sdfat/drivers/fat32"
	"github.com/sdfat/sdfat/drivers/mbr"
	"github.com/sdfat/sdfat/utilities/compression"
	"github.com/sdfat/sdfat/utilities/pgm"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// partitionStartLBA is where `format --mbr` puts the volume, leaving the usual
// 1 MiB gap after the MBR.
const partitionStartLBA = 2048

func requireArgs(ctx *cli.Context, count int) error {
	if ctx.NArg() != count {
		return sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"%s takes %d argument(s), got %d; usage: %s %s",
				ctx.Command.Name,
				count,
				ctx.NArg(),
				ctx.Command.Name,
				ctx.Command.ArgsUsage))
	}
	return nil
}

func (env *environment) formatAction(ctx *cli.Context) error {
	path, err := env.imagePath(ctx)
	if err != nil {
		return err
	}

	options := env.config.Format
	totalSectors := uint64(0)
	if ctx.IsSet("preset") {
		preset, err := disks.Lookup(ctx.String("preset"))
		if err != nil {
			return err
		}
		totalSectors = uint64(preset.TotalSectors)
		options.SectorsPerCluster = preset.SectorsPerCluster
	}
	if ctx.IsSet("sectors") {
		totalSectors = ctx.Uint64("sectors")
	}
	if ctx.IsSet("label") {
		options.VolumeLabel = ctx.String("label")
	}
	if ctx.IsSet("cluster-sectors") {
		options.SectorsPerCluster = uint8(ctx.Uint("cluster-sectors"))
	}

	file, err := env.hostFs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return sdfat.ErrIOFailed.Wrap(err)
	}
	defer file.Close()

	currentSize, err := imageSize(file)
	if err != nil {
		return err
	}
	if totalSectors == 0 {
		totalSectors = uint64(currentSize) / imageSectorSize
	} else if int64(totalSectors*imageSectorSize) > currentSize {
		err = file.Truncate(int64(totalSectors * imageSectorSize))
		if err != nil {
			return sdfat.ErrIOFailed.Wrap(err)
		}
	}
	if totalSectors > math.MaxUint32 {
		return sdfat.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("%d sectors is too big for a FAT32 volume", totalSectors))
	}

	device := common.NewBlockStream(file, uint(totalSectors), imageSectorSize, 0)
	lbaStart := uint32(0)
	volumeSectors := uint32(totalSectors)
	if ctx.Bool("mbr") {
		if volumeSectors <= partitionStartLBA {
			return sdfat.ErrNoSpaceOnDevice.WithMessage(
				fmt.Sprintf("%d sectors leaves no room for a partition", volumeSectors))
		}
		lbaStart = partitionStartLBA
		volumeSectors -= partitionStartLBA
		err = mbr.WriteSinglePartitionTable(file, lbaStart, volumeSectors)
		if err != nil {
			return err
		}
	}

	err = fat32.Format(device, lbaStart, volumeSectors, options)
	if err != nil {
		return err
	}
	env.logger.WithFields(log.Fields{
		"image":   path,
		"start":   lbaStart,
		"sectors": volumeSectors,
	}).Info("formatted volume")
	return nil
}

func (env *environment) lsAction(ctx *cli.Context, s *session) error {
	path := "/"
	if ctx.NArg() > 0 {
		path = ctx.Args().First()
	}

	info, err := s.fs.Stat(path)
	if err != nil {
		return err
	}
	entries := []os.FileInfo{info}
	if info.IsDir() {
		entries, err = s.fs.ReadDir(path)
		if err != nil {
			return err
		}
	}

	if ctx.Bool("csv") {
		return writeListingCSV(ctx.App.Writer, entries)
	}
	return writeListingTable(ctx.App.Writer, entries)
}

func (env *environment) catAction(ctx *cli.Context, s *session) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	contents, err := s.fs.ReadFile(ctx.Args().First())
	if err != nil {
		return err
	}
	_, err = ctx.App.Writer.Write(contents)
	return err
}

func (env *environment) putAction(ctx *cli.Context, s *session) error {
	if err := requireArgs(ctx, 2); err != nil {
		return err
	}
	hostPath, volumePath := ctx.Args().Get(0), ctx.Args().Get(1)

	source, err := env.hostFs.Open(hostPath)
	if err != nil {
		return sdfat.ErrIOFailed.Wrap(err)
	}
	defer source.Close()

	target, err := s.fs.Create(volumePath)
	if err != nil {
		return err
	}
	copied, err := io.Copy(target, source)
	if err != nil {
		target.Close()
		return err
	}

	env.logger.WithFields(log.Fields{"from": hostPath, "to": volumePath, "bytes": copied}).
		Info("copied file to volume")
	return target.Close()
}

func (env *environment) getAction(ctx *cli.Context, s *session) error {
	if err := requireArgs(ctx, 2); err != nil {
		return err
	}
	volumePath, hostPath := ctx.Args().Get(0), ctx.Args().Get(1)

	source, err := s.fs.Open(volumePath)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := env.hostFs.Create(hostPath)
	if err != nil {
		return sdfat.ErrIOFailed.Wrap(err)
	}
	copied, err := io.Copy(target, source)
	if err != nil {
		target.Close()
		return sdfat.ErrIOFailed.Wrap(err)
	}

	env.logger.WithFields(log.Fields{"from": volumePath, "to": hostPath, "bytes": copied}).
		Info("copied file from volume")
	return target.Close()
}

func (env *environment) mkdirAction(ctx *cli.Context, s *session) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	if ctx.Bool("parents") {
		return s.fs.MkdirAll(ctx.Args().First())
	}
	return s.fs.Mkdir(ctx.Args().First())
}

func (env *environment) rmAction(ctx *cli.Context, s *session) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	if ctx.Bool("recursive") {
		return s.fs.RemoveAll(ctx.Args().First())
	}
	return s.fs.Remove(ctx.Args().First())
}

func (env *environment) mvAction(ctx *cli.Context, s *session) error {
	if err := requireArgs(ctx, 2); err != nil {
		return err
	}
	return s.fs.Rename(ctx.Args().Get(0), ctx.Args().Get(1))
}

func (env *environment) truncateAction(ctx *cli.Context, s *session) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	return s.fs.Truncate(ctx.Args().First(), ctx.Int64("size"))
}

func (env *environment) checkAction(ctx *cli.Context, s *session) error {
	report, err := s.volume.Check()
	fmt.Fprintf(
		ctx.App.Writer,
		"%d files, %d directories, %d clusters in use, %d orphaned\n",
		report.Files,
		report.Directories,
		report.ReachableClusters,
		len(report.Orphans))
	if err != nil {
		return err
	}

	if ctx.Bool("reclaim") && len(report.Orphans) > 0 {
		reclaimed, err := s.volume.ReclaimOrphans()
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.App.Writer, "reclaimed %d clusters\n", reclaimed)
	}
	return nil
}

func (env *environment) infoAction(ctx *cli.Context, s *session) error {
	geometry := s.volume.Geometry()
	stats, err := s.volume.Stats()
	if err != nil {
		return err
	}

	table := tabwriter.NewWriter(ctx.App.Writer, 0, 8, 2, ' ', 0)
	fmt.Fprintf(table, "label\t%s\n", s.volume.VolumeLabel())
	fmt.Fprintf(table, "first sector\t%d\n", geometry.LBAStart)
	fmt.Fprintf(table, "bytes per cluster\t%d\n", stats.BytesPerCluster)
	fmt.Fprintf(table, "FATs\t%d x %d sectors\n", geometry.NumFATs, geometry.SectorsPerFAT)
	fmt.Fprintf(table, "clusters\t%d\n", stats.TotalClusters)
	fmt.Fprintf(table, "free clusters\t%d\n", stats.FreeClusters)
	fmt.Fprintf(table, "free bytes\t%d\n", uint64(stats.FreeClusters)*uint64(stats.BytesPerCluster))
	return table.Flush()
}

func (env *environment) mandelbrotAction(ctx *cli.Context, s *session) error {
	path := "/OUTPUT.PGM"
	if ctx.NArg() > 0 {
		path = ctx.Args().First()
	}

	size := ctx.Int("size")
	pixels, err := pgm.Mandelbrot(size, ctx.Int("iterations"))
	if err != nil {
		return err
	}
	image, err := pgm.Encode(size, size, pixels)
	if err != nil {
		return err
	}
	return s.fs.WriteFile(path, image)
}

func (env *environment) packAction(ctx *cli.Context) error {
	return env.transformHostFile(ctx, compression.CompressImage, "compressed")
}

func (env *environment) unpackAction(ctx *cli.Context) error {
	return env.transformHostFile(ctx, compression.DecompressImage, "decompressed")
}

func (env *environment) transformHostFile(
	ctx *cli.Context,
	transform func(io.Reader, io.Writer) (int64, error),
	verb string,
) error {
	if err := requireArgs(ctx, 2); err != nil {
		return err
	}
	sourcePath, targetPath := ctx.Args().Get(0), ctx.Args().Get(1)

	source, err := env.hostFs.Open(sourcePath)
	if err != nil {
		return sdfat.ErrIOFailed.Wrap(err)
	}
	defer source.Close()

	target, err := env.hostFs.Create(targetPath)
	if err != nil {
		return sdfat.ErrIOFailed.Wrap(err)
	}
	written, err := transform(source, target)
	if err != nil {
		target.Close()
		return err
	}

	env.logger.WithFields(log.Fields{"from": sourcePath, "to": targetPath, "bytes": written}).
		Info(verb + " image")
	return target.Close()
}

func (env *environment) presetsAction(ctx *cli.Context) error {
	table := tabwriter.NewWriter(ctx.App.Writer, 0, 8, 2, ' ', 0)
	fmt.Fprintln(table, "SLUG\tSECTORS\tCLUSTER\tNAME")
	for _, preset := range disks.All() {
		fmt.Fprintf(
			table,
			"%s\t%d\t%d\t%s\n",
			preset.Slug,
			preset.TotalSectors,
			uint(preset.SectorsPerCluster)*disks.SectorSize,
			preset.Name)
	}
	return table.Flush()
}
