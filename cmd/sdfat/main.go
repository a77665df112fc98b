// Command sdfat manages FAT32 volumes in disk images, SD card dumps and raw
// block devices.
package main

import (
	"fmt"
	"os"

	"github.com/sdfat/sdfat"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

var defaultLogFormatter = &log.TextFormatter{}

// infoFormatter prints Info() events as bare messages, which is easier to read
// on a terminal.
type infoFormatter struct{}

func (f *infoFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Level == log.InfoLevel && len(entry.Data) == 0 {
		return append([]byte(entry.Message), '\n'), nil
	}
	return defaultLogFormatter.Format(entry)
}

// configure merges the config file into the environment and sets up logging.
func (env *environment) configure(ctx *cli.Context) error {
	configPath := ctx.String("config")
	config, err := readConfig(env.hostFs, configPath, ctx.IsSet("config"))
	if err != nil {
		return err
	}
	env.config = config

	levelName := config.LogLevel
	if ctx.IsSet("log-level") {
		levelName = ctx.String("log-level")
	}
	if ctx.Bool("verbose") {
		levelName = "debug"
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return sdfat.ErrInvalidArgument.Wrap(err)
	}
	env.logger.SetLevel(level)
	return nil
}

func newApp(env *environment) *cli.App {
	return &cli.App{
		Name:  "sdfat",
		Usage: "Read and write FAT32 volumes in disk images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "disk image or block device holding the volume",
				EnvVars: []string{"SDFAT_IMAGE"},
			},
			&cli.StringFlag{
				Name:    "partition",
				Aliases: []string{"p"},
				Usage:   "\"auto\", \"none\", or the index of the MBR partition to use",
				Value:   "auto",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the config file",
				Value: defaultConfigPath(),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "one of panic, fatal, error, warning, info, debug, trace",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "same as --log-level=debug",
			},
		},
		Before: env.configure,
		Commands: []*cli.Command{
			{
				Name:   "format",
				Usage:  "Create a new, empty FAT32 volume",
				Action: env.formatAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "preset", Usage: "predefined volume size, see `sdfat presets`"},
					&cli.Uint64Flag{Name: "sectors", Usage: "size of the image in 512-byte sectors"},
					&cli.StringFlag{Name: "label", Usage: "volume label, up to 11 characters"},
					&cli.UintFlag{Name: "cluster-sectors", Usage: "sectors per cluster"},
					&cli.BoolFlag{Name: "mbr", Usage: "put the volume in a partition"},
				},
			},
			{
				Name:      "ls",
				Usage:     "List a directory",
				ArgsUsage: "[PATH]",
				Action:    env.withVolume(env.lsAction),
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "csv", Usage: "write the listing as CSV"},
				},
			},
			{
				Name:      "cat",
				Usage:     "Print the contents of a file",
				ArgsUsage: "PATH",
				Action:    env.withVolume(env.catAction),
			},
			{
				Name:      "put",
				Usage:     "Copy a file from the host into the volume",
				ArgsUsage: "HOST_FILE PATH",
				Action:    env.withVolume(env.putAction),
			},
			{
				Name:      "get",
				Usage:     "Copy a file from the volume to the host",
				ArgsUsage: "PATH HOST_FILE",
				Action:    env.withVolume(env.getAction),
			},
			{
				Name:      "mkdir",
				Usage:     "Create a directory",
				ArgsUsage: "PATH",
				Action:    env.withVolume(env.mkdirAction),
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "parents", Aliases: []string{"p"}, Usage: "create missing parents"},
				},
			},
			{
				Name:      "rm",
				Usage:     "Remove a file or an empty directory",
				ArgsUsage: "PATH",
				Action:    env.withVolume(env.rmAction),
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "remove directories and their contents"},
				},
			},
			{
				Name:      "mv",
				Usage:     "Rename a file or directory",
				ArgsUsage: "OLD_PATH NEW_PATH",
				Action:    env.withVolume(env.mvAction),
			},
			{
				Name:      "truncate",
				Usage:     "Change the size of a file",
				ArgsUsage: "PATH",
				Action:    env.withVolume(env.truncateAction),
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "size", Aliases: []string{"s"}, Required: true},
				},
			},
			{
				Name:   "check",
				Usage:  "Check the volume for errors",
				Action: env.withVolume(env.checkAction),
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reclaim", Usage: "free orphaned clusters"},
				},
			},
			{
				Name:   "info",
				Usage:  "Show the layout of the volume and how much space is free",
				Action: env.withVolume(env.infoAction),
			},
			{
				Name:      "mandelbrot",
				Usage:     "Render the Mandelbrot set into a PGM image on the volume",
				ArgsUsage: "[PATH]",
				Action:    env.withVolume(env.mandelbrotAction),
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "size", Value: 128, Usage: "width and height in pixels"},
					&cli.IntFlag{Name: "iterations", Value: 64},
				},
			},
			{
				Name:      "pack",
				Usage:     "Compress a host image file with RLE8 and gzip",
				ArgsUsage: "IMAGE OUTPUT",
				Action:    env.packAction,
			},
			{
				Name:      "unpack",
				Usage:     "Decompress an image made with `pack`",
				ArgsUsage: "PACKED_IMAGE OUTPUT",
				Action:    env.unpackAction,
			},
			{
				Name:   "presets",
				Usage:  "List the predefined volume sizes",
				Action: env.presetsAction,
			},
		},
	}
}

func main() {
	logger := log.New()
	logger.SetFormatter(new(infoFormatter))

	env := &environment{
		hostFs: afero.NewOsFs(),
		logger: logger,
	}

	err := newApp(env).Run(os.Args)
	if err == nil {
		return
	}
	if sdfat.IsFatal(err) {
		logger.Fatalf("fatal error: %s", err)
	}
	fmt.Fprintf(os.Stderr, "sdfat: %s\n", err)
	os.Exit(1)
}
