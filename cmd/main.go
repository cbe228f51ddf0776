package main

import (
	"os"

	"github.com/dchen22/vsfs/file_systems/verysimple"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := newApp()
	err := app.Run(os.Args)
	if err != nil {
		logrus.Fatalf("fatal error: %s", err.Error())
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "vsfs",
		Usage: "Create and inspect VSFS disk images",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log debugging information",
			},
		},
		Before: func(context *cli.Context) error {
			if context.Bool("verbose") {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create or wipe an image",
				Action:    formatImage,
				ArgsUsage: "IMAGE_FILE",
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:    "size",
						Aliases: []string{"s"},
						Usage:   "size of the image, in bytes",
					},
					&cli.Uint64Flag{
						Name:    "max-files",
						Aliases: []string{"n"},
						Usage:   "maximum number of inodes",
					},
					&cli.Uint64Flag{
						Name:  "block-size",
						Usage: "block size, in bytes",
						Value: verysimple.DefaultBlockSize,
					},
					&cli.StringFlag{
						Name:    "profile",
						Aliases: []string{"p"},
						Usage:   "take the size and file count from a predefined profile",
					},
					&cli.BoolFlag{
						Name:  "populate-root",
						Usage: "write \".\" and \"..\" entries into the root directory",
					},
				},
			},
			{
				Name:      "inspect",
				Usage:     "Check an image and print its layout",
				Action:    inspectImage,
				ArgsUsage: "IMAGE_FILE",
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:  "block-size",
						Usage: "block size the image was formatted with, in bytes",
						Value: verysimple.DefaultBlockSize,
					},
					&cli.StringFlag{
						Name:  "png",
						Usage: "also draw a map of the image's regions into this PNG file",
					},
				},
			},
			{
				Name:   "profiles",
				Usage:  "List the predefined image profiles",
				Action: listProfiles,
			},
		},
	}
}
