package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dchen22/vsfs"
	"github.com/dchen22/vsfs/disks"
	"github.com/dchen22/vsfs/file_systems/verysimple"
	"github.com/dchen22/vsfs/file_systems/verysimple/layoutmap"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func imagePathArg(context *cli.Context) (string, error) {
	if context.NArg() != 1 {
		msg := fmt.Sprintf("expected exactly one image file, got %d arguments", context.NArg())
		return "", vsfs.ErrInvalidArgument.WithMessage(msg)
	}
	return context.Args().First(), nil
}

// formatOptions builds the formatter options from the command line. Explicit
// flags override whatever the profile says.
func formatOptions(context *cli.Context) (verysimple.Options, error) {
	var options verysimple.Options

	if context.IsSet("profile") {
		profile, err := disks.GetProfile(context.String("profile"))
		if err != nil {
			return options, err
		}
		options = profile.FormatOptions()
	}

	if context.IsSet("size") {
		options.DiskSizeBytes = context.Uint64("size")
	}
	if context.IsSet("max-files") {
		options.MaxFiles = context.Uint64("max-files")
	}
	if context.IsSet("block-size") || options.BlockSize == 0 {
		options.BlockSize = context.Uint64("block-size")
	}

	if options.DiskSizeBytes == 0 || options.MaxFiles == 0 {
		return options, vsfs.ErrInvalidArgument.WithMessage(
			"--size and --max-files are required unless --profile is given")
	}

	options.PopulateRootDirectory = context.Bool("populate-root")
	options.Logger = logrus.WithField("image", context.Args().First())
	return options, nil
}

func formatImage(context *cli.Context) error {
	path, err := imagePathArg(context)
	if err != nil {
		return err
	}

	options, err := formatOptions(context)
	if err != nil {
		return err
	}

	sb, err := verysimple.Format(verysimple.FileOpener(path), options)
	if err != nil {
		return err
	}

	fmt.Fprintf(
		context.App.Writer,
		"Formatted %s: %d blocks of %d bytes, %d inodes, %d free data blocks\n",
		path,
		sb.TotalBlocks,
		sb.BlockSizeBytes,
		sb.MaxInodes,
		sb.FreeBlocks)
	return nil
}

func inspectImage(context *cli.Context) error {
	path, err := imagePathArg(context)
	if err != nil {
		return err
	}

	report, err := verysimple.InspectFile(path, uint(context.Uint64("block-size")))
	if err != nil {
		return err
	}

	if context.IsSet("png") {
		err = layoutmap.Render(report, context.String("png"))
		if err != nil {
			return err
		}
	}

	sb := report.Superblock
	layout := report.Layout
	writer := tabwriter.NewWriter(context.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Image\t%s\n", path)
	fmt.Fprintf(writer, "Size\t%d bytes\n", sb.DiskSizeBytes)
	fmt.Fprintf(writer, "Block size\t%d bytes\n", sb.BlockSizeBytes)
	fmt.Fprintf(writer, "Total blocks\t%d\n", sb.TotalBlocks)
	fmt.Fprintf(writer, "Inode bitmap\tblocks %d-%d\n",
		layout.InodeBitmapStart(), layout.DataBitmapStart()-1)
	fmt.Fprintf(writer, "Data bitmap\tblocks %d-%d\n",
		layout.DataBitmapStart(), layout.InodeTableStart()-1)
	fmt.Fprintf(writer, "Inode table\t%d blocks from %d, %d records\n",
		layout.InodeTableBlocks, layout.InodeTableStart(), layout.InodeTableCapacity())
	fmt.Fprintf(writer, "Data\t%d blocks from %d\n", layout.DataBlocks, layout.DataStart())
	fmt.Fprintf(writer, "Inodes\t%d of %d in use\n", sb.UsedInodes, sb.MaxInodes)
	fmt.Fprintf(writer, "Free blocks\t%d\n", sb.FreeBlocks)
	if report.InodesInUse > 0 {
		fmt.Fprintf(writer, "Root directory\t%d links, %d bytes, %d entries\n",
			report.Root.Nlinks, report.Root.Size, len(report.RootEntries))
	}
	return writer.Flush()
}

func listProfiles(context *cli.Context) error {
	writer := tabwriter.NewWriter(context.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "SLUG\tSIZE\tBLOCK SIZE\tMAX FILES\tNAME")
	for _, profile := range disks.ListProfiles() {
		blockSize := profile.BlockSize
		if blockSize == 0 {
			blockSize = verysimple.DefaultBlockSize
		}
		fmt.Fprintf(
			writer,
			"%s\t%d\t%d\t%d\t%s\n",
			profile.Slug,
			profile.DiskSizeBytes,
			blockSize,
			profile.MaxFiles,
			profile.Name)
	}
	return writer.Flush()
}
