package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	blocks "machinerun.io/blockconv"
	"machinerun.io/blockconv/blocks/linux"
)

var version string

func main() {
	app := &cli.App{
		Name:    "blockconv",
		Usage:   "convert and resize block device layouts in place",
		Version: version,
		Commands: []*cli.Command{
			toLvmCommand(),
			toBcacheCommand(),
			resizeCommand(),
			rotateCommand(),
			maintbootImplCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func toLvmCommand() *cli.Command {
	return &cli.Command{
		Name:      "to-lvm",
		Aliases:   []string{"lvmify"},
		Usage:     "convert a plain filesystem-on-device into an LV in place",
		ArgsUsage: "DEVICE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "vg-name", Usage: "name for the synthesized VG (default vg.<basename>)"},
			&cli.StringFlag{Name: "join", Usage: "merge the synthesized VG into this existing VG"},
		},
		Action: func(c *cli.Context) error {
			devPath := c.Args().First()
			if devPath == "" {
				return fmt.Errorf("to-lvm requires a DEVICE argument")
			}

			sys := linux.System{}
			progress := blocks.CLIProgressHandler{}

			if err := blocks.RequireLVM(progress); err != nil {
				return err
			}

			dev := sys.NewDevice(devPath)

			fp, err := dev.(interface{ File() (*os.File, error) }).File()
			if err != nil {
				return err
			}
			defer fp.Close()

			lv, err := blocks.InjectLvm(blocks.LvmInjectRequest{
				Device:       dev,
				VgName:       c.String("vg-name"),
				Join:         c.String("join"),
				NewContainer: linux.NewContainer,
				NewFs:        linux.NewFs,
			}, fp, sys.LvmMaker(), sys.VolumeManager(), progress)
			if err != nil {
				return err
			}

			progress.Notify(fmt.Sprintf("converted %s to LV %s", devPath, lv.Name))

			return nil
		},
	}
}

func toBcacheCommand() *cli.Command {
	return &cli.Command{
		Name:      "to-bcache",
		Usage:     "inject a bcache backing superblock ahead of an existing layer, in place",
		ArgsUsage: "DEVICE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "strategy", Required: true, Usage: "partition|luks|lv"},
			&cli.StringFlag{Name: "cset-uuid", Usage: "bcache cache set UUID to register against"},
			&cli.StringFlag{Name: "partition-device", Usage: "whole-disk device, required for --strategy=partition"},
			&cli.IntFlag{Name: "partition-index", Usage: "1-based partition number, required for --strategy=partition"},
			&cli.StringFlag{Name: "vg-name", Usage: "VG name, required for --strategy=lv"},
			&cli.StringFlag{Name: "lv-name", Usage: "LV name, required for --strategy=lv"},
		},
		Action: func(c *cli.Context) error {
			devPath := c.Args().First()
			if devPath == "" {
				return fmt.Errorf("to-bcache requires a DEVICE argument")
			}

			strategy, err := parseBcacheStrategy(c.String("strategy"))
			if err != nil {
				return err
			}

			sys := linux.System{}
			progress := blocks.CLIProgressHandler{}

			if err := blocks.RequireBcache(progress); err != nil {
				return err
			}

			dev := sys.NewDevice(devPath)

			stack, err := sys.Discover(dev)
			if err != nil {
				return err
			}

			fp, err := dev.(interface{ File() (*os.File, error) }).File()
			if err != nil {
				return err
			}
			defer fp.Close()

			err = blocks.InjectBcache(blocks.BcacheInjectRequest{
				Stack:           stack,
				Strategy:        strategy,
				CsetUUID:        c.String("cset-uuid"),
				PartitionDevice: c.String("partition-device"),
				PartitionIndex:  c.Int("partition-index"),
				VgName:          c.String("vg-name"),
				LvName:          c.String("lv-name"),
			}, fp, sys.BcacheMaker(), sys.PartitionMover(), sys.VolumeManager(), progress)
			if err != nil {
				return err
			}

			progress.Notify(fmt.Sprintf("injected bcache backing superblock on %s", devPath))

			return nil
		},
	}
}

func parseBcacheStrategy(s string) (blocks.BcacheStrategy, error) {
	switch s {
	case "partition":
		return blocks.PartitionStrategy, nil
	case "luks":
		return blocks.LuksStrategy, nil
	case "lv":
		return blocks.LvStrategy, nil
	default:
		return 0, fmt.Errorf("unknown --strategy %q, want partition|luks|lv", s)
	}
}

func resizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "resize",
		Usage:     "grow or shrink a device and everything stacked on it together",
		ArgsUsage: "DEVICE NEWSIZE",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "resize-device", Value: true, Usage: "also grow/shrink the device itself (partition or LV)"},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return fmt.Errorf("resize requires DEVICE and NEWSIZE arguments")
			}

			devPath := c.Args().Get(0)

			newSize, err := blocks.ParseSize(c.Args().Get(1))
			if err != nil {
				return err
			}

			sys := linux.System{}
			progress := blocks.CLIProgressHandler{}
			dev := sys.NewDevice(devPath)

			err = blocks.Resize(blocks.ResizeRequest{
				Device:       dev,
				NewSize:      newSize,
				ResizeDevice: c.Bool("resize-device"),
				NewContainer: linux.NewContainer,
				NewFs:        linux.NewFs,
			}, sys.DeviceResizer(), progress)
			if err != nil {
				return err
			}

			progress.Notify(fmt.Sprintf("resized %s to %d bytes", devPath, newSize))

			return nil
		},
	}
}

func rotateCommand() *cli.Command {
	return &cli.Command{
		Name:      "rotate",
		Usage:     "rotate an LV's extent mapping forward or backward by one PE (bcache lv-strategy helper)",
		ArgsUsage: "VGNAME LVNAME",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "backward", Usage: "rotate backward instead of forward"},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return fmt.Errorf("rotate requires VGNAME and LVNAME arguments")
			}

			vgName, lvName := c.Args().Get(0), c.Args().Get(1)

			sys := linux.System{}
			progress := blocks.CLIProgressHandler{}

			if err := blocks.RequireLVM(progress); err != nil {
				return err
			}

			text, err := sys.VolumeManager().DumpVG(vgName)
			if err != nil {
				return err
			}

			cfg, err := blocks.ParseVgConfig(text)
			if err != nil {
				return err
			}

			var rotated blocks.VgConfig
			if c.Bool("backward") {
				rotated, err = blocks.RotateBackward(cfg, lvName)
			} else {
				rotated, err = blocks.RotateForward(cfg, lvName)
			}

			if err != nil {
				return err
			}

			if err := sys.VolumeManager().RestoreVG(vgName, blocks.RenderVgConfig(rotated)); err != nil {
				return err
			}

			progress.Notify("rotated " + vgName + "/" + lvName)

			return nil
		},
	}
}

// maintbootImplCommand is a stub: the maintboot helper that drives an
// interactive maintenance-boot layout swap is an external collaborator
// and out of scope here, matching spec.md §1.
func maintbootImplCommand() *cli.Command {
	return &cli.Command{
		Name:   "maintboot-impl",
		Usage:  "internal entrypoint invoked by the external maintboot helper (not implemented here)",
		Hidden: true,
		Action: func(c *cli.Context) error {
			return blocks.ErrUnsupportedLayout
		},
	}
}
