package main

import (
	"github.com/spf13/cobra"

	"github.com/unodos/unoimg/deviceconfig"
	"github.com/unodos/unoimg/image"
	"github.com/unodos/unoimg/output"
)

func graftCmd() *cobra.Command {
	var (
		fsPath  string
		osPath  string
		profile string
		sectors int
		o       outputFlags
	)
	cmd := &cobra.Command{
		Use:   "graft --fs fs.img --os os.img -o bootable.img",
		Short: "Merge the boot sector and loader of an OS image into a FAT image",
		Long: `Merge the boot sector and loader of an OS image into a FAT image.

The boot sector of the OS image keeps its code but takes the BPB of the FAT
image. The following OS sectors are copied into the reserved sectors of the
FAT image, which must be large enough to hold them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("sectors") {
				p, ok := deviceconfig.GetProfileBySlug(profile)
				if !ok {
					return errUnknownProfile(profile)
				}
				sectors = p.BootCodeSectors
			}
			fsImage, err := output.Read(fsys, fsPath)
			if err != nil {
				return err
			}
			osImage, err := output.Read(fsys, osPath)
			if err != nil {
				return err
			}
			img, err := image.MergeBootCode(fsImage, osImage, sectors)
			if err != nil {
				return err
			}
			return o.write(img, nil)
		},
	}
	cmd.Flags().StringVar(&fsPath, "fs", "", "FAT image built by unoimg floppy")
	cmd.Flags().StringVar(&osPath, "os", "", "OS image providing the boot sector and loader")
	cmd.Flags().StringVarP(&profile, "profile", "p", "bootable144", "profile providing the number of boot code sectors")
	cmd.Flags().IntVar(&sectors, "sectors", 0, "number of OS sectors to merge, including the boot sector (default: from the profile)")
	cmd.MarkFlagRequired("fs")
	cmd.MarkFlagRequired("os")
	o.register(cmd, "bootable.img")
	return cmd
}
