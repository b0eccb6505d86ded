// mkiso packages the kernel image into a bootable ISO9660 image. The image
// carries a GPT with a single partition, GRUB's El Torito boot image and a
// generated grub.cfg that loads the kernel through the multiboot protocol.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"text/template"

	diskfs "github.com/diskfs/go-diskfs"
	diskpkg "github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/filesystem/iso9660"
	"github.com/diskfs/go-diskfs/partition/gpt"
)

const (
	blockSize      = diskfs.SectorSize(2048)
	partitionStart = 2048

	kernelPath  = "/boot/kernel.elf"
	grubCfgPath = "/boot/grub/grub.cfg"
	bootImgPath = "/boot/grub/i386-pc/eltorito.img"
	bootCatalog = "boot.cat"

	// bootLoadSize is the number of 512 byte sectors loaded by the BIOS.
	bootLoadSize = 4

	// gptTailBlocks are left free at the end of the disk for the backup
	// partition table.
	gptTailBlocks = 64
)

var grubCfgTemplate = template.Must(template.New("grub.cfg").Parse(`set timeout={{.Timeout}}
set default=0

menuentry "gravos" {
	multiboot {{.Kernel}}{{if .CmdLine}} {{.CmdLine}}{{end}}
	boot
}
`))

type options struct {
	kernel   string
	bootImg  string
	output   string
	cmdLine  string
	volumeID string
	timeout  uint
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[mkiso] error: %s\n", err.Error())
	os.Exit(1)
}

func main() {
	var opts options
	flag.StringVar(&opts.kernel, "kernel", "build/kernel.elf", "kernel image")
	flag.StringVar(&opts.bootImg, "boot-img", "/usr/lib/grub/i386-pc/eltorito.img", "GRUB El Torito boot image")
	flag.StringVar(&opts.output, "out", "build/gravos.iso", "output image")
	flag.StringVar(&opts.cmdLine, "cmdline", "", "kernel command line")
	flag.StringVar(&opts.volumeID, "volume", "GRAVOS", "volume identifier")
	flag.UintVar(&opts.timeout, "timeout", 0, "boot menu timeout in seconds")
	flag.Parse()

	if err := buildImage(opts); err != nil {
		exit(err)
	}
}

// grubConfig renders the boot menu.
func grubConfig(opts options) ([]byte, error) {
	var buf bytes.Buffer
	err := grubCfgTemplate.Execute(&buf, struct {
		Timeout uint
		Kernel  string
		CmdLine string
	}{opts.timeout, kernelPath, opts.cmdLine})
	return buf.Bytes(), err
}

// imageSize returns a disk size that fits the payload plus the partition
// table and ISO9660 metadata, rounded up to a whole number of blocks.
func imageSize(payload int64) int64 {
	const overhead = 2 << 20
	size := payload + overhead + partitionStart*int64(blockSize)
	if rem := size % int64(blockSize); rem != 0 {
		size += int64(blockSize) - rem
	}
	return size
}

func buildImage(opts options) error {
	cfg, err := grubConfig(opts)
	if err != nil {
		return err
	}

	var payload int64
	for _, path := range []string{opts.kernel, opts.bootImg} {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		payload += info.Size()
	}
	payload += int64(len(cfg))

	_ = os.Rename(opts.output, opts.output+".bak")

	diskSize := imageSize(payload)
	disk, err := diskfs.Create(opts.output, diskSize, diskfs.Raw, blockSize)
	if err != nil {
		return err
	}

	table := &gpt.Table{
		Partitions: []*gpt.Partition{
			{
				Start: uint64(partitionStart),
				End:   uint64(diskSize/int64(blockSize)) - gptTailBlocks,
				Type:  gpt.LinuxFilesystem,
				Name:  "gravos",
			},
		},
	}
	if err := disk.Partition(table); err != nil {
		return err
	}

	fs, err := disk.CreateFilesystem(diskpkg.FilesystemSpec{
		Partition:   0,
		FSType:      filesystem.TypeISO9660,
		VolumeLabel: opts.volumeID,
	})
	if err != nil {
		return err
	}

	if err := fs.Mkdir("/boot/grub/i386-pc"); err != nil {
		return err
	}

	if err := copyFile(fs, opts.kernel, kernelPath); err != nil {
		return err
	}
	if err := copyFile(fs, opts.bootImg, bootImgPath); err != nil {
		return err
	}
	if err := writeFile(fs, grubCfgPath, cfg); err != nil {
		return err
	}

	iso, ok := fs.(*iso9660.FileSystem)
	if !ok {
		return fmt.Errorf("unexpected filesystem type %T", fs)
	}

	return iso.Finalize(iso9660.FinalizeOptions{
		VolumeIdentifier: opts.volumeID,
		RockRidge:        true,
		ElTorito: &iso9660.ElTorito{
			BootCatalog: bootCatalog,
			Entries: []*iso9660.ElToritoEntry{
				{
					Platform:  iso9660.BIOS,
					Emulation: iso9660.NoEmulation,
					BootFile:  bootImgPath,
					BootTable: true,
					LoadSize:  bootLoadSize,
				},
			},
		},
	})
}

func copyFile(fs filesystem.FileSystem, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_RDWR)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func writeFile(fs filesystem.FileSystem, dst string, data []byte) error {
	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_RDWR)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = out.Write(data)
	return err
}
