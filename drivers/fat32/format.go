package fat32

import (
	"fmt"
	"strings"

	"github.com/sdfat/sdfat"
)

// FormatOptions controls the layout of a new volume. Zero values are replaced
// with defaults.
type FormatOptions struct {
	// SectorsPerCluster must be a power of 2 in 1-128. Defaults to 1 for
	// volumes under 64 MiB, 8 otherwise.
	SectorsPerCluster uint8 `yaml:"sectors_per_cluster"`
	// NumFATs defaults to 2.
	NumFATs uint8 `yaml:"fats"`
	// ReservedSectors defaults to 32 and can't be less than 8.
	ReservedSectors uint16 `yaml:"reserved_sectors"`
	// VolumeLabel is stored in the boot sector and as an entry in the root
	// directory. Empty means "NO NAME" and no root entry.
	VolumeLabel string `yaml:"label"`
	VolumeID    uint32 `yaml:"volume_id"`
	OEMName     string `yaml:"oem_name"`
}

const (
	defaultReservedSectors = 32
	backupBootSector       = 6
	fsInfoSector           = 1
	mediaFixedDisk         = 0xF8
)

func (options FormatOptions) withDefaults(totalSectors uint32, sectorSize uint) FormatOptions {
	if options.SectorsPerCluster == 0 {
		if uint64(totalSectors)*uint64(sectorSize) < 64*1024*1024 {
			options.SectorsPerCluster = 1
		} else {
			options.SectorsPerCluster = 8
		}
	}
	if options.NumFATs == 0 {
		options.NumFATs = 2
	}
	if options.ReservedSectors == 0 {
		options.ReservedSectors = defaultReservedSectors
	}
	if options.OEMName == "" {
		options.OEMName = "SDFAT"
	}
	return options
}

// computeSectorsPerFAT finds the smallest FAT that can describe every cluster
// left over once the FATs themselves have taken their share of the volume.
func computeSectorsPerFAT(
	totalSectors uint32, reserved, sectorsPerCluster, numFATs, sectorSize uint32,
) (uint32, error) {
	sectorsPerFAT := uint32(1)
	for {
		metadata := reserved + numFATs*sectorsPerFAT
		if metadata+sectorsPerCluster > totalSectors {
			return 0, sdfat.ErrNoSpaceOnDevice.WithMessage(
				fmt.Sprintf("%d sectors is too small for a FAT32 volume", totalSectors))
		}

		clusters := (totalSectors - metadata) / sectorsPerCluster
		needed := ((clusters+2)*4 + sectorSize - 1) / sectorSize
		if needed <= sectorsPerFAT {
			return sectorsPerFAT, nil
		}
		sectorsPerFAT = needed
	}
}

func padName(name string, length int) []byte {
	padded := []byte(strings.Repeat(" ", length))
	copy(padded, strings.ToUpper(name))
	return padded
}

// Format creates an empty FAT32 volume of `totalSectors` sectors whose boot
// sector is at `lbaStart`. Anything already in that range of the device is
// lost.
func Format(
	device sdfat.BlockDevice,
	lbaStart uint32,
	totalSectors uint32,
	options FormatOptions,
) error {
	sectorSize := device.SectorSize()
	options = options.withDefaults(totalSectors, sectorSize)

	switch options.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"sectors per cluster must be a power of 2 in 1-128, got %d",
				options.SectorsPerCluster))
	}
	if options.ReservedSectors <= backupBootSector+1 {
		return sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"need more than %d reserved sectors, got %d",
				backupBootSector+1,
				options.ReservedSectors))
	}
	if len(options.VolumeLabel) > 11 {
		return sdfat.ErrNameTooLong.WithMessage(
			fmt.Sprintf("volume label %q is longer than 11 characters", options.VolumeLabel))
	}

	sectorsPerFAT, err := computeSectorsPerFAT(
		totalSectors,
		uint32(options.ReservedSectors),
		uint32(options.SectorsPerCluster),
		uint32(options.NumFATs),
		uint32(sectorSize),
	)
	if err != nil {
		return err
	}

	boot := RawBootSector{
		JmpBoot:           [3]byte{0xEB, 0x58, 0x90},
		BytesPerSector:    uint16(sectorSize),
		SectorsPerCluster: options.SectorsPerCluster,
		ReservedSectors:   options.ReservedSectors,
		NumFATs:           options.NumFATs,
		Media:             mediaFixedDisk,
		SectorsPerTrack:   63,
		NumHeads:          255,
		HiddenSectors:     lbaStart,
		TotalSectors32:    totalSectors,
		SectorsPerFAT32:   sectorsPerFAT,
		RootCluster:       2,
		FSInfoSector:      fsInfoSector,
		BackupBootSector:  backupBootSector,
		DriveNumber:       0x80,
		BootSignature:     extendedBootSig,
		VolumeID:          options.VolumeID,
	}
	copy(boot.OEMName[:], padName(options.OEMName, 8))
	copy(boot.FileSystemType[:], padName("FAT32", 8))
	if options.VolumeLabel == "" {
		copy(boot.VolumeLabel[:], padName("NO NAME", 11))
	} else {
		copy(boot.VolumeLabel[:], padName(options.VolumeLabel, 11))
	}

	geometry := NewGeometry(lbaStart, &boot)

	bootBytes, err := boot.Bytes(sectorSize)
	if err != nil {
		return err
	}
	fsInfo := NewFSInfo(geometry.TotalClusters-1, 3)
	fsInfoBytes, err := fsInfo.Bytes(sectorSize)
	if err != nil {
		return err
	}

	// Reserved region, with the backup copies of the boot and FSInfo sectors.
	reserved := make([]byte, uint(options.ReservedSectors)*sectorSize)
	copy(reserved, bootBytes)
	copy(reserved[fsInfoSector*sectorSize:], fsInfoBytes)
	copy(reserved[backupBootSector*sectorSize:], bootBytes)
	copy(reserved[(backupBootSector+fsInfoSector)*sectorSize:], fsInfoBytes)
	err = device.WriteSectors(lbaStart, reserved)
	if err != nil {
		return err
	}

	// Every copy of the FAT starts out the same: the two reserved entries and
	// the root directory's one-cluster chain.
	entries := make([]uint32, geometry.EntriesPerFAT)
	entries[0] = 0x0FFFFF00 | mediaFixedDisk
	entries[1] = EndOfChainValue
	entries[2] = EndOfChainValue
	fatBytes := NewTable(entries, geometry.UsableEntries()).Bytes()
	for i := uint32(0); i < geometry.NumFATs; i++ {
		err = device.WriteSectors(geometry.FATBeginLBA+i*sectorsPerFAT, fatBytes)
		if err != nil {
			return err
		}
	}

	root := make([]byte, geometry.BytesPerCluster())
	if options.VolumeLabel != "" {
		label := RawDirent{AttributeFlags: AttrVolumeLabel | AttrArchived}
		copy(label.Name[:], padName(options.VolumeLabel, 11))
		copy(root, label.Bytes())
	}
	return device.WriteSectors(geometry.ClusterToLBA(2), root)
}
