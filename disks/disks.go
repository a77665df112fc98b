// Package disks holds predefined FAT32 volume layouts, mostly sized like
// common SD cards.
package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/sdfat/sdfat"
	"github.com/sdfat/sdfat/drivers/fat32"
)

// Preset describes a volume size and the cluster size to format it with.
// Sectors are always 512 bytes.
type Preset struct {
	Name              string `csv:"name"`
	Slug              string `csv:"slug"`
	TotalSectors      uint32 `csv:"total_sectors"`
	SectorsPerCluster uint8  `csv:"sectors_per_cluster"`
	Notes             string `csv:"notes"`
}

// SectorSize is the sector size every preset assumes.
const SectorSize = 512

// TotalSizeBytes gives the size of an image holding the volume.
func (preset Preset) TotalSizeBytes() int64 {
	return int64(preset.TotalSectors) * SectorSize
}

// FormatOptions returns options for [fat32.Format] matching the preset. The
// rest of the options are left at their defaults.
func (preset Preset) FormatOptions() fat32.FormatOptions {
	return fat32.FormatOptions{SectorsPerCluster: preset.SectorsPerCluster}
}

//go:embed fat32-presets.csv
var presetsRawCSV string
var presets map[string]Preset

// Lookup returns the preset with the given slug, e.g. "sd-64m".
func Lookup(slug string) (Preset, error) {
	preset, ok := presets[strings.ToLower(slug)]
	if ok {
		return preset, nil
	}
	return Preset{}, sdfat.ErrNotFound.WithMessage(
		fmt.Sprintf("no predefined volume layout exists with slug %q", slug))
}

// All returns every preset, smallest first.
func All() []Preset {
	result := make([]Preset, 0, len(presets))
	for _, preset := range presets {
		result = append(result, preset)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TotalSectors < result[j].TotalSectors
	})
	return result
}

func init() {
	csvReader := csv.NewReader(strings.NewReader(presetsRawCSV))
	csvReader.Comma = '|'

	var rows []Preset
	err := gocsv.UnmarshalCSV(csvReader, &rows)
	if err != nil {
		panic(fmt.Errorf("failed to decode volume presets: %w", err))
	}

	presets = make(map[string]Preset, len(rows))
	for i, row := range rows {
		_, exists := presets[row.Slug]
		if exists {
			panic(fmt.Errorf("duplicate definition for preset %q found on row %d", row.Slug, i+1))
		}
		presets[row.Slug] = row
	}
}
