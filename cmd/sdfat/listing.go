package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gocarina/gocsv"
)

// listingRow is one line of `sdfat ls` output.
type listingRow struct {
	Name     string `csv:"name"`
	Type     string `csv:"type"`
	Size     int64  `csv:"size"`
	Mode     string `csv:"mode"`
	Modified string `csv:"modified"`
}

func newListingRows(entries []os.FileInfo) []listingRow {
	rows := make([]listingRow, len(entries))
	for i, entry := range entries {
		kind := "file"
		if entry.IsDir() {
			kind = "dir"
		}
		rows[i] = listingRow{
			Name:     entry.Name(),
			Type:     kind,
			Size:     entry.Size(),
			Mode:     entry.Mode().String(),
			Modified: entry.ModTime().Format(time.RFC3339),
		}
	}
	return rows
}

func writeListingCSV(w io.Writer, entries []os.FileInfo) error {
	rows := newListingRows(entries)
	return gocsv.Marshal(&rows, w)
}

func writeListingTable(w io.Writer, entries []os.FileInfo) error {
	table := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, row := range newListingRows(entries) {
		fmt.Fprintf(table, "%s\t%d\t%s\t%s\n", row.Mode, row.Size, row.Modified, row.Name)
	}
	return table.Flush()
}
