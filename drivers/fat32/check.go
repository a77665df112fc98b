package fat32

import (
	"fmt"
	posixpath "path"

	"github.com/hashicorp/go-multierror"
	"github.com/sdfat/sdfat"
	c "github.com/sdfat/sdfat/drivers/common"
	log "github.com/sirupsen/logrus"
)

// CheckReport summarizes a consistency check of the volume.
type CheckReport struct {
	// Files and Directories count the entries reached from the root.
	Files       uint
	Directories uint
	// ReachableClusters is the number of clusters owned by some file or
	// directory, the root included.
	ReachableClusters uint
	// Orphans are clusters marked as used in the FAT that no file or directory
	// owns. They're typically left behind by an interrupted operation.
	Orphans []ClusterID
}

type checker struct {
	driver *Driver
	owners c.Allocator
	report CheckReport
	errors *multierror.Error
}

// Check walks every file and directory reachable from the root and verifies
// that the chains are well-formed, that no cluster belongs to two chains, and
// that every file's size fits its chain exactly. All problems found are
// returned together; orphaned clusters are only reported.
func (driver *Driver) Check() (CheckReport, error) {
	err := driver.checkMounted()
	if err != nil {
		return CheckReport{}, err
	}

	check := checker{
		driver: driver,
		owners: c.NewAllocator(uint(driver.table.Len())),
	}

	root, _ := driver.GetRoot()
	check.walkDirectory("/", root)

	for cluster := ClusterID(2); uint32(cluster) < driver.table.Len(); cluster++ {
		switch driver.table.TypeOf(cluster) {
		case UsedCluster, LastCluster:
			if !check.owners.IsAllocated(c.UnitID(cluster)) {
				check.report.Orphans = append(check.report.Orphans, cluster)
			}
		}
	}

	driver.log.WithFields(log.Fields{
		"files":       check.report.Files,
		"directories": check.report.Directories,
		"clusters":    check.report.ReachableClusters,
		"orphans":     len(check.report.Orphans),
	}).Info("consistency check finished")
	return check.report, check.errors.ErrorOrNil()
}

func (check *checker) fail(err error) {
	check.errors = multierror.Append(check.errors, err)
}

// claimChain lists the clusters of a chain and marks them as owned by `path`.
// It returns false if the chain is broken or shares clusters with another.
func (check *checker) claimChain(path string, start ClusterID) ([]ClusterID, bool) {
	clusters, err := check.driver.table.ListClusters(start)
	if err != nil {
		check.fail(fmt.Errorf("%s: %w", path, err))
		return nil, false
	}

	ok := true
	for _, cluster := range clusters {
		err = check.owners.Claim(c.UnitID(cluster))
		if err != nil {
			check.fail(
				sdfat.ErrFileSystemCorrupted.WithMessage(
					fmt.Sprintf("%s: cluster %d is cross-linked", path, cluster)))
			ok = false
			continue
		}
		check.report.ReachableClusters++
	}
	return clusters, ok
}

func (check *checker) walkDirectory(path string, dir Dirent) {
	check.report.Directories++
	if _, ok := check.claimChain(path, dir.FirstCluster); !ok {
		// Recursing into a cross-linked directory could loop forever.
		return
	}

	entries, err := check.driver.ReadDir(dir)
	if err != nil {
		check.fail(fmt.Errorf("%s: %w", path, err))
		return
	}

	for _, entry := range entries {
		raw := entry.raw
		if raw.IsDotEntry() {
			continue
		}

		entryPath := posixpath.Join(path, entry.Name())
		if entry.IsDir() {
			if entry.FirstCluster < 2 {
				check.fail(
					sdfat.ErrFileSystemCorrupted.WithMessage(
						fmt.Sprintf("%s: directory has no clusters", entryPath)))
				continue
			}
			check.walkDirectory(entryPath, entry)
			continue
		}

		check.report.Files++
		check.checkFile(entryPath, entry)
	}
}

func (check *checker) checkFile(path string, file Dirent) {
	clusters, ok := check.claimChain(path, file.FirstCluster)
	if !ok {
		return
	}

	bytesPerCluster := uint64(check.driver.clusters.BytesPerCluster())
	expected := (uint64(file.size) + bytesPerCluster - 1) / bytesPerCluster
	if uint64(len(clusters)) != expected {
		check.fail(
			sdfat.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"%s: %d bytes need %d clusters but the chain has %d",
					path,
					file.size,
					expected,
					len(clusters))))
	}
}

// ReclaimOrphans frees every orphaned cluster found by [Driver.Check] and
// returns how many were freed. It refuses to touch a volume with any other
// problem.
func (driver *Driver) ReclaimOrphans() (int, error) {
	report, err := driver.Check()
	if err != nil {
		return 0, sdfat.ErrFileSystemCorrupted.Wrap(err)
	}
	if len(report.Orphans) == 0 {
		return 0, nil
	}

	for _, cluster := range report.Orphans {
		err = driver.table.Set(cluster, FreeClusterValue)
		if err != nil {
			return 0, err
		}
	}

	driver.log.WithField("clusters", len(report.Orphans)).Info("reclaimed orphaned clusters")
	return len(report.Orphans), driver.flushTable()
}
