// Package common contains the block and cluster plumbing shared by the file
// system driver, the formatter and the tools.
package common

import "math"

type LogicalBlock uint
type ClusterID uint32

const InvalidLogicalBlock = LogicalBlock(math.MaxUint)

// Truncator is an interface for objects that support a Truncate() method. This
// method must behave just like [os.File.Truncate].
type Truncator interface {
	Truncate(size int64) error
}
