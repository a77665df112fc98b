package sdfat

import "os"

// IOFlags are the flags passed to OpenFile. They have the same values as the
// flags in the os package, so either can be used.
type IOFlags int

const (
	O_RDONLY = IOFlags(os.O_RDONLY)
	O_WRONLY = IOFlags(os.O_WRONLY)
	O_RDWR   = IOFlags(os.O_RDWR)
	O_APPEND = IOFlags(os.O_APPEND)
	O_CREATE = IOFlags(os.O_CREATE)
	O_EXCL   = IOFlags(os.O_EXCL)
	O_TRUNC  = IOFlags(os.O_TRUNC)
)

const accessModeMask = O_RDONLY | O_WRONLY | O_RDWR

func (flags IOFlags) CanRead() bool {
	access := flags & accessModeMask
	return access == O_RDONLY || access == O_RDWR
}

func (flags IOFlags) CanWrite() bool {
	access := flags & accessModeMask
	return access == O_WRONLY || access == O_RDWR
}

func (flags IOFlags) Append() bool {
	return flags&O_APPEND != 0
}

func (flags IOFlags) Create() bool {
	return flags&O_CREATE != 0
}

func (flags IOFlags) Exclusive() bool {
	return flags&O_EXCL != 0
}

func (flags IOFlags) Truncate() bool {
	return flags&O_TRUNC != 0
}
