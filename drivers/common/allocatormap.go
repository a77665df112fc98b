// Bitmap allocation tracking

package common

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/sdfat/sdfat"
)

type UnitID uint32

// Allocator tracks which units (clusters, sectors...) are in use with one bit
// per unit.
type Allocator struct {
	AllocationBitmap bitmap.Bitmap
	TotalUnits       uint
}

// NewAllocator creates a new allocation bitmap with all bits cleared.
func NewAllocator(totalUnits uint) Allocator {
	return Allocator{
		AllocationBitmap: bitmap.New(int(totalUnits)),
		TotalUnits:       totalUnits,
	}
}

func (alloc *Allocator) checkUnit(unit UnitID) error {
	if uint(unit) >= alloc.TotalUnits {
		return sdfat.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid unit id: %d not in range [0, %d)",
				unit,
				alloc.TotalUnits))
	}
	return nil
}

// IsAllocated returns true if the unit is marked as in use. Units out of range
// are never allocated.
func (alloc *Allocator) IsAllocated(unit UnitID) bool {
	if alloc.checkUnit(unit) != nil {
		return false
	}
	return alloc.AllocationBitmap.Get(int(unit))
}

// Claim marks a unit as in use. Claiming a unit that's already in use returns
// an error wrapping [sdfat.ErrAlreadyInProgress] and leaves the bitmap as is.
func (alloc *Allocator) Claim(unit UnitID) error {
	err := alloc.checkUnit(unit)
	if err != nil {
		return err
	}
	if alloc.AllocationBitmap.Get(int(unit)) {
		return sdfat.ErrAlreadyInProgress.WithMessage(
			fmt.Sprintf("unit %d is already allocated", unit))
	}
	alloc.AllocationBitmap.Set(int(unit), true)
	return nil
}

// AllocateSingle allocates the first available unit it finds and returns its
// index. If no units are available, it returns an error.
func (alloc *Allocator) AllocateSingle() (UnitID, error) {
	for i := uint(0); i < alloc.TotalUnits; i++ {
		if !alloc.AllocationBitmap.Get(int(i)) {
			alloc.AllocationBitmap.Set(int(i), true)
			return UnitID(i), nil
		}
	}
	return 0, sdfat.ErrNoSpaceOnDevice
}

// FreeSingle frees an allocated unit. Trying to free a unit that isn't
// allocated is an error.
func (alloc *Allocator) FreeSingle(unit UnitID) error {
	err := alloc.checkUnit(unit)
	if err != nil {
		return err
	}
	if !alloc.AllocationBitmap.Get(int(unit)) {
		return sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unit %d is already free", unit))
	}

	alloc.AllocationBitmap.Set(int(unit), false)
	return nil
}

// CountAllocated gives the number of units marked as in use.
func (alloc *Allocator) CountAllocated() uint {
	total := uint(0)
	for i := uint(0); i < alloc.TotalUnits; i++ {
		if alloc.AllocationBitmap.Get(int(i)) {
			total++
		}
	}
	return total
}
