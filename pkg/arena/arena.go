// Package arena provides a tree-scoped, categorized memory manager.
//
// Every dynamically sized buffer used while processing one merger tree is
// allocated through an Arena and tagged with a Category. The arena keeps
// aggregate byte and allocation counters per category instead of a global
// block table, so releasing an allocation is O(1) regardless of how many
// allocations are live. At tree teardown AssertNoLeaks enforces that every
// category has drained to zero bytes.
//
// An Arena is not safe for concurrent use. Each pipeline worker owns its own
// instance; sharing one across goroutines is a programmer error.
package arena

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Category tags an allocation with its purpose. Every allocation declares
// exactly one category, and the per-category outstanding byte count must
// reach zero before the owning tree's arena is torn down.
type Category int

// Allocation categories, one per subsystem that owns arena memory.
const (
	// CategoryTreeInput holds the immutable raw halo array for one tree.
	CategoryTreeInput Category = iota
	// CategoryHaloTracking holds the workspace buffer, the processed
	// history array, and the per-halo bookkeeping table.
	CategoryHaloTracking
	// CategoryIOStaging holds transient buffers used while reading tree
	// files and writing catalogues.
	CategoryIOStaging
	// CategoryUtility holds small scratch allocations with no better home.
	CategoryUtility
	// CategoryExtensionData holds the extension slots attached to tracked
	// halos.
	CategoryExtensionData

	numCategories
)

var categoryNames = [numCategories]string{
	"tree-input",
	"halo-tracking",
	"io-staging",
	"utility",
	"extension-data",
}

// String returns the category's canonical name.
func (c Category) String() string {
	if c < 0 || c >= numCategories {
		return fmt.Sprintf("category(%d)", int(c))
	}

	return categoryNames[c]
}

// Handle identifies one live allocation within its arena. Handle zero is
// reserved and never issued.
type Handle uint32

// guardLength is the number of guard bytes placed on each side of a byte
// allocation when the arena runs in debug mode.
const guardLength = 8

// guardByte is the fill pattern for guard regions.
const guardByte = 0xA5

// growNumerator and growDenominator define the 3/2 geometric growth factor
// used when a grown allocation needs more capacity than it currently has.
const (
	growNumerator   = 3
	growDenominator = 2
)

// CategoryStats aggregates the live allocations of one category.
type CategoryStats struct {
	// Bytes is the total outstanding payload size.
	Bytes int64
	// Allocations is the number of live allocations.
	Allocations int64
}

type allocation struct {
	category Category
	size     int64
	// data is non-nil for byte allocations and nil for externally backed
	// (typed slice) allocations, which are accounted but not stored here.
	data []byte
}

// Arena is a scoped, categorized allocator with leak detection.
type Arena struct {
	allocs    map[Handle]*allocation
	next      Handle
	perCat    [numCategories]CategoryStats
	inUse     int64
	highWater int64
	debug     bool
}

// New creates an empty arena.
func New() *Arena {
	return &Arena{
		allocs: map[Handle]*allocation{},
		next:   1,
	}
}

// NewDebug creates an arena that surrounds every byte allocation with guard
// regions and verifies them on release and on CheckIntegrity.
func NewDebug() *Arena {
	a := New()
	a.debug = true

	return a
}

// Allocate reserves size bytes in the given category and returns a handle to
// the new allocation. Allocation failure is fatal; there is no recovery path
// in the middle of a tree traversal.
func (a *Arena) Allocate(size int, category Category) Handle {
	if size < 0 {
		panic(fmt.Sprintf("arena: negative allocation size %d (%s)", size, category))
	}

	a.checkCategory(category)

	alloc := &allocation{category: category, size: int64(size)}
	if a.debug {
		alloc.data = make([]byte, size+2*guardLength)
		fillGuards(alloc.data)
	} else {
		alloc.data = make([]byte, size)
	}

	return a.track(alloc)
}

// Bytes returns the payload of a byte allocation. The slice stays valid
// until the allocation is grown or released.
func (a *Arena) Bytes(handle Handle) []byte {
	alloc := a.lookup(handle)
	if alloc.data == nil {
		panic(fmt.Sprintf("arena: handle %d is not a byte allocation", handle))
	}

	return a.payload(alloc)
}

// Grow resizes a byte allocation to newSize bytes, preserving the existing
// payload prefix, and returns the (possibly new) handle. Capacity grows
// geometrically so repeated Grow calls amortize. Grow failure is fatal.
func (a *Arena) Grow(handle Handle, newSize int) Handle {
	alloc := a.lookup(handle)
	if alloc.data == nil {
		panic(fmt.Sprintf("arena: cannot grow non-byte handle %d", handle))
	}

	if int64(newSize) < alloc.size {
		panic(fmt.Sprintf("arena: grow would shrink handle %d from %d to %d bytes",
			handle, alloc.size, newSize))
	}

	if a.debug {
		a.verifyGuards(handle, alloc)
	}

	overhead := 0
	if a.debug {
		overhead = 2 * guardLength
	}

	if newSize+overhead > cap(alloc.data) {
		capSize := (newSize + overhead) * growNumerator / growDenominator

		grown := make([]byte, newSize+overhead, capSize)
		copy(grown, alloc.data[:int(alloc.size)+overhead])
		alloc.data = grown
	} else {
		alloc.data = alloc.data[:newSize+overhead]
	}

	if a.debug {
		// The old trailing guard's stamp now sits inside the payload;
		// grown regions must read as zero like they do in release mode.
		clear(alloc.data[guardLength+int(alloc.size) : guardLength+newSize])
		fillGuards(alloc.data)
	}

	a.account(alloc.category, int64(newSize)-alloc.size, 0)
	alloc.size = int64(newSize)

	return handle
}

// Release frees an allocation. Releasing a handle the arena does not know is
// fatal: it indicates a double free or a foreign handle.
func (a *Arena) Release(handle Handle) {
	alloc := a.lookup(handle)

	if a.debug && alloc.data != nil {
		a.verifyGuards(handle, alloc)
	}

	a.account(alloc.category, -alloc.size, -1)
	delete(a.allocs, handle)
}

// CheckIntegrity verifies the guard regions of every live byte allocation.
// It is a no-op unless the arena was created with NewDebug.
func (a *Arena) CheckIntegrity() {
	if !a.debug {
		return
	}

	for handle, alloc := range a.allocs {
		if alloc.data != nil {
			a.verifyGuards(handle, alloc)
		}
	}
}

// AssertNoLeaks verifies that every category has zero outstanding bytes and
// panics with a per-category report otherwise. This is a hard invariant at
// tree teardown, not a warning.
func (a *Arena) AssertNoLeaks() {
	if len(a.allocs) == 0 {
		return
	}

	var report strings.Builder

	report.WriteString("arena: leaked allocations at teardown:")

	for category := Category(0); category < numCategories; category++ {
		stats := a.perCat[category]
		if stats.Allocations == 0 {
			continue
		}

		fmt.Fprintf(&report, " %s=%s/%d allocs",
			category, humanize.IBytes(uint64(stats.Bytes)), stats.Allocations)
	}

	panic(report.String())
}

// InUse returns the total outstanding payload bytes across all categories.
func (a *Arena) InUse() int64 {
	return a.inUse
}

// HighWater returns the maximum outstanding byte total observed over the
// arena's lifetime.
func (a *Arena) HighWater() int64 {
	return a.highWater
}

// Stats returns the live aggregate counters for one category.
func (a *Arena) Stats(category Category) CategoryStats {
	a.checkCategory(category)

	return a.perCat[category]
}

// Describe renders a one-line human-readable usage summary, e.g. for
// diagnostics logging.
func (a *Arena) Describe() string {
	var b strings.Builder

	fmt.Fprintf(&b, "in-use=%s high-water=%s",
		humanize.IBytes(uint64(a.inUse)), humanize.IBytes(uint64(a.highWater)))

	for category := Category(0); category < numCategories; category++ {
		stats := a.perCat[category]
		if stats.Allocations == 0 {
			continue
		}

		fmt.Fprintf(&b, " %s=%s", category, humanize.IBytes(uint64(stats.Bytes)))
	}

	return b.String()
}

func (a *Arena) track(alloc *allocation) Handle {
	handle := a.next
	a.next++

	a.allocs[handle] = alloc
	a.account(alloc.category, alloc.size, 1)

	return handle
}

func (a *Arena) lookup(handle Handle) *allocation {
	alloc, ok := a.allocs[handle]
	if !ok {
		panic(fmt.Sprintf("arena: release or access of unknown handle %d (double free?)", handle))
	}

	return alloc
}

func (a *Arena) account(category Category, deltaBytes, deltaAllocs int64) {
	a.perCat[category].Bytes += deltaBytes
	a.perCat[category].Allocations += deltaAllocs
	a.inUse += deltaBytes

	if a.inUse > a.highWater {
		a.highWater = a.inUse
	}
}

func (a *Arena) payload(alloc *allocation) []byte {
	if a.debug {
		return alloc.data[guardLength : guardLength+int(alloc.size)]
	}

	return alloc.data[:alloc.size]
}

func (a *Arena) verifyGuards(handle Handle, alloc *allocation) {
	head := alloc.data[:guardLength]
	tail := alloc.data[guardLength+int(alloc.size):]

	for _, region := range [][]byte{head, tail} {
		for _, b := range region {
			if b != guardByte {
				panic(fmt.Sprintf("arena: guard corruption on handle %d (%s, %d bytes)",
					handle, alloc.category, alloc.size))
			}
		}
	}
}

func (a *Arena) checkCategory(category Category) {
	if category < 0 || category >= numCategories {
		panic(fmt.Sprintf("arena: invalid category %d", int(category)))
	}
}

func fillGuards(data []byte) {
	for i := range guardLength {
		data[i] = guardByte
	}

	for i := len(data) - guardLength; i < len(data); i++ {
		data[i] = guardByte
	}
}
