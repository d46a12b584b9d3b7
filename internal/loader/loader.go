// Package loader reads merger-tree files into immutable raw halo arrays.
//
// The on-disk layout is little-endian: a header of two int32 counts (trees,
// total halos) followed by the per-tree halo counts, then the packed halo
// records of every tree in order. Files ending in ".lz4" are decompressed
// transparently. Trees are read strictly sequentially; the raw array of each
// tree is allocated from the caller's tree-scoped arena.
package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/darrencroton/mimic/pkg/arena"
	"github.com/darrencroton/mimic/pkg/halo"
)

// ErrTreeOrder is returned when trees are requested out of sequence.
var ErrTreeOrder = errors.New("loader: trees must be read sequentially")

// rawHaloSize is the packed on-disk size of one halo record.
var rawHaloSize = binary.Size(halo.RawHalo{})

// TreeFile is an open merger-tree file.
type TreeFile struct {
	path   string
	file   *os.File
	reader io.Reader

	halosPerTree []int32
	totalHalos   int64
	nextTree     int
}

// Open opens a tree file and reads its header. The per-tree halo counts are
// small and file-scoped, so they live in ordinary memory rather than a
// tree-scoped arena.
func Open(path string) (*TreeFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %s: %w", path, err)
	}

	var reader io.Reader = file
	if strings.HasSuffix(path, ".lz4") {
		reader = lz4.NewReader(file)
	}

	f := &TreeFile{path: path, file: file, reader: reader}

	err = f.readHeader()
	if err != nil {
		file.Close()

		return nil, err
	}

	return f, nil
}

// Trees returns the number of trees in the file.
func (f *TreeFile) Trees() int {
	return len(f.halosPerTree)
}

// TotalHalos returns the total halo count across all trees.
func (f *TreeFile) TotalHalos() int64 {
	return f.totalHalos
}

// HaloCount returns the halo count of one tree.
func (f *TreeFile) HaloCount(treeIdx int) int {
	return int(f.halosPerTree[treeIdx])
}

// ReadTree reads the next tree's raw halo array into the given arena and
// validates its link structure. The returned handle owns the array and must
// be released before the arena's leak check.
func (f *TreeFile) ReadTree(a *arena.Arena, treeIdx int) (arena.Handle, []halo.RawHalo, error) {
	if treeIdx != f.nextTree {
		return 0, nil, fmt.Errorf("%w: requested %d, expected %d (%s)",
			ErrTreeOrder, treeIdx, f.nextTree, f.path)
	}

	count := int(f.halosPerTree[treeIdx])
	handle, raw := arena.AllocSlice[halo.RawHalo](a, count, arena.CategoryTreeInput)

	// Stage the packed records through the arena, then decode.
	staging := a.Allocate(count*rawHaloSize, arena.CategoryIOStaging)
	buf := a.Bytes(staging)

	_, err := io.ReadFull(f.reader, buf)
	if err != nil {
		return 0, nil, fmt.Errorf("loader: tree %d of %s: %w", treeIdx, f.path, err)
	}

	err = binary.Read(bytes.NewReader(buf), binary.LittleEndian, raw)
	a.Release(staging)

	if err != nil {
		return 0, nil, fmt.Errorf("loader: decode tree %d of %s: %w", treeIdx, f.path, err)
	}

	err = validateLinks(raw)
	if err != nil {
		return 0, nil, fmt.Errorf("loader: tree %d of %s: %w", treeIdx, f.path, err)
	}

	f.nextTree++

	return handle, raw, nil
}

// Close closes the underlying file.
func (f *TreeFile) Close() error {
	return f.file.Close()
}

func (f *TreeFile) readHeader() error {
	var counts [2]int32

	err := binary.Read(f.reader, binary.LittleEndian, counts[:])
	if err != nil {
		return fmt.Errorf("loader: header of %s: %w", f.path, err)
	}

	nTrees, totalHalos := counts[0], counts[1]
	if nTrees < 0 || totalHalos < 0 {
		return fmt.Errorf("loader: %s declares %d trees, %d halos", f.path, nTrees, totalHalos)
	}

	f.halosPerTree = make([]int32, nTrees)

	err = binary.Read(f.reader, binary.LittleEndian, f.halosPerTree)
	if err != nil {
		return fmt.Errorf("loader: tree sizes of %s: %w", f.path, err)
	}

	var sum int64
	for _, n := range f.halosPerTree {
		sum += int64(n)
	}

	if sum != int64(totalHalos) {
		return fmt.Errorf("loader: %s tree sizes sum to %d, header says %d", f.path, sum, totalHalos)
	}

	f.totalHalos = sum

	return nil
}

// validateLinks rejects trees whose link structure would corrupt the
// traversal: out-of-range indices, descendants that do not advance in time
// (which would make the progenitor recursion cyclic), or FOF membership
// spanning snapshots.
func validateLinks(raw []halo.RawHalo) error {
	n := int32(len(raw))

	inRange := func(link int32) bool {
		return link >= halo.None && link < n
	}

	for i := range raw {
		h := &raw[i]

		for _, link := range [...]int32{
			h.Descendant, h.FirstProgenitor, h.NextProgenitor,
			h.FirstInFOFGroup, h.NextInFOFGroup,
		} {
			if !inRange(link) {
				return fmt.Errorf("halo %d: link %d outside [-1,%d)", i, link, n)
			}
		}

		if h.FirstInFOFGroup == halo.None {
			return fmt.Errorf("halo %d: no FOF group", i)
		}

		if raw[h.FirstInFOFGroup].SnapNum != h.SnapNum {
			return fmt.Errorf("halo %d: FOF group head %d at different snapshot", i, h.FirstInFOFGroup)
		}

		if h.Descendant != halo.None && raw[h.Descendant].SnapNum <= h.SnapNum {
			return fmt.Errorf("halo %d: descendant %d does not advance in time (cyclic links)",
				i, h.Descendant)
		}

		if h.FirstProgenitor != halo.None && raw[h.FirstProgenitor].SnapNum >= h.SnapNum {
			return fmt.Errorf("halo %d: progenitor %d does not precede it in time (cyclic links)",
				i, h.FirstProgenitor)
		}
	}

	// The sibling chains have no time ordering of their own, so a cycle in
	// them passes the checks above yet never terminates for the traversal.
	// Walk every chain the traversal will walk, bounded by the halo count.
	chainEnds := func(head int32, next func(int32) int32) bool {
		steps := int32(0)

		for link := head; link != halo.None; link = next(link) {
			if steps++; steps > n {
				return false
			}
		}

		return true
	}

	nextProg := func(j int32) int32 { return raw[j].NextProgenitor }
	nextFOF := func(j int32) int32 { return raw[j].NextInFOFGroup }

	for i := range raw {
		h := &raw[i]

		if h.FirstProgenitor != halo.None && !chainEnds(h.FirstProgenitor, nextProg) {
			return fmt.Errorf("halo %d: progenitor chain does not terminate (cyclic links)", i)
		}

		if h.FirstInFOFGroup == int32(i) && !chainEnds(int32(i), nextFOF) {
			return fmt.Errorf("halo %d: FOF membership chain does not terminate (cyclic links)", i)
		}
	}

	return nil
}
