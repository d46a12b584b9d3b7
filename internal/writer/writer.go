// Package writer serializes processed halo histories into binary catalogue
// files. One catalogue holds every tree of one input file as a sequence of
// tree blocks; records reference each other exclusively through encoded
// identities, so catalogues from concurrently processed files never
// collide.
package writer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/darrencroton/mimic/pkg/arena"
	"github.com/darrencroton/mimic/pkg/halo"
	"github.com/darrencroton/mimic/pkg/identity"
	"github.com/darrencroton/mimic/pkg/safeconv"
	"github.com/darrencroton/mimic/pkg/tree"
)

// Magic identifies a catalogue file.
const Magic uint32 = 0x4D494D43 // "MIMC"

// Version is the catalogue layout version.
const Version int32 = 1

// NoID marks an absent halo reference in a catalogue record.
const NoID int64 = -1

// fixedRecordSize is the packed size of one record before the
// schema-dependent extension payload.
const fixedRecordSize = 3*8 + // id, central id, merge id
	4 + // merge snapshot
	4 + // type
	4 + // snapshot
	4 + // particle count
	9*4 + // position, velocity, spin
	5*4 + // virial properties
	3*4 + // infall values
	4 + // infall snapshot
	4 // timestep

// treeBlockHeaderSize is the fixed part of a per-tree block header,
// excluding the per-snapshot counts.
const treeBlockHeaderSize = 8 + 4 + 4

// Catalogue writes one output file.
type Catalogue struct {
	path    string
	file    *os.File
	lzw     *lz4.Writer
	buf     *bufio.Writer
	fileNr  int32
	encoder *identity.Encoder
	words   int
}

// NewCatalogue creates a catalogue file and writes its header. A path
// ending in ".lz4" is compressed.
func NewCatalogue(path string, fileNr int32, encoder *identity.Encoder, schemaWords int) (*Catalogue, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("writer: create %s: %w", path, err)
	}

	c := &Catalogue{
		path:    path,
		file:    file,
		fileNr:  fileNr,
		encoder: encoder,
		words:   schemaWords,
	}

	if strings.HasSuffix(path, ".lz4") {
		c.lzw = lz4.NewWriter(file)
		c.buf = bufio.NewWriter(c.lzw)
	} else {
		c.buf = bufio.NewWriter(file)
	}

	for _, v := range []any{Magic, Version, fileNr, int32(schemaWords)} {
		err = binary.Write(c.buf, binary.LittleEndian, v)
		if err != nil {
			file.Close()

			return nil, fmt.Errorf("writer: header of %s: %w", path, err)
		}
	}

	return c, nil
}

// WriteTree appends one finished tree as a block: tree id, entry count,
// per-snapshot counts, then one record per processed-history entry. The
// block is staged through the tree's arena so a failure mid-serialization
// leaves the catalogue untouched by this tree.
func (c *Catalogue) WriteTree(a *arena.Arena, state *tree.State) error {
	history := state.History()
	counts := state.SnapshotCounts()
	schema := state.Schema()

	recordSize := fixedRecordSize + 8*c.words
	blockSize := treeBlockHeaderSize + 4*len(counts) + recordSize*len(history)

	staging := a.Allocate(blockSize, arena.CategoryIOStaging)
	defer a.Release(staging)

	p := putter{buf: a.Bytes(staging)}
	p.i64(state.TreeID())
	p.i32(safeconv.MustIntToInt32(len(history)))
	p.i32(safeconv.MustIntToInt32(len(counts)))

	for _, n := range counts {
		p.i32(n)
	}

	for i := range history {
		entry := &history[i]

		p.i64(c.encoder.Encode(int64(c.fileNr), state.TreeID(), int64(i)))
		p.i64(c.reference(state.TreeID(), entry.Central))
		p.i64(c.reference(state.TreeID(), entry.MergeEntry))
		p.i32(entry.MergeSnap)
		p.i32(int32(entry.Type))
		p.i32(entry.SnapNum)
		p.i32(entry.Len)

		for _, vec := range [][3]float64{entry.Pos, entry.Vel, entry.Spin} {
			for _, v := range vec {
				p.f32(v)
			}
		}

		for _, v := range []float64{entry.Mvir, entry.Rvir, entry.Vvir, entry.VelDisp, entry.Vmax} {
			p.f32(v)
		}

		for _, v := range []float64{entry.InfallMvir, entry.InfallRvir, entry.InfallVvir} {
			p.f32(v)
		}

		p.i32(entry.InfallSnap)
		p.f32(entry.DeltaT)

		if entry.Extension.Valid() {
			for _, v := range schema.Values(entry.Extension) {
				p.f64(v)
			}
		} else {
			// Merged entries surrendered their slot; pad with zeros to
			// keep records fixed-width.
			for range c.words {
				p.f64(0)
			}
		}
	}

	if p.off != blockSize {
		panic(fmt.Sprintf("writer: staged %d bytes for a %d-byte block (tree %d)",
			p.off, blockSize, state.TreeID()))
	}

	_, err := c.buf.Write(p.buf)
	if err != nil {
		return fmt.Errorf("writer: tree %d of %s: %w", state.TreeID(), c.path, err)
	}

	return nil
}

// Close flushes and closes the catalogue.
func (c *Catalogue) Close() error {
	err := c.buf.Flush()
	if err != nil {
		c.file.Close()

		return fmt.Errorf("writer: flush %s: %w", c.path, err)
	}

	if c.lzw != nil {
		err = c.lzw.Close()
		if err != nil {
			c.file.Close()

			return fmt.Errorf("writer: finish compression of %s: %w", c.path, err)
		}
	}

	err = c.file.Close()
	if err != nil {
		return fmt.Errorf("writer: close %s: %w", c.path, err)
	}

	return nil
}

func (c *Catalogue) reference(treeID int64, historyIdx int32) int64 {
	if historyIdx == halo.None {
		return NoID
	}

	return c.encoder.Encode(int64(c.fileNr), treeID, int64(historyIdx))
}

// putter is a little-endian cursor over a staging buffer.
type putter struct {
	buf []byte
	off int
}

func (p *putter) i32(v int32) {
	binary.LittleEndian.PutUint32(p.buf[p.off:], uint32(v))
	p.off += 4
}

func (p *putter) i64(v int64) {
	binary.LittleEndian.PutUint64(p.buf[p.off:], uint64(v))
	p.off += 8
}

func (p *putter) f32(v float64) {
	binary.LittleEndian.PutUint32(p.buf[p.off:], math.Float32bits(float32(v)))
	p.off += 4
}

func (p *putter) f64(v float64) {
	binary.LittleEndian.PutUint64(p.buf[p.off:], math.Float64bits(v))
	p.off += 8
}
