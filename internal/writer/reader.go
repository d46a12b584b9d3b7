package writer

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// ErrBadCatalogue indicates a file that is not a catalogue or uses an
// unsupported layout version.
var ErrBadCatalogue = errors.New("writer: not a supported catalogue file")

// Record is one decoded catalogue entry.
type Record struct {
	ID         int64
	CentralID  int64
	MergeID    int64
	MergeSnap  int32
	Type       int32
	SnapNum    int32
	Len        int32
	Pos        [3]float64
	Vel        [3]float64
	Spin       [3]float64
	Mvir       float64
	Rvir       float64
	Vvir       float64
	VelDisp    float64
	Vmax       float64
	InfallMvir float64
	InfallRvir float64
	InfallVvir float64
	InfallSnap int32
	DeltaT     float64
	Extension  []float64
}

// TreeBlock is one decoded tree worth of records.
type TreeBlock struct {
	TreeID         int64
	SnapshotCounts []int32
	Records        []Record
}

// Reader decodes a catalogue file tree block by tree block.
type Reader struct {
	path  string
	file  *os.File
	buf   *bufio.Reader
	fileN int32
	words int
}

// OpenReader opens a catalogue and reads its header. A path ending in
// ".lz4" is decompressed transparently.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("writer: open %s: %w", path, err)
	}

	r := &Reader{path: path, file: file}
	if strings.HasSuffix(path, ".lz4") {
		r.buf = bufio.NewReader(lz4.NewReader(file))
	} else {
		r.buf = bufio.NewReader(file)
	}

	var header struct {
		Magic   uint32
		Version int32
		FileNr  int32
		Words   int32
	}

	err = binary.Read(r.buf, binary.LittleEndian, &header)
	if err != nil {
		file.Close()

		return nil, fmt.Errorf("writer: header of %s: %w", path, err)
	}

	if header.Magic != Magic || header.Version != Version {
		file.Close()

		return nil, fmt.Errorf("%w: %s", ErrBadCatalogue, path)
	}

	r.fileN = header.FileNr
	r.words = int(header.Words)

	return r, nil
}

// FileNr returns the input file number recorded in the header.
func (r *Reader) FileNr() int32 {
	return r.fileN
}

// Words returns the extension payload width recorded in the header.
func (r *Reader) Words() int {
	return r.words
}

// NextTree decodes the next tree block, or io.EOF after the last one.
func (r *Reader) NextTree() (*TreeBlock, error) {
	header := make([]byte, treeBlockHeaderSize)

	_, err := io.ReadFull(r.buf, header)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		return nil, fmt.Errorf("writer: tree header of %s: %w", r.path, err)
	}

	g := getter{buf: header}
	block := &TreeBlock{TreeID: g.i64()}
	entries := int(g.i32())
	snapshots := int(g.i32())

	recordSize := fixedRecordSize + 8*r.words
	body := make([]byte, 4*snapshots+recordSize*entries)

	_, err = io.ReadFull(r.buf, body)
	if err != nil {
		return nil, fmt.Errorf("writer: tree %d of %s: %w", block.TreeID, r.path, err)
	}

	g = getter{buf: body}
	block.SnapshotCounts = make([]int32, snapshots)

	for i := range block.SnapshotCounts {
		block.SnapshotCounts[i] = g.i32()
	}

	block.Records = make([]Record, entries)
	for i := range block.Records {
		rec := &block.Records[i]
		rec.ID = g.i64()
		rec.CentralID = g.i64()
		rec.MergeID = g.i64()
		rec.MergeSnap = g.i32()
		rec.Type = g.i32()
		rec.SnapNum = g.i32()
		rec.Len = g.i32()

		for _, vec := range []*[3]float64{&rec.Pos, &rec.Vel, &rec.Spin} {
			for k := range vec {
				vec[k] = g.f32()
			}
		}

		rec.Mvir = g.f32()
		rec.Rvir = g.f32()
		rec.Vvir = g.f32()
		rec.VelDisp = g.f32()
		rec.Vmax = g.f32()
		rec.InfallMvir = g.f32()
		rec.InfallRvir = g.f32()
		rec.InfallVvir = g.f32()
		rec.InfallSnap = g.i32()
		rec.DeltaT = g.f32()

		if r.words > 0 {
			rec.Extension = make([]float64, r.words)
			for k := range rec.Extension {
				rec.Extension[k] = g.f64()
			}
		}
	}

	return block, nil
}

// ReadAll decodes every remaining tree block.
func (r *Reader) ReadAll() ([]*TreeBlock, error) {
	var blocks []*TreeBlock

	for {
		block, err := r.NextTree()
		if errors.Is(err, io.EOF) {
			return blocks, nil
		}

		if err != nil {
			return nil, err
		}

		blocks = append(blocks, block)
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// getter is the decoding counterpart of putter.
type getter struct {
	buf []byte
	off int
}

func (g *getter) i32() int32 {
	v := int32(binary.LittleEndian.Uint32(g.buf[g.off:]))
	g.off += 4

	return v
}

func (g *getter) i64() int64 {
	v := int64(binary.LittleEndian.Uint64(g.buf[g.off:]))
	g.off += 8

	return v
}

func (g *getter) f32() float64 {
	v := math.Float32frombits(binary.LittleEndian.Uint32(g.buf[g.off:]))
	g.off += 4

	return float64(v)
}

func (g *getter) f64() float64 {
	v := math.Float64frombits(binary.LittleEndian.Uint64(g.buf[g.off:]))
	g.off += 8

	return v
}
