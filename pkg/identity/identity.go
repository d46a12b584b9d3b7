// Package identity implements the decimal packing scheme that maps a
// (file number, tree id, halo index) triple to one integer unique across an
// entire output dataset.
//
// The encoding is id = halo + treeFactor·tree + fileFactor·file. Two regimes
// exist: when the configured maximum file count reaches 10,000 the file
// factor is divided by ten, trading per-file id space for a larger file
// range. Range violations would collide silently, so they are fatal.
package identity

import "fmt"

// TreeFactor is the multiplicative constant separating tree ids; halo
// indices within one tree must stay below it.
const TreeFactor int64 = 1_000_000_000

// FileFactor is the multiplicative constant separating file numbers in the
// narrow-file regime.
const FileFactor int64 = 1_000_000_000_000_000

// WideFileThreshold is the configured maximum file count at which the
// encoder switches to the wide-file regime.
const WideFileThreshold = 10_000

// Encoder packs and unpacks globally unique halo identifiers for one
// configured dataset size.
type Encoder struct {
	fileFactor int64
	maxFiles   int64
}

// NewEncoder creates an encoder for a dataset with at most maxFiles tree
// files. At and beyond WideFileThreshold files the file factor drops by a
// factor of ten.
func NewEncoder(maxFiles int) *Encoder {
	if maxFiles <= 0 {
		panic(fmt.Sprintf("identity: non-positive maximum file count %d", maxFiles))
	}

	fileFactor := FileFactor
	if maxFiles >= WideFileThreshold {
		fileFactor = FileFactor / 10
	}

	fileCap := (1<<63 - 1) / fileFactor
	if int64(maxFiles) > fileCap {
		panic(fmt.Sprintf("identity: maximum file count %d exceeds regime cap %d", maxFiles, fileCap))
	}

	return &Encoder{fileFactor: fileFactor, maxFiles: int64(maxFiles)}
}

// TreeCap returns the exclusive upper bound on tree ids per file.
func (e *Encoder) TreeCap() int64 {
	return e.fileFactor / TreeFactor
}

// Encode packs the triple into one unique identifier. Any component outside
// its range is fatal: a silent overflow would alias two different halos.
func (e *Encoder) Encode(fileNr, treeID, haloIndex int64) int64 {
	if haloIndex < 0 || haloIndex >= TreeFactor {
		panic(fmt.Sprintf("identity: halo index %d outside [0,%d)", haloIndex, TreeFactor))
	}

	if treeID < 0 || treeID >= e.TreeCap() {
		panic(fmt.Sprintf("identity: tree id %d outside [0,%d)", treeID, e.TreeCap()))
	}

	if fileNr < 0 || fileNr >= e.maxFiles {
		panic(fmt.Sprintf("identity: file number %d outside [0,%d)", fileNr, e.maxFiles))
	}

	return haloIndex + TreeFactor*treeID + e.fileFactor*fileNr
}

// Decode unpacks an identifier produced by Encode with the same
// configuration.
func (e *Encoder) Decode(id int64) (fileNr, treeID, haloIndex int64) {
	fileNr = id / e.fileFactor
	remainder := id % e.fileFactor
	treeID = remainder / TreeFactor
	haloIndex = remainder % TreeFactor

	return fileNr, treeID, haloIndex
}
