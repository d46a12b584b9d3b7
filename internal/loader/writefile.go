package loader

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/darrencroton/mimic/pkg/halo"
)

// WriteFile writes trees in the on-disk tree-file layout, compressing when
// the path ends in ".lz4". It is the inverse of Open/ReadTree, used by the
// test fixtures and by format-conversion tooling.
func WriteFile(path string, trees [][]halo.RawHalo) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("loader: create %s: %w", path, err)
	}

	defer file.Close()

	var (
		writer *bufio.Writer
		lzw    *lz4.Writer
	)

	if strings.HasSuffix(path, ".lz4") {
		lzw = lz4.NewWriter(file)
		writer = bufio.NewWriter(lzw)
	} else {
		writer = bufio.NewWriter(file)
	}

	var total int32

	sizes := make([]int32, len(trees))
	for i, tr := range trees {
		sizes[i] = int32(len(tr))
		total += sizes[i]
	}

	for _, chunk := range []any{int32(len(trees)), total, sizes} {
		err = binary.Write(writer, binary.LittleEndian, chunk)
		if err != nil {
			return fmt.Errorf("loader: write header of %s: %w", path, err)
		}
	}

	for i, tr := range trees {
		err = binary.Write(writer, binary.LittleEndian, tr)
		if err != nil {
			return fmt.Errorf("loader: write tree %d of %s: %w", i, path, err)
		}
	}

	err = writer.Flush()
	if err != nil {
		return fmt.Errorf("loader: flush %s: %w", path, err)
	}

	if lzw != nil {
		err = lzw.Close()
		if err != nil {
			return fmt.Errorf("loader: finish compression of %s: %w", path, err)
		}
	}

	return nil
}
