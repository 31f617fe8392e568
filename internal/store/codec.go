package store

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Binary index format: a fixed header followed by the vector block.
//
//	bytes 0-3   magic "CPFI"
//	bytes 4-7   format version (uint32 LE)
//	bytes 8-11  dimension (uint32 LE)
//	bytes 12-15 vector count (uint32 LE)
//	then count*dimension float32 LE values
const (
	indexMagic   = "CPFI"
	indexVersion = 1
)

func writeIndex(w io.Writer, dim int, vectors [][]float32) error {
	if _, err := w.Write([]byte(indexMagic)); err != nil {
		return err
	}

	header := make([]byte, 12)
	binary.LittleEndian.PutUint32(header[0:4], indexVersion)
	binary.LittleEndian.PutUint32(header[4:8], uint32(dim))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(vectors)))
	if _, err := w.Write(header); err != nil {
		return err
	}

	buf := make([]byte, dim*4)
	for _, vec := range vectors {
		for i, val := range vec {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(val))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func readIndex(r io.Reader) (dim int, vectors [][]float32, err error) {
	header := make([]byte, 16)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("read index header: %w", err)
	}

	if string(header[0:4]) != indexMagic {
		return 0, nil, fmt.Errorf("bad index magic %q", header[0:4])
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != indexVersion {
		return 0, nil, fmt.Errorf("unsupported index version %d", v)
	}

	dim = int(binary.LittleEndian.Uint32(header[8:12]))
	count := int(binary.LittleEndian.Uint32(header[12:16]))
	if dim <= 0 || count < 0 {
		return 0, nil, fmt.Errorf("invalid index header: dim=%d count=%d", dim, count)
	}

	vectors = make([][]float32, count)
	buf := make([]byte, dim*4)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		vectors[i] = vec
	}

	return dim, vectors, nil
}
