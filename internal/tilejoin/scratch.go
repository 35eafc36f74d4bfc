// SPDX-License-Identifier: MIT

package tilejoin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// ScratchWriter appends TileKey-ordered tile records to a temp file, each
// brotli-compressed independently so a single record can be decoded
// without re-reading the whole file — the same "compress temp artifacts"
// texture used elsewhere in this tree for cache files, reused here for
// merge output too large to hold fully in memory.
type ScratchWriter struct {
	w io.Writer
}

func NewScratchWriter(w io.Writer) *ScratchWriter {
	return &ScratchWriter{w: w}
}

// Append writes one (key, data) record: a 20-byte fixed header (z,x,y,
// compressed length) followed by the brotli-compressed payload.
func (s *ScratchWriter) Append(key TileKey, data []byte) error {
	var compressed bytes.Buffer
	bw := brotli.NewWriter(&compressed)
	if _, err := bw.Write(data); err != nil {
		return fmt.Errorf("tilejoin: brotli compress: %w", err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("tilejoin: brotli close: %w", err)
	}

	var header [20]byte
	header[0] = key.Z
	binary.BigEndian.PutUint32(header[1:5], key.X)
	binary.BigEndian.PutUint32(header[5:9], key.Y)
	binary.BigEndian.PutUint32(header[9:13], uint32(compressed.Len()))
	// header[13:20] reserved, kept zero.
	if _, err := s.w.Write(header[:]); err != nil {
		return err
	}
	_, err := s.w.Write(compressed.Bytes())
	return err
}

// ScratchReader reads records back in the order ScratchWriter wrote them,
// implementing Source so a spilled file can itself feed a later Merger.
type ScratchReader struct {
	r io.Reader
}

func NewScratchReader(r io.Reader) *ScratchReader {
	return &ScratchReader{r: r}
}

func (s *ScratchReader) Next() (TileKey, []byte, error) {
	var header [20]byte
	if _, err := io.ReadFull(s.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return TileKey{}, nil, fmt.Errorf("tilejoin: truncated scratch record header")
		}
		return TileKey{}, nil, err
	}
	key := TileKey{
		Z: header[0],
		X: binary.BigEndian.Uint32(header[1:5]),
		Y: binary.BigEndian.Uint32(header[5:9]),
	}
	n := binary.BigEndian.Uint32(header[9:13])
	compressed := make([]byte, n)
	if _, err := io.ReadFull(s.r, compressed); err != nil {
		return TileKey{}, nil, fmt.Errorf("tilejoin: truncated scratch record payload: %w", err)
	}
	br := brotli.NewReader(bytes.NewReader(compressed))
	data, err := io.ReadAll(br)
	if err != nil {
		return TileKey{}, nil, fmt.Errorf("tilejoin: brotli decompress: %w", err)
	}
	return key, data, nil
}
