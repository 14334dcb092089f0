// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package dataset

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// IDX magic numbers.
const (
	labelMagic uint32 = 0x00000801
	imageMagic uint32 = 0x00000803
)

// Upper bounds applied to IDX headers before reading the payload.
const (
	maxItems = 1 << 24
	maxSide  = 1 << 10
	maxBytes = 1 << 28
)

// openIDX opens path, falling back to path+".gz" when the plain file
// does not exist. Gzip files are decompressed transparently.
func openIDX(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		f, err = os.Open(path + ".gz")
		if err != nil {
			return nil, err
		}
		zr, err := gzip.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s.gz: %w", path, err)
		}
		return &gzipFile{Reader: zr, f: f}, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if cerr := g.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// readIDXImages reads an IDX image file.
//
// Layout (big endian):
//
//	magic number: 0x00000803 (2051)
//	number of images: 4 bytes
//	number of rows: 4 bytes
//	number of cols: 4 bytes
//	pixel data: unsigned bytes (0-255), row-major
func readIDXImages(r io.Reader) (pixels []byte, count, rows, cols int, err error) {
	if err := readMagic(r, imageMagic); err != nil {
		return nil, 0, 0, 0, err
	}
	var dims [3]uint32
	if err := binary.Read(r, binary.BigEndian, &dims); err != nil {
		return nil, 0, 0, 0, fmt.Errorf("read header: %w", err)
	}
	if dims[0] > maxItems || dims[1] > maxSide || dims[2] > maxSide ||
		uint64(dims[0])*uint64(dims[1])*uint64(dims[2]) > maxBytes {
		return nil, 0, 0, 0, fmt.Errorf("implausible header: %d images of %dx%d", dims[0], dims[1], dims[2])
	}

	count, rows, cols = int(dims[0]), int(dims[1]), int(dims[2])
	pixels, err = readPayload(r, count*rows*cols)
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("read pixels: %w", err)
	}
	return pixels, count, rows, cols, nil
}

// readIDXLabels reads an IDX label file.
//
// Layout (big endian):
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes
//	label data: unsigned bytes (0-9)
func readIDXLabels(r io.Reader) ([]byte, error) {
	if err := readMagic(r, labelMagic); err != nil {
		return nil, err
	}
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if count > maxItems {
		return nil, fmt.Errorf("implausible header: %d labels", count)
	}

	labels, err := readPayload(r, int(count))
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return labels, nil
}

func readMagic(r io.Reader, want uint32) error {
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return fmt.Errorf("read magic number: %w", err)
	}
	if magic != want {
		return fmt.Errorf("invalid magic number: got %d, want %d", magic, want)
	}
	return nil
}

// readPayload reads exactly n bytes. The buffer grows with the data
// actually present, so a header overstating n fails without allocating n.
func readPayload(r io.Reader, n int) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("got %d of %d bytes: %w", buf.Len(), n, err)
	}
	return buf.Bytes(), nil
}

// writeIDXImages writes pixels in IDX image layout.
func writeIDXImages(w io.Writer, pixels []byte, count, rows, cols int) error {
	hdr := [4]uint32{imageMagic, uint32(count), uint32(rows), uint32(cols)}
	if err := binary.Write(w, binary.BigEndian, hdr); err != nil {
		return err
	}
	_, err := w.Write(pixels)
	return err
}

// writeIDXLabels writes labels in IDX label layout.
func writeIDXLabels(w io.Writer, labels []byte) error {
	hdr := [2]uint32{labelMagic, uint32(len(labels))}
	if err := binary.Write(w, binary.BigEndian, hdr); err != nil {
		return err
	}
	_, err := w.Write(labels)
	return err
}
