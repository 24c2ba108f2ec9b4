// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package statefile reads and writes single-file snapshots.
//
// Writes never modify the previous snapshot in place: the new content goes to
// a temporary file in the same directory, is flushed to disk and then renamed
// over the target. A reader therefore observes either the old or the new
// snapshot, never a partial one, even if the process dies mid-write.
//
// The file name selects the on-disk encoding:
//
//   - "*.gz"  gzip (klauspost/compress/gzip)
//   - "*.zst" zstandard (klauspost/compress/zstd)
//   - anything else is stored as-is
package statefile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses snapshot bytes.
type Codec interface {
	Name() string
	Encode(w io.Writer, data []byte) error
	Decode(r io.Reader) ([]byte, error)
}

// CodecFor returns the codec selected by the extension of path.
func CodecFor(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return gzipCodec{}
	case ".zst":
		return zstdCodec{}
	default:
		return plainCodec{}
	}
}

// Write atomically replaces the file at path with data, encoded with the
// codec selected by the file name.
func Write(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary snapshot in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	codec := CodecFor(path)
	if err = codec.Encode(tmp, data); err != nil {
		return fmt.Errorf("encode snapshot (%s): %w", codec.Name(), err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temporary snapshot: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temporary snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temporary snapshot: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace snapshot %s: %w", path, err)
	}
	syncDir(dir)
	return nil
}

// Read returns the decoded content of the snapshot at path.
func Read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	codec := CodecFor(path)
	data, err := codec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot (%s): %w", codec.Name(), err)
	}
	return data, nil
}

// syncDir flushes the directory entry of a rename. Not every platform lets
// a directory be opened for syncing, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

type plainCodec struct{}

func (plainCodec) Name() string { return "plain" }

func (plainCodec) Encode(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}

func (plainCodec) Decode(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}

type gzipCodec struct{}

func (gzipCodec) Name() string { return "gzip" }

func (gzipCodec) Encode(w io.Writer, data []byte) error {
	zw := gzip.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func (gzipCodec) Decode(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return "zstd" }

func (zstdCodec) Encode(w io.Writer, data []byte) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, bytes.NewReader(data)); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func (zstdCodec) Decode(r io.Reader) ([]byte, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}
