// Package store provides the default filesystem-backed collaborators a
// Registry needs to run end to end: a bufpool.Writer that persists evicted
// buffers as files, and a session.Encoder that turns tuple payloads into
// bytes. Neither is a real row/table wire format — that is explicitly out
// of scope (see spec.md §1) — these exist only so the engine has somewhere
// to put bytes.
package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tupledb/tupledb/pkg/bufpool"
	"github.com/tupledb/tupledb/pkg/session"
)

// FileWriter is a filesystem-backed bufpool.Writer. Each buffer is written
// as its own file under basePath, keyed by table id and block number (or
// "header" for a table header buffer).
type FileWriter struct {
	basePath string
}

// NewFileWriter creates a FileWriter rooted at basePath, creating the
// directory if it does not already exist.
func NewFileWriter(basePath string) (*FileWriter, error) {
	if basePath == "" {
		return nil, fmt.Errorf("store: base path is required")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, err
	}
	return &FileWriter{basePath: basePath}, nil
}

func (w *FileWriter) blockPath(b *bufpool.Buffer) string {
	if b.Header != nil {
		return filepath.Join(w.basePath, fmt.Sprintf("table-%d", b.TableID), "header")
	}
	return filepath.Join(w.basePath, fmt.Sprintf("table-%d", b.TableID), fmt.Sprintf("block-%d", b.BlockNumber))
}

// WriteBack persists an evicted buffer to disk, writing to a temporary
// file first and renaming into place so a reader never observes a
// partially written block (the same pattern the teacher's fs store uses
// for its WriteBlock).
func (w *FileWriter) WriteBack(ctx context.Context, b *bufpool.Buffer) error {
	path := w.blockPath(b)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data := b.Block
	if b.Header != nil {
		encoded, err := encodeHeader(b.Header)
		if err != nil {
			return err
		}
		data = encoded
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return nil
}

func encodeHeader(h *bufpool.TableHeader) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JSONEncoder is the default session.Encoder. Values is []any, so gob
// (which needs every concrete type registered up front) is a poor fit;
// JSON round-trips arbitrary values without that registration step at the
// cost of type fidelity (e.g. integers come back as float64) — acceptable
// since the row wire format itself is out of scope for this engine.
type JSONEncoder struct{}

// EncodeTuple implements session.Encoder.
func (JSONEncoder) EncodeTuple(t *session.TupleData) ([]byte, error) {
	return json.Marshal(t)
}

var _ session.Encoder = JSONEncoder{}
