package fhir

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// NDJSONWriter writes resources one per line.
type NDJSONWriter struct {
	w     *bufio.Writer
	buf   bytes.Buffer
	count int
}

// NewNDJSONWriter creates a new NDJSONWriter that writes to w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{
		w: bufio.NewWriter(w),
	}
}

// WriteResource compacts the resource's pretty-printed JSON onto a single
// line and terminates it with a newline.
func (n *NDJSONWriter) WriteResource(r RawResource) error {
	n.buf.Reset()
	if err := json.Compact(&n.buf, r.Data); err != nil {
		return fmt.Errorf("compact %s/%s: %w", r.ResourceType, r.ID, err)
	}
	n.buf.WriteByte('\n')
	if _, err := n.w.Write(n.buf.Bytes()); err != nil {
		return err
	}
	n.count++
	return nil
}

// Count returns the number of resources written so far.
func (n *NDJSONWriter) Count() int {
	return n.count
}

// Flush flushes any buffered data to the underlying writer.
func (n *NDJSONWriter) Flush() error {
	return n.w.Flush()
}
