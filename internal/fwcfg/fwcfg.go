// Package fwcfg holds the named firmware configuration blobs a guest
// consumes at boot, plus the linker command list firmware executes to place
// blobs into guest memory and patch cross-blob pointers.
package fwcfg

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrFileExists  = errors.New("fwcfg: file already exists")
	ErrUnknownFile = errors.New("fwcfg: unknown file")
	ErrNotPlaced   = errors.New("fwcfg: file not placed in guest memory")
	ErrPatchRange  = errors.New("fwcfg: patch outside file bounds")
)

// Blob is one named configuration file. Read-only blobs are copied into
// guest memory during linking; writable blobs stay host-side and receive
// values through write-pointer commands or guest writes.
type Blob struct {
	Name     string
	Data     []byte
	ReadOnly bool

	placed   bool
	guestPos uint64
}

// GuestAddress returns where the blob was placed during linking.
func (b *Blob) GuestAddress() (uint64, error) {
	if !b.placed {
		return 0, fmt.Errorf("%w: %s", ErrNotPlaced, b.Name)
	}
	return b.guestPos, nil
}

// Uint64At reads a little-endian value from the blob's host-side data.
func (b *Blob) Uint64At(offset int) uint64 {
	return binary.LittleEndian.Uint64(b.Data[offset : offset+8])
}

// SetUint64At writes a little-endian value into the blob's host-side data.
func (b *Blob) SetUint64At(offset int, v uint64) {
	binary.LittleEndian.PutUint64(b.Data[offset:offset+8], v)
}

// Registry stores blobs by name.
type Registry struct {
	files map[string]*Blob
	order []string
}

func NewRegistry() *Registry {
	return &Registry{files: make(map[string]*Blob)}
}

// Add registers a blob. The registry takes ownership of data.
func (r *Registry) Add(name string, data []byte, readOnly bool) (*Blob, error) {
	if _, ok := r.files[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, name)
	}
	b := &Blob{Name: name, Data: data, ReadOnly: readOnly}
	r.files[name] = b
	r.order = append(r.order, name)
	return b, nil
}

// Lookup returns a blob by name.
func (r *Registry) Lookup(name string) (*Blob, bool) {
	b, ok := r.files[name]
	return b, ok
}
