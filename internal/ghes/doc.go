// Package ghes owns the generic hardware error source region and the
// ack-gated record protocol over it.
//
// Ownership boundary:
// - byte layout of the shared error-reporting region
// - the per-source read-ack handshake with the guest
// - record operations for memory, AER, CXL protocol, and CXL event errors
// - the static error-source tables the guest firmware consumes
//
// Encoding of individual records lives in package cper; guest memory access
// and blob placement live in guestmem and fwcfg.
package ghes
