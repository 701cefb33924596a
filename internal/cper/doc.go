// Package cper encodes Common Platform Error Records: the generic error
// status block and data entry envelope shared by every record, and the four
// error-section payloads (memory, PCI Express AER, CXL protocol, CXL
// general-media event).
//
// Ownership boundary:
// - byte-exact wire layout of the envelope and sections
// - section-type identifiers
// - decode helpers for tests and inspection tooling
//
// Encoders append to a caller-owned buffer and perform no capacity checks;
// the recorder validates total record size before encoding.
package cper
