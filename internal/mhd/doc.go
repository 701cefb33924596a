// Package mhd arbitrates block ownership of a memory device shared by
// several hosts. Ownership lives in a file mapped by every head; a byte per
// block carries one ownership bit per head, and claims run under an
// exclusive file lock so concurrent heads never double-claim.
//
// Ownership boundary: mhd owns the shared state file and its layout.
// Callers decide which blocks to claim and what the blocks mean.
package mhd
