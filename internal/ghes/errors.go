package ghes

import "errors"

var (
	// ErrInvalidSource reports a source id outside the supported range.
	// This is a caller bug, surfaced as an error rather than a panic so no
	// failure crosses the record boundary.
	ErrInvalidSource = errors.New("ghes: source id out of range")

	// ErrUnknownSource reports a notification type with no backing source.
	ErrUnknownSource = errors.New("ghes: no source for notification type")

	// ErrNotAcknowledged reports that the guest has not read the previous
	// record; the current record is dropped.
	ErrNotAcknowledged = errors.New("ghes: previous record not acknowledged")

	// ErrRecordTooLarge reports an encoded record that would overflow the
	// source's slot.
	ErrRecordTooLarge = errors.New("ghes: record exceeds slot capacity")

	// ErrNotLinked reports that firmware has not published the region's
	// base address yet.
	ErrNotLinked = errors.New("ghes: error region not linked")

	// ErrEventRecord reports a malformed caller-supplied event record.
	ErrEventRecord = errors.New("ghes: invalid event record")
)
