package mhd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

var (
	ErrBadState   = errors.New("mhd: malformed state file")
	ErrBadHead    = errors.New("mhd: head id out of range")
	ErrBlockRange = errors.New("mhd: block out of range")
	ErrBlockOwned = errors.New("mhd: block already owned")
)

// State file layout. The header is followed by one ownership byte per
// block; bit h of a block byte means head h owns the block.
const (
	offNrHeads  = 0  // u8
	offNrLDs    = 1  // u8
	offLDMap    = 2  // 8 bytes, logical device per head
	offNrBlocks = 16 // u64 little endian
	offBlocks   = 24

	MaxHeads = 8
)

// Policy selects how a multi-block claim degrades when some blocks are
// already owned.
type Policy int

const (
	// PolicyAllOrNothing fails the whole claim and rolls back if any block
	// is unavailable.
	PolicyAllOrNothing Policy = iota
	// PolicyBestEffort claims the available blocks and reports what it got.
	PolicyBestEffort
	// PolicyManual claims unconditionally; the operator owns the outcome.
	PolicyManual
)

func (p Policy) String() string {
	switch p {
	case PolicyAllOrNothing:
		return "all-or-nothing"
	case PolicyBestEffort:
		return "best-effort"
	case PolicyManual:
		return "manual"
	default:
		return "invalid"
	}
}

// Extent is a contiguous run of blocks.
type Extent struct {
	Start uint64
	Count uint64
}

// State is one head's view of the shared ownership file.
type State struct {
	f        *os.File
	data     []byte
	headID   int
	nrBlocks uint64
	log      zerolog.Logger
}

// Create initializes a state file for the given topology. Existing files
// are truncated; the ownership bytes start unowned.
func Create(path string, heads, lds uint8, nrBlocks uint64) error {
	if heads == 0 || heads > MaxHeads {
		return fmt.Errorf("%w: %d heads", ErrBadHead, heads)
	}
	buf := make([]byte, offBlocks+int(nrBlocks))
	buf[offNrHeads] = heads
	buf[offNrLDs] = lds
	for h := uint8(0); h < heads; h++ {
		// Identity mapping of heads onto logical devices.
		buf[offLDMap+int(h)] = h % max(lds, 1)
	}
	binary.LittleEndian.PutUint64(buf[offNrBlocks:], nrBlocks)
	return os.WriteFile(path, buf, 0o644)
}

// Open maps the state file for one head.
func Open(path string, headID int, log zerolog.Logger) (*State, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("mhd: open state: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mhd: stat state: %w", err)
	}
	if fi.Size() < offBlocks {
		f.Close()
		return nil, fmt.Errorf("%w: %d bytes", ErrBadState, fi.Size())
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mhd: mmap state: %w", err)
	}

	nrHeads := int(data[offNrHeads])
	nrBlocks := binary.LittleEndian.Uint64(data[offNrBlocks:])
	if uint64(len(data)) < offBlocks+nrBlocks {
		unix.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("%w: %d blocks beyond file end", ErrBadState, nrBlocks)
	}
	if headID < 0 || headID >= nrHeads {
		unix.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("%w: %d of %d", ErrBadHead, headID, nrHeads)
	}

	return &State{f: f, data: data, headID: headID, nrBlocks: nrBlocks, log: log}, nil
}

// Close unmaps the state. Ownership bits survive for the next open.
func (s *State) Close() error {
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			return fmt.Errorf("mhd: munmap: %w", err)
		}
		s.data = nil
	}
	return s.f.Close()
}

// HeadID returns the head this state was opened for.
func (s *State) HeadID() int {
	return s.headID
}

// Blocks returns the number of shared blocks.
func (s *State) Blocks() uint64 {
	return s.nrBlocks
}

// Owned reports whether this head owns the block.
func (s *State) Owned(block uint64) (bool, error) {
	if block >= s.nrBlocks {
		return false, fmt.Errorf("%w: %d of %d", ErrBlockRange, block, s.nrBlocks)
	}
	return s.data[offBlocks+block]&s.bit() != 0, nil
}

// Free reports whether no head owns the block.
func (s *State) Free(block uint64) (bool, error) {
	if block >= s.nrBlocks {
		return false, fmt.Errorf("%w: %d of %d", ErrBlockRange, block, s.nrBlocks)
	}
	return s.data[offBlocks+block] == 0, nil
}

// Claim takes ownership of the extents for this head under the file lock.
// With PolicyAllOrNothing a single unavailable block fails the whole claim
// and leaves the state untouched. The returned extents are what was
// actually claimed.
func (s *State) Claim(extents []Extent, policy Policy) ([]Extent, error) {
	for _, e := range extents {
		if e.Start+e.Count > s.nrBlocks || e.Start+e.Count < e.Start {
			return nil, fmt.Errorf("%w: extent %d+%d", ErrBlockRange, e.Start, e.Count)
		}
	}

	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.unlock()

	var claimed []uint64
	rollback := func() {
		for _, b := range claimed {
			s.data[offBlocks+b] &^= s.bit()
		}
	}

	var got []Extent
	for _, e := range extents {
		run := false
		for b := e.Start; b < e.Start+e.Count; b++ {
			owner := s.data[offBlocks+b]
			switch {
			case owner == 0 || policy == PolicyManual:
				s.data[offBlocks+b] |= s.bit()
				claimed = append(claimed, b)
				if run {
					got[len(got)-1].Count++
				} else {
					got = append(got, Extent{Start: b, Count: 1})
					run = true
				}
			case owner&s.bit() != 0:
				// Already ours. Double claims are not an error but do not
				// extend the result either.
				run = false
			default:
				if policy == PolicyAllOrNothing {
					rollback()
					return nil, fmt.Errorf("%w: block %d held by %#x", ErrBlockOwned, b, owner)
				}
				run = false
			}
		}
	}

	s.log.Debug().
		Int("head", s.headID).
		Str("policy", policy.String()).
		Int("blocks", len(claimed)).
		Msg("blocks claimed")
	return got, nil
}

// Release drops this head's ownership of the extents. Releasing blocks the
// head does not own is a no-op.
func (s *State) Release(extents []Extent) error {
	for _, e := range extents {
		if e.Start+e.Count > s.nrBlocks || e.Start+e.Count < e.Start {
			return fmt.Errorf("%w: extent %d+%d", ErrBlockRange, e.Start, e.Count)
		}
	}
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	for _, e := range extents {
		for b := e.Start; b < e.Start+e.Count; b++ {
			s.data[offBlocks+b] &^= s.bit()
		}
	}
	return nil
}

// ResetHead clears every ownership bit this head holds. Run on head startup
// so a crashed head does not leak blocks forever.
func (s *State) ResetHead() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	var dropped int
	for b := uint64(0); b < s.nrBlocks; b++ {
		if s.data[offBlocks+b]&s.bit() != 0 {
			s.data[offBlocks+b] &^= s.bit()
			dropped++
		}
	}
	if dropped > 0 {
		s.log.Info().
			Int("head", s.headID).
			Int("blocks", dropped).
			Msg("stale block ownership cleared")
	}
	return nil
}

// OwnedExtents returns this head's holdings as coalesced extents.
func (s *State) OwnedExtents() []Extent {
	var out []Extent
	for b := uint64(0); b < s.nrBlocks; b++ {
		if s.data[offBlocks+b]&s.bit() == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Start+out[n-1].Count == b {
			out[n-1].Count++
		} else {
			out = append(out, Extent{Start: b, Count: 1})
		}
	}
	return out
}

func (s *State) bit() uint8 {
	return 1 << uint(s.headID)
}

func (s *State) lock() error {
	if err := unix.Flock(int(s.f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("mhd: lock state: %w", err)
	}
	return nil
}

func (s *State) unlock() {
	if err := unix.Flock(int(s.f.Fd()), unix.LOCK_UN); err != nil {
		s.log.Error().Err(err).Msg("state unlock failed")
	}
}
