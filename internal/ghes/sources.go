package ghes

// NotifyType is a hardware error notification type identifier.
type NotifyType uint32

const (
	NotifyPolled NotifyType = iota
	NotifyExternal
	NotifyLocal
	NotifySCI
	NotifyNMI
	NotifyCMCI
	NotifyMCE
	NotifyGPIO
	NotifySEA
	NotifySEI
	NotifyGSIV
	NotifySDEI
	NotifyReserved
)

// Source ids, in region order.
const (
	SourceIDSEA  = 0
	SourceIDGPIO = 1
)

// sourceIndex maps a notification type to its region index. Types without a
// configured source resolve to false.
func sourceIndex(notify NotifyType) (int, bool) {
	switch notify {
	case NotifySEA:
		return SourceIDSEA, true
	case NotifyGPIO:
		return SourceIDGPIO, true
	default:
		return 0, false
	}
}

// Addresses is a resolved (error block, read ack) register pair.
type Addresses struct {
	Block uint64
	Ack   uint64
}

// Resolve maps a notification type to its error-block and read-ack guest
// addresses. The second return is false when the type has no source or the
// region has not been linked yet.
func (s *State) Resolve(notify NotifyType) (Addresses, bool) {
	idx, ok := sourceIndex(notify)
	if !ok {
		return Addresses{}, false
	}
	base := s.BaseAddress()
	if base == 0 {
		return Addresses{}, false
	}
	return Addresses{
		Block: base + 2*SourceCount*addressSize + uint64(idx)*MaxRawDataLength,
		Ack:   base + SourceCount*addressSize + uint64(idx)*addressSize,
	}, true
}
