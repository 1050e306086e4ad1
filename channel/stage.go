package channel

import "fmt"

// Stage is the lifecycle state of a channel: Opened, Closed or Responded.
// Amount is always the consumer's balance held by the channel.
type Stage interface {
	Balance() uint64
	isStage()
}

// Opened accepts deposits and subs. Subbed is the cumulative squash amount
// the adaptor has already claimed.
type Opened struct {
	Amount uint64
	Subbed uint64
}

// Closed is counting down ClosePeriod from Timestamp.
type Closed struct {
	Amount    uint64
	Subbed    uint64
	Timestamp Timestamp
}

// Responded holds the consumer balance plus the hash-locked pendings the
// adaptor still has to unlock.
type Responded struct {
	Amount   uint64
	Pendings Pendings
}

func (Opened) isStage()    {}
func (Closed) isStage()    {}
func (Responded) isStage() {}

func (s Opened) Balance() uint64    { return s.Amount }
func (s Closed) Balance() uint64    { return s.Amount }
func (s Responded) Balance() uint64 { return s.Amount }

func (s Opened) String() string { return fmt.Sprintf("Opened(%d, subbed=%d)", s.Amount, s.Subbed) }
func (s Closed) String() string {
	return fmt.Sprintf("Closed(%d, subbed=%d, at=%d)", s.Amount, s.Subbed, s.Timestamp)
}
func (s Responded) String() string {
	return fmt.Sprintf("Responded(%d, pendings=%d)", s.Amount, len(s.Pendings))
}

const (
	stageVariantOpened    uint8 = 0
	stageVariantClosed    uint8 = 1
	stageVariantResponded uint8 = 2
)

// StageName is used in logs and error messages.
func StageName(s Stage) string {
	switch s.(type) {
	case Opened:
		return "opened"
	case Closed:
		return "closed"
	case Responded:
		return "responded"
	default:
		return "unknown"
	}
}

func appendStage(dst []byte, s Stage) ([]byte, error) {
	switch s := s.(type) {
	case Opened:
		dst = appendU8(dst, stageVariantOpened)
		dst = appendU64(dst, s.Amount)
		return appendU64(dst, s.Subbed), nil
	case Closed:
		dst = appendU8(dst, stageVariantClosed)
		dst = appendU64(dst, s.Amount)
		dst = appendU64(dst, s.Subbed)
		return appendU64(dst, uint64(s.Timestamp)), nil
	case Responded:
		dst = appendU8(dst, stageVariantResponded)
		dst = appendU64(dst, s.Amount)
		return s.Pendings.appendTo(dst), nil
	default:
		return nil, chanerrf(ERR_BAD_VARIANT, "stage %T", s)
	}
}

func EncodeStage(s Stage) ([]byte, error) { return appendStage(nil, s) }

func readStage(b []byte, off *int) (Stage, error) {
	variant, err := readU8(b, off)
	if err != nil {
		return nil, err
	}
	switch variant {
	case stageVariantOpened:
		var s Opened
		if s.Amount, err = readU64(b, off); err != nil {
			return nil, err
		}
		if s.Subbed, err = readU64(b, off); err != nil {
			return nil, err
		}
		return s, nil
	case stageVariantClosed:
		var s Closed
		if s.Amount, err = readU64(b, off); err != nil {
			return nil, err
		}
		if s.Subbed, err = readU64(b, off); err != nil {
			return nil, err
		}
		ts, err := readU64(b, off)
		if err != nil {
			return nil, err
		}
		s.Timestamp = Timestamp(ts)
		return s, nil
	case stageVariantResponded:
		var s Responded
		if s.Amount, err = readU64(b, off); err != nil {
			return nil, err
		}
		if s.Pendings, err = readPendings(b, off); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, chanerrf(ERR_BAD_VARIANT, "stage variant %d", variant)
	}
}

func DecodeStage(b []byte) (Stage, error) {
	off := 0
	s, err := readStage(b, &off)
	if err != nil {
		return nil, err
	}
	if err := expectEnd(b, off, "stage"); err != nil {
		return nil, err
	}
	return s, nil
}
