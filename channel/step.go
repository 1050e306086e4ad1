package channel

import "math/bits"

type StepKind uint8

const (
	StepAdd StepKind = iota
	StepSub
	StepClose
	StepRespond
	StepUnlock
	StepExpire
	StepEnd
	StepElapse
)

func (k StepKind) String() string {
	switch k {
	case StepAdd:
		return "add"
	case StepSub:
		return "sub"
	case StepClose:
		return "close"
	case StepRespond:
		return "respond"
	case StepUnlock:
		return "unlock"
	case StepExpire:
		return "expire"
	case StepEnd:
		return "end"
	case StepElapse:
		return "elapse"
	default:
		return "unknown"
	}
}

// Step is the outcome of applying an Intent. Next is nil for the terminal
// kinds End and Elapse, whose output is spent without a successor. Claimed
// leaves the channel to the adaptor, Refunded to the consumer. Unpends is
// the positional proof for unlock and expire.
type Step struct {
	Kind     StepKind
	Next     *Channel
	Claimed  uint64
	Refunded uint64
	Unpends  []Unpend
}

func (s Step) IsEol() bool { return s.Next == nil }

// Step computes the successor of c under in. It never mutates c. Any error
// is final for this state: the caller re-reads the ledger and decides again.
func (c Channel) Step(in Intent) (Step, error) {
	locked, err := lockedValue(c.Stage)
	if err != nil {
		return Step{}, err
	}
	if locked != c.Amount {
		return Step{}, chanerrf(ERR_BAD_AMOUNT, "locked value %d, stage accounts for %d", c.Amount, locked)
	}
	switch in := in.(type) {
	case Add:
		return c.stepAdd(in)
	case Close:
		return c.stepClose(in)
	case Timeout:
		return c.stepTimeout(in)
	case Sub:
		return c.stepSub(in)
	case Respond:
		return c.stepRespond(in)
	case Unlock:
		return c.stepUnlock(in)
	default:
		return Step{}, chanerrf(ERR_BAD_VARIANT, "intent %T", in)
	}
}

func wrongStage(op string, s Stage) error {
	return chanerrf(ERR_WRONG_STAGE, "%s not allowed while %s", op, StageName(s))
}

func (c Channel) successor(s Stage, amount uint64) *Channel {
	next := c
	next.Stage = s
	next.Amount = amount
	return &next
}

func (c Channel) stepAdd(in Add) (Step, error) {
	s, ok := c.Stage.(Opened)
	if !ok {
		return Step{}, wrongStage("add", c.Stage)
	}
	amount, carry := bits.Add64(s.Amount, in.Amount, 0)
	if carry != 0 {
		return Step{}, chanerr(ERR_AMOUNT_OVERFLOW, "add")
	}
	locked, carry := bits.Add64(c.Amount, in.Amount, 0)
	if carry != 0 {
		return Step{}, chanerr(ERR_AMOUNT_OVERFLOW, "add")
	}
	s.Amount = amount
	return Step{Kind: StepAdd, Next: c.successor(s, locked)}, nil
}

func (c Channel) stepClose(in Close) (Step, error) {
	s, ok := c.Stage.(Opened)
	if !ok {
		return Step{}, wrongStage("close", c.Stage)
	}
	next := Closed{Amount: s.Amount, Subbed: s.Subbed, Timestamp: in.UpperBound}
	return Step{Kind: StepClose, Next: c.successor(next, c.Amount)}, nil
}

func (c Channel) stepTimeout(in Timeout) (Step, error) {
	switch s := c.Stage.(type) {
	case Closed:
		if in.LowerBound < s.Timestamp.Add(c.Constants.ClosePeriod) {
			return Step{}, chanerrf(ERR_TOO_EARLY, "close period ends at %d", s.Timestamp.Add(c.Constants.ClosePeriod))
		}
		return Step{Kind: StepElapse, Refunded: c.Amount}, nil
	case Responded:
		if len(s.Pendings) == 0 {
			return Step{Kind: StepEnd, Refunded: c.Amount}, nil
		}
		proof, released, remaining, err := s.Pendings.Expire(in.LowerBound)
		if err != nil {
			return Step{}, err
		}
		if len(remaining) == 0 {
			return Step{Kind: StepEnd, Refunded: c.Amount, Unpends: proof}, nil
		}
		next := Responded{Amount: s.Amount, Pendings: remaining}
		return Step{
			Kind:     StepExpire,
			Next:     c.successor(next, c.Amount-released),
			Refunded: released,
			Unpends:  proof,
		}, nil
	case Opened:
		return Step{}, wrongStage("timeout", c.Stage)
	default:
		return Step{}, chanerrf(ERR_BAD_VARIANT, "stage %T", s)
	}
}

// prove verifies the squash and folds the unlocked cheques into a copy of
// it, returning the proven cumulative amount and the folded body.
func (c Channel) prove(sq Squash, unlockeds []Unlocked, upperBound Timestamp) (SquashBody, error) {
	tag, vk := c.Constants.Tag, c.Constants.AddVkey
	if err := sq.Verify(vk, tag); err != nil {
		return SquashBody{}, err
	}
	body := sq.Body.Clone()
	for _, u := range unlockeds {
		if err := u.Verify(vk, tag); err != nil {
			return SquashBody{}, err
		}
		if upperBound > u.Body.Timeout {
			return SquashBody{}, chanerrf(ERR_CHEQUE_EXPIRED, "cheque %d timed out at %d", u.Body.Index, u.Body.Timeout)
		}
		if err := body.Squash(u.Body); err != nil {
			return SquashBody{}, err
		}
	}
	return body, nil
}

func claimable(proven, subbed uint64) (uint64, error) {
	if proven < subbed {
		return 0, chanerrf(ERR_STALE_SQUASH, "proven %d below already subbed %d", proven, subbed)
	}
	return proven - subbed, nil
}

func (c Channel) stepSub(in Sub) (Step, error) {
	s, ok := c.Stage.(Opened)
	if !ok {
		return Step{}, wrongStage("sub", c.Stage)
	}
	body, err := c.prove(in.Squash, in.Unlockeds, in.UpperBound)
	if err != nil {
		return Step{}, err
	}
	claim, err := claimable(body.Amount, s.Subbed)
	if err != nil {
		return Step{}, err
	}
	if claim == 0 {
		return Step{}, chanerr(ERR_NOTHING_TO_RELEASE, "sub claims nothing")
	}
	if claim > s.Amount {
		return Step{}, chanerrf(ERR_OVERDRAFT, "claim %d exceeds balance %d", claim, s.Amount)
	}
	next := Opened{Amount: s.Amount - claim, Subbed: body.Amount}
	return Step{Kind: StepSub, Next: c.successor(next, c.Amount-claim), Claimed: claim}, nil
}

func (c Channel) stepRespond(in Respond) (Step, error) {
	s, ok := c.Stage.(Closed)
	if !ok {
		return Step{}, wrongStage("respond", c.Stage)
	}
	if deadline := s.Timestamp.Add(c.Constants.ClosePeriod); in.UpperBound > deadline {
		return Step{}, chanerrf(ERR_TOO_LATE, "close period ended at %d", deadline)
	}
	var unlockeds []Unlocked
	var lockeds []Locked
	for _, ch := range in.Cheques {
		switch ch := ch.(type) {
		case Unlocked:
			unlockeds = append(unlockeds, ch)
		case Locked:
			lockeds = append(lockeds, ch)
		default:
			return Step{}, chanerrf(ERR_BAD_VARIANT, "cheque %T", ch)
		}
	}
	if len(lockeds) > MaxPendingsLength {
		return Step{}, chanerrf(ERR_BAD_LENGTH, "%d pendings exceed %d", len(lockeds), MaxPendingsLength)
	}
	body, err := c.prove(in.Squash, unlockeds, in.UpperBound)
	if err != nil {
		return Step{}, err
	}
	tag, vk := c.Constants.Tag, c.Constants.AddVkey
	pendings := make(Pendings, 0, len(lockeds))
	seen := make(map[uint64]struct{}, len(lockeds))
	for _, l := range lockeds {
		if err := l.Verify(vk, tag); err != nil {
			return Step{}, err
		}
		if in.UpperBound > l.Body.Timeout {
			return Step{}, chanerrf(ERR_CHEQUE_EXPIRED, "cheque %d timed out at %d", l.Body.Index, l.Body.Timeout)
		}
		if _, dup := seen[l.Body.Index]; dup || body.IsIndexSquashed(l.Body.Index) {
			return Step{}, chanerrf(ERR_DUPLICATE_INDEX, "cheque %d already accounted", l.Body.Index)
		}
		seen[l.Body.Index] = struct{}{}
		pendings = append(pendings, PendingFrom(l.Body))
	}
	claim, err := claimable(body.Amount, s.Subbed)
	if err != nil {
		return Step{}, err
	}
	pending, err := pendings.Total()
	if err != nil {
		return Step{}, err
	}
	owed, carry := bits.Add64(claim, pending, 0)
	if carry != 0 || owed > s.Amount {
		return Step{}, chanerrf(ERR_OVERDRAFT, "claim %d plus pending %d exceeds balance %d", claim, pending, s.Amount)
	}
	next := Responded{Amount: s.Amount - owed, Pendings: pendings}
	return Step{Kind: StepRespond, Next: c.successor(next, c.Amount-claim), Claimed: claim}, nil
}

func (c Channel) stepUnlock(in Unlock) (Step, error) {
	s, ok := c.Stage.(Responded)
	if !ok {
		return Step{}, wrongStage("unlock", c.Stage)
	}
	proof, released, remaining, err := s.Pendings.Unlock(in.Secrets, in.UpperBound)
	if err != nil {
		return Step{}, err
	}
	next := Responded{Amount: s.Amount, Pendings: remaining}
	return Step{Kind: StepUnlock, Next: c.successor(next, c.Amount-released), Claimed: released, Unpends: proof}, nil
}
