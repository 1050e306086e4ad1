package channel

// Actor is the party driving a transition.
type Actor uint8

const (
	Consumer Actor = iota
	Adaptor
)

func (a Actor) String() string {
	switch a {
	case Consumer:
		return "consumer"
	case Adaptor:
		return "adaptor"
	default:
		return "unknown"
	}
}

// Intent is a requested transition. The set is closed: Add, Close and
// Timeout for the consumer; Sub, Respond and Unlock for the adaptor.
type Intent interface {
	Actor() Actor
	isIntent()
}

// Add deposits more funds into an opened channel.
type Add struct {
	Amount uint64
}

// Close starts the close period. UpperBound is the end of the closing
// transaction's validity range and is recorded as the close time.
type Close struct {
	UpperBound Timestamp
}

// Timeout reclaims the channel after the close period, or the pendings
// after their deadlines.
type Timeout struct {
	LowerBound Timestamp
}

// Sub claims what the squash and the unlocked cheques prove owed.
type Sub struct {
	Squash     Squash
	Unlockeds  []Unlocked
	UpperBound Timestamp
}

// Respond answers a close: unlocked cheques are claimed, locked ones become
// pendings.
type Respond struct {
	Squash     Squash
	Cheques    []Cheque
	UpperBound Timestamp
}

// Unlock releases pendings by revealing their secrets.
type Unlock struct {
	Secrets    []Secret
	UpperBound Timestamp
}

func (Add) Actor() Actor     { return Consumer }
func (Close) Actor() Actor   { return Consumer }
func (Timeout) Actor() Actor { return Consumer }
func (Sub) Actor() Actor     { return Adaptor }
func (Respond) Actor() Actor { return Adaptor }
func (Unlock) Actor() Actor  { return Adaptor }

func (Add) isIntent()     {}
func (Close) isIntent()   {}
func (Timeout) isIntent() {}
func (Sub) isIntent()     {}
func (Respond) isIntent() {}
func (Unlock) isIntent()  {}
