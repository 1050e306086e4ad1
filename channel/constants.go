package channel

// Bounds are the deployment limits a channel's Constants must respect.
type Bounds struct {
	MaxTagLength   int
	MinClosePeriod Duration
}

func DefaultBounds() Bounds {
	return Bounds{
		MaxTagLength:   DefaultMaxTagLength,
		MinClosePeriod: Duration(24 * 60 * 60 * 1000),
	}
}

// Constants are fixed for a channel's lifetime and embedded in every datum.
// AddVkey belongs to the consumer, SubVkey to the adaptor.
type Constants struct {
	Tag         Tag
	AddVkey     VerificationKey
	SubVkey     VerificationKey
	ClosePeriod Duration
}

func (c Constants) Validate(b Bounds) error {
	if len(c.Tag) > b.MaxTagLength {
		return chanerrf(ERR_BAD_CONSTANTS, "tag length %d exceeds %d", len(c.Tag), b.MaxTagLength)
	}
	if c.ClosePeriod < b.MinClosePeriod {
		return chanerrf(ERR_BAD_CONSTANTS, "close period %d below minimum %d", c.ClosePeriod, b.MinClosePeriod)
	}
	return nil
}

// Keytag identifies the channel by the consumer key and tag.
func (c Constants) Keytag() Keytag { return NewKeytag(c.AddVkey, c.Tag) }

func (c Constants) Equal(o Constants) bool {
	return c.Tag.Equal(o.Tag) && c.AddVkey == o.AddVkey && c.SubVkey == o.SubVkey && c.ClosePeriod == o.ClosePeriod
}

func (c Constants) appendTo(dst []byte) []byte {
	dst = appendVarBytes(dst, c.Tag)
	dst = append(dst, c.AddVkey[:]...)
	dst = append(dst, c.SubVkey[:]...)
	return appendU64(dst, uint64(c.ClosePeriod))
}

func (c Constants) Encode() []byte { return c.appendTo(nil) }

func readConstants(b []byte, off *int) (Constants, error) {
	var c Constants
	tag, err := readVarBytes(b, off, 0xffff)
	if err != nil {
		return c, err
	}
	c.Tag = tag
	if c.AddVkey, err = read32(b, off); err != nil {
		return c, err
	}
	if c.SubVkey, err = read32(b, off); err != nil {
		return c, err
	}
	cp, err := readU64(b, off)
	if err != nil {
		return c, err
	}
	c.ClosePeriod = Duration(cp)
	return c, nil
}

func DecodeConstants(b []byte) (Constants, error) {
	off := 0
	c, err := readConstants(b, &off)
	if err != nil {
		return Constants{}, err
	}
	if err := expectEnd(b, off, "constants"); err != nil {
		return Constants{}, err
	}
	return c, nil
}
