package node

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/lightningnetwork/lnd/lntypes"

	"konduit.dev/node/channel"
	"konduit.dev/node/node/store"
)

// Ledger yields the channel outputs currently on the ledger, in any order.
type Ledger interface {
	Channels(ctx context.Context) ([]channel.Channel, error)
}

// Lightning is the payment network the adaptor forwards through.
type Lightning interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
	Pay(ctx context.Context, req PayRequest) (lntypes.Preimage, error)
}

type QuoteRequest struct {
	Invoice string
}

// Quote is the Lightning side of a payment: what the invoice asks for and
// what routing it costs, in channel units.
type Quote struct {
	PaymentHash lntypes.Hash
	Amount      uint64
	RoutingFee  uint64
	// RelativeTimeout bounds how long the payment may take to settle.
	RelativeTimeout channel.Duration
}

type PayRequest struct {
	ID      string
	Invoice string
	MaxFee  uint64
	// Deadline is when the cheque backing the payment times out.
	Deadline channel.Timestamp
}

// FileLedger reads a snapshot file with one hex-encoded channel per line.
// Blank lines and lines starting with '#' are skipped.
type FileLedger struct {
	Path string
}

var _ Ledger = FileLedger{}

func (l FileLedger) Channels(ctx context.Context) ([]channel.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := readFileByPath(l.Path)
	if err != nil {
		return nil, fmt.Errorf("ledger snapshot: %w", err)
	}
	return ParseSnapshot(raw)
}

func ParseSnapshot(raw []byte) ([]channel.Channel, error) {
	var out []channel.Channel
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		b, err := hex.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("snapshot line %d: %w", line, err)
		}
		var c channel.Channel
		if err := c.UnmarshalBinary(b); err != nil {
			return nil, fmt.Errorf("snapshot line %d: %w", line, err)
		}
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func FormatSnapshot(chans []channel.Channel) ([]byte, error) {
	var buf bytes.Buffer
	for _, c := range chans {
		b, err := c.MarshalBinary()
		if err != nil {
			return nil, err
		}
		buf.WriteString(hex.EncodeToString(b))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// WriteSnapshot replaces the snapshot at path atomically, so a polling
// FileLedger never reads a half-written file.
func WriteSnapshot(path string, chans []channel.Channel) error {
	b, err := FormatSnapshot(chans)
	if err != nil {
		return err
	}
	return store.WriteFileAtomic(path, b)
}
