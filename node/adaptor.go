package node

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"konduit.dev/node/channel"
	"konduit.dev/node/crypto"
	"konduit.dev/node/node/store"
)

var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrChannelNotOpen = errors.New("channel not open")
	ErrNoCapacity     = errors.New("insufficient channel capacity")
	ErrChequeTerms    = errors.New("cheque does not meet quoted terms")
	ErrSquashRejected = errors.New("squash rejected")
	ErrSquashNeeded   = errors.New("too many unsquashed cheques")
	ErrLedgerStale    = errors.New("ledger view stale")
	ErrLedgerFailed   = errors.New("ledger view failed")
)

// intentValidity is the validity window the adaptor asks for on the
// transactions it plans.
const intentValidity = 10 * time.Minute

type AdaptorDeps struct {
	Store     store.Store
	Ledger    Ledger
	Lightning Lightning
	Logger    *slog.Logger
}

// Adaptor serves consumers of channels whose sub key is vkey: it quotes and
// pays Lightning invoices against locked cheques, collects squashes, keeps
// its records in step with the ledger, and plans its own transitions.
type Adaptor struct {
	cfg       Config
	vkey      channel.VerificationKey
	validator *channel.ScriptHash
	store     store.Store
	ledger    Ledger
	lightning Lightning
	arena     *Arena
	health    *ledgerHealth
	logger    *slog.Logger
	now       func() time.Time
	tipMu     sync.Mutex
}

func NewAdaptor(cfg Config, vkey channel.VerificationKey, deps AdaptorDeps) (*Adaptor, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, errors.New("nil store")
	}
	if deps.Ledger == nil {
		return nil, errors.New("nil ledger")
	}
	if deps.Lightning == nil {
		return nil, errors.New("nil lightning")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	staleAfter, err := cfg.StaleAfter()
	if err != nil {
		return nil, err
	}
	validator, err := cfg.ValidatorHash()
	if err != nil {
		return nil, err
	}
	return &Adaptor{
		cfg:       cfg,
		vkey:      vkey,
		validator: validator,
		store:     deps.Store,
		ledger:    deps.Ledger,
		lightning: deps.Lightning,
		arena:     NewArena(),
		health:    newLedgerHealth(cfg.StaleThreshold, staleAfter, logger),
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (a *Adaptor) Health() HealthState { return a.health.State() }

func (a *Adaptor) ready() error {
	switch a.health.State() {
	case HealthNormal:
		return nil
	case HealthFailed:
		return ErrLedgerFailed
	default:
		return ErrLedgerStale
	}
}

func (a *Adaptor) timestamp() channel.Timestamp { return channel.TimestampFromTime(a.now()) }

func (a *Adaptor) load(k channel.Keytag) (*Record, error) {
	raw, ok, err := a.store.Get(k)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownChannel
	}
	var rec Record
	if err := rec.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("channel %s: %w", k, err)
	}
	return &rec, nil
}

func (a *Adaptor) save(k channel.Keytag, rec *Record) error {
	raw, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	return a.store.Put(k, raw)
}

func openedChannel(rec *Record) (*channel.Channel, error) {
	if rec.Channel == nil {
		return nil, ErrUnknownChannel
	}
	if _, ok := rec.Channel.Stage.(channel.Opened); !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotOpen, channel.StageName(rec.Channel.Stage))
	}
	return rec.Channel, nil
}

// ChequeQuote tells the consumer what cheque pays an invoice.
type ChequeQuote struct {
	Index      uint64
	Amount     uint64
	Timeout    channel.Timestamp
	Lock       channel.Lock
	Fee        uint64
	RoutingFee uint64
	Capacity   uint64
}

// chequeTerms is the minimum cheque amount and timeout for quote q.
func (a *Adaptor) chequeTerms(q Quote) (amount uint64, fee uint64, timeout channel.Timestamp, err error) {
	fee = a.cfg.Fee(q.Amount)
	amount, carry := bits.Add64(q.Amount, q.RoutingFee, 0)
	if carry == 0 {
		amount, carry = bits.Add64(amount, fee, 0)
	}
	if carry != 0 {
		return 0, 0, 0, fmt.Errorf("%w: amount overflow", ErrChequeTerms)
	}
	timeout = a.timestamp().Add(q.RelativeTimeout).Add(channel.Duration(a.cfg.MinChequeTTL))
	return amount, fee, timeout, nil
}

func (a *Adaptor) Quote(ctx context.Context, k channel.Keytag, req QuoteRequest) (ChequeQuote, error) {
	if err := a.ready(); err != nil {
		return ChequeQuote{}, err
	}
	q, err := a.lightning.Quote(ctx, req)
	if err != nil {
		return ChequeQuote{}, fmt.Errorf("lightning quote: %w", err)
	}
	amount, fee, timeout, err := a.chequeTerms(q)
	if err != nil {
		return ChequeQuote{}, err
	}

	unlock := a.arena.Lock(k)
	defer unlock()
	rec, err := a.load(k)
	if err != nil {
		return ChequeQuote{}, err
	}
	if _, err := openedChannel(rec); err != nil {
		return ChequeQuote{}, err
	}
	capacity, err := rec.Capacity()
	if err != nil {
		return ChequeQuote{}, err
	}
	if amount > capacity {
		return ChequeQuote{}, fmt.Errorf("%w: need %d, have %d", ErrNoCapacity, amount, capacity)
	}
	return ChequeQuote{
		Index:      rec.NextIndex(),
		Amount:     amount,
		Timeout:    timeout,
		Lock:       channel.LockFromPaymentHash(q.PaymentHash),
		Fee:        fee,
		RoutingFee: q.RoutingFee,
		Capacity:   capacity,
	}, nil
}

// Pay forwards invoice on the strength of cheque and returns the receipt
// once Lightning reveals the preimage. The cheque is recorded as in flight
// before the payment starts, so a crash never loses it.
func (a *Adaptor) Pay(ctx context.Context, k channel.Keytag, invoice string, cheque channel.Locked) (channel.Unlocked, error) {
	if err := a.ready(); err != nil {
		return channel.Unlocked{}, err
	}
	q, err := a.lightning.Quote(ctx, QuoteRequest{Invoice: invoice})
	if err != nil {
		return channel.Unlocked{}, fmt.Errorf("lightning quote: %w", err)
	}
	minAmount, fee, minTimeout, err := a.chequeTerms(q)
	if err != nil {
		return channel.Unlocked{}, err
	}
	body := cheque.Body
	log := a.logger.With("keytag", k.String(), "index", body.Index)

	if err := a.admit(k, cheque, q, minAmount, minTimeout); err != nil {
		log.Warn("cheque refused", "error", err.Error())
		return channel.Unlocked{}, err
	}

	payID := uuid.NewString()
	log.Info("paying invoice", "pay_id", payID, "amount", q.Amount, "cheque_amount", body.Amount)
	preimage, payErr := a.lightning.Pay(ctx, PayRequest{
		ID:       payID,
		Invoice:  invoice,
		MaxFee:   body.Amount - q.Amount - fee,
		Deadline: body.Timeout,
	})

	unlock := a.arena.Lock(k)
	defer unlock()
	rec, err := a.load(k)
	if err != nil {
		return channel.Unlocked{}, err
	}
	if payErr != nil {
		rec.dropLocked(body.Index)
		if err := a.save(k, rec); err != nil {
			return channel.Unlocked{}, err
		}
		log.Warn("payment failed", "pay_id", payID, "error", payErr.Error())
		return channel.Unlocked{}, fmt.Errorf("lightning pay: %w", payErr)
	}
	receipt, err := channel.NewUnlocked(cheque, channel.SecretFromPreimage(preimage))
	if err != nil {
		// Keep the cheque in flight; the payment may still settle properly.
		log.Error("preimage does not open cheque lock", "pay_id", payID, "error", err.Error())
		return channel.Unlocked{}, err
	}
	rec.dropLocked(body.Index)
	if !rec.Squash.Body.IsIndexSquashed(body.Index) {
		rec.Unlocked = append(rec.Unlocked, receipt)
	}
	if err := a.save(k, rec); err != nil {
		return channel.Unlocked{}, err
	}
	log.Info("payment settled", "pay_id", payID)
	return receipt, nil
}

// admit checks cheque against the channel and the quote, then records it
// as in flight.
func (a *Adaptor) admit(k channel.Keytag, cheque channel.Locked, q Quote, minAmount uint64, minTimeout channel.Timestamp) error {
	unlock := a.arena.Lock(k)
	defer unlock()
	rec, err := a.load(k)
	if err != nil {
		return err
	}
	ch, err := openedChannel(rec)
	if err != nil {
		return err
	}
	if err := cheque.Verify(ch.Constants.AddVkey, ch.Constants.Tag); err != nil {
		return err
	}
	body := cheque.Body
	switch {
	case body.Lock != channel.LockFromPaymentHash(q.PaymentHash):
		return fmt.Errorf("%w: lock is not the invoice payment hash", ErrChequeTerms)
	case body.Amount < minAmount:
		return fmt.Errorf("%w: amount %d below %d", ErrChequeTerms, body.Amount, minAmount)
	case body.Timeout < minTimeout:
		return fmt.Errorf("%w: timeout %d before %d", ErrChequeTerms, body.Timeout, minTimeout)
	case body.Index == 0 || rec.HasIndex(body.Index):
		return fmt.Errorf("%w: index %d already used", ErrChequeTerms, body.Index)
	case rec.Outstanding() >= MaxOutstandingCheques:
		return fmt.Errorf("%w: %d held, squash before paying more", ErrSquashNeeded, rec.Outstanding())
	}
	capacity, err := rec.Capacity()
	if err != nil {
		return err
	}
	if body.Amount > capacity {
		return fmt.Errorf("%w: need %d, have %d", ErrNoCapacity, body.Amount, capacity)
	}
	rec.Locked = append(rec.Locked, cheque)
	return a.save(k, rec)
}

// Squash accepts a newer squash from the consumer and returns the receipts
// it still leaves out.
func (a *Adaptor) Squash(ctx context.Context, k channel.Keytag, sq channel.Squash) ([]channel.Unlocked, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := a.arena.Lock(k)
	defer unlock()
	rec, err := a.load(k)
	if err != nil {
		return nil, err
	}
	if rec.Channel == nil {
		return nil, ErrUnknownChannel
	}
	consts := rec.Channel.Constants
	if err := sq.Verify(consts.AddVkey, consts.Tag); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSquashRejected, err)
	}
	if rec.HasSquash() && !sq.Body.Covers(rec.Squash.Body) {
		return nil, fmt.Errorf("%w: does not cover index %d amount %d", ErrSquashRejected, rec.Squash.Body.Index, rec.Squash.Body.Amount)
	}
	rec.Squash = channel.Squash{Body: sq.Body.Clone(), Signature: sq.Signature}
	rec.Prune()
	if err := a.save(k, rec); err != nil {
		return nil, err
	}
	a.logger.Debug("squash accepted", "keytag", k.String(), "index", sq.Body.Index, "amount", sq.Body.Amount)
	return append([]channel.Unlocked(nil), rec.Unlocked...), nil
}

// ChannelInfo is one line of the tip view.
type ChannelInfo struct {
	Keytag   string `json:"keytag"`
	OnLedger bool   `json:"on_ledger"`
	Stage    string `json:"stage,omitempty"`
	Amount   uint64 `json:"amount"`
	Owed     uint64 `json:"owed"`
	Capacity uint64 `json:"capacity"`
	Receipts int    `json:"receipts"`
	InFlight int    `json:"in_flight"`
}

type TipReport struct {
	At       channel.Timestamp `json:"at"`
	Added    int               `json:"added"`
	Updated  int               `json:"updated"`
	Gone     int               `json:"gone"`
	Retired  int               `json:"retired"`
	Skipped  int               `json:"skipped"`
	Channels []ChannelInfo     `json:"channels"`
}

func channelInfo(k channel.Keytag, rec *Record) (ChannelInfo, error) {
	info := ChannelInfo{
		Keytag:   k.String(),
		OnLedger: rec.Channel != nil,
		Receipts: len(rec.Unlocked),
		InFlight: len(rec.Locked),
	}
	var err error
	if info.Owed, err = rec.Owed(); err != nil {
		return info, err
	}
	if info.Capacity, err = rec.Capacity(); err != nil {
		return info, err
	}
	if rec.Channel != nil {
		info.Stage = channel.StageName(rec.Channel.Stage)
		info.Amount = rec.Channel.Amount
	}
	return info, nil
}

// ledgerEntries keeps the channels this adaptor serves, sorted by keytag.
func (a *Adaptor) ledgerEntries(chans []channel.Channel) ([]channel.Entry[channel.Channel], int) {
	bounds := a.cfg.Bounds()
	out := make([]channel.Entry[channel.Channel], 0, len(chans))
	skipped := 0
	for _, c := range chans {
		if c.Constants.SubVkey != a.vkey {
			continue
		}
		if a.validator != nil && c.OwnHash != *a.validator {
			a.logger.Debug("ignoring channel at foreign script", "keytag", c.Keytag().String())
			continue
		}
		if err := c.Validate(bounds); err != nil {
			a.logger.Warn("ignoring channel", "keytag", c.Keytag().String(), "error", err.Error())
			skipped++
			continue
		}
		out = append(out, channel.Entry[channel.Channel]{Key: c.Keytag(), Value: c})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key.Compare(out[j].Key) < 0 })
	dedup := out[:0]
	for _, e := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Key.Equal(e.Key) {
			a.logger.Warn("duplicate keytag on ledger, keeping first", "keytag", e.Key.String())
			skipped++
			continue
		}
		dedup = append(dedup, e)
	}
	return dedup, skipped
}

func (a *Adaptor) storedEntries() ([]channel.Entry[*Record], error) {
	var out []channel.Entry[*Record]
	err := a.store.ForEach(func(k channel.Keytag, v []byte) error {
		var rec Record
		if err := rec.UnmarshalBinary(v); err != nil {
			return fmt.Errorf("channel %s: %w", k, err)
		}
		out = append(out, channel.Entry[*Record]{Key: k, Value: &rec})
		return nil
	})
	return out, err
}

type tipChange struct {
	key channel.Keytag
	ch  *channel.Channel
}

// Tip polls the ledger and reconciles every stored record with it.
func (a *Adaptor) Tip(ctx context.Context) (TipReport, error) {
	a.tipMu.Lock()
	defer a.tipMu.Unlock()

	chans, err := a.ledger.Channels(ctx)
	a.health.observe(err, a.now())
	if err != nil {
		return TipReport{}, fmt.Errorf("ledger: %w", err)
	}
	right, skipped := a.ledgerEntries(chans)
	left, err := a.storedEntries()
	if err != nil {
		return TipReport{}, err
	}

	var changes []tipChange
	err = channel.CoiterDefault(left, right,
		func() *Record { return nil },
		func(k channel.Keytag, _ *Record) {
			changes = append(changes, tipChange{key: k})
		},
		func(k channel.Keytag, _ *Record, c channel.Channel) {
			changes = append(changes, tipChange{key: k, ch: &c})
		})
	if err != nil {
		return TipReport{}, err
	}

	report := TipReport{At: a.timestamp(), Skipped: skipped}
	for _, c := range changes {
		if err := a.applyTip(c, &report); err != nil {
			return TipReport{}, err
		}
	}
	if report.Channels, err = a.ShowTip(); err != nil {
		return TipReport{}, err
	}
	m := &store.Manifest{
		SchemaVersion: store.SchemaVersionV1,
		Network:       a.cfg.Network,
		Backend:       a.cfg.DBBackend,
		TipUnixMillis: uint64(report.At),
		ChannelCount:  len(report.Channels),
	}
	if prev := a.store.Manifest(); prev != nil {
		m.TipSeq = prev.TipSeq + 1
	}
	if err := a.store.SetManifest(m); err != nil {
		return TipReport{}, err
	}
	a.logger.Info("tip reconciled",
		"channels", len(report.Channels),
		"added", report.Added,
		"updated", report.Updated,
		"gone", report.Gone,
		"retired", report.Retired,
	)
	return report, nil
}

// applyTip re-reads the record under the arena so concurrent payments are
// never overwritten with the snapshot taken before reconciliation.
func (a *Adaptor) applyTip(c tipChange, report *TipReport) error {
	unlock := a.arena.Lock(c.key)
	defer unlock()
	rec, err := a.load(c.key)
	switch {
	case errors.Is(err, ErrUnknownChannel):
		if c.ch == nil {
			return nil
		}
		rec = &Record{}
		report.Added++
	case err != nil:
		return err
	case c.ch != nil:
		report.Updated++
	}
	if c.ch == nil {
		if rec.Channel != nil {
			report.Gone++
		}
		rec.Channel = nil
		if len(rec.Unlocked) == 0 && len(rec.Locked) == 0 {
			report.Retired++
			return a.store.Delete(c.key)
		}
	} else {
		rec.Channel = c.ch
	}
	return a.save(c.key, rec)
}

// ShowTip lists stored channels without polling the ledger.
func (a *Adaptor) ShowTip() ([]ChannelInfo, error) {
	out := []ChannelInfo{}
	err := a.store.ForEach(func(k channel.Keytag, v []byte) error {
		var rec Record
		if err := rec.UnmarshalBinary(v); err != nil {
			return fmt.Errorf("channel %s: %w", k, err)
		}
		info, err := channelInfo(k, &rec)
		if err != nil {
			return err
		}
		out = append(out, info)
		return nil
	})
	return out, err
}

// PlannedIntent is a transition the adaptor should submit, already checked
// against the channel it applies to.
type PlannedIntent struct {
	Keytag channel.Keytag
	Intent channel.Intent
	Step   channel.Step
}

// Intents derives the adaptor's next transition for every channel it can
// move forward.
func (a *Adaptor) Intents(ctx context.Context) ([]PlannedIntent, error) {
	entries, err := a.storedEntries()
	if err != nil {
		return nil, err
	}
	now := a.timestamp()
	var out []PlannedIntent
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in, ok := planIntent(e.Value, now)
		if !ok {
			continue
		}
		step, err := e.Value.Channel.Step(in)
		if err != nil {
			if channel.CodeOf(err) != channel.ERR_NOTHING_TO_RELEASE {
				a.logger.Warn("planned intent rejected", "keytag", e.Key.String(), "error", err.Error())
			}
			continue
		}
		out = append(out, PlannedIntent{Keytag: e.Key, Intent: in, Step: step})
	}
	return out, nil
}

func planIntent(rec *Record, now channel.Timestamp) (channel.Intent, bool) {
	if rec.Channel == nil || !rec.HasSquash() {
		return nil, false
	}
	ub := now.Add(channel.DurationFromStd(intentValidity))
	switch s := rec.Channel.Stage.(type) {
	case channel.Opened:
		return channel.Sub{Squash: rec.Squash, Unlockeds: liveUnlocked(rec.Unlocked, ub), UpperBound: ub}, true
	case channel.Closed:
		deadline := s.Timestamp.Add(rec.Channel.Constants.ClosePeriod)
		if now > deadline {
			return nil, false
		}
		ub = min(ub, deadline)
		var cheques []channel.Cheque
		for _, u := range liveUnlocked(rec.Unlocked, ub) {
			cheques = append(cheques, u)
		}
		for _, l := range rec.Locked {
			if ub <= l.Body.Timeout {
				cheques = append(cheques, l)
			}
		}
		return channel.Respond{Squash: rec.Squash, Cheques: cheques, UpperBound: ub}, true
	case channel.Responded:
		known := rec.secrets()
		var secrets []channel.Secret
		for _, p := range s.Pendings {
			if secret, ok := known[p.Lock]; ok && p.Unlockable(ub) {
				secrets = append(secrets, secret)
			}
		}
		if len(secrets) == 0 {
			return nil, false
		}
		return channel.Unlock{Secrets: secrets, UpperBound: ub}, true
	default:
		return nil, false
	}
}

func liveUnlocked(us []channel.Unlocked, ub channel.Timestamp) []channel.Unlocked {
	var out []channel.Unlocked
	for _, u := range us {
		if ub <= u.Body.Timeout {
			out = append(out, u)
		}
	}
	return out
}

// Run polls the ledger every poll interval until ctx ends, logging the
// transitions the adaptor should submit. It returns ErrLedgerFailed once the
// ledger view has been stale for longer than the configured timeout.
func (a *Adaptor) Run(ctx context.Context) error {
	interval, err := a.cfg.Poll()
	if err != nil {
		return err
	}
	if err := a.tick(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (a *Adaptor) tick(ctx context.Context) error {
	if _, err := a.Tip(ctx); err != nil {
		if a.health.State() == HealthFailed {
			return fmt.Errorf("%w: %w", ErrLedgerFailed, err)
		}
		if ctx.Err() == nil {
			a.logger.Warn("tip failed", "error", err.Error())
		}
		return nil
	}
	planned, err := a.Intents(ctx)
	if err != nil {
		a.logger.Warn("planning intents failed", "error", err.Error())
		return nil
	}
	for _, p := range planned {
		a.logger.Info("intent ready",
			"keytag", p.Keytag.String(),
			"step", p.Step.Kind.String(),
			"claimed", p.Step.Claimed,
		)
	}
	return nil
}

// ConfigView is the public face of the adaptor's terms.
type ConfigView struct {
	Network        string `json:"network"`
	AdaptorVkey    string `json:"adaptor_vkey"`
	AdaptorKeyHash string `json:"adaptor_key_hash"`
	ClosePeriod    uint64 `json:"close_period"`
	MinClosePeriod uint64 `json:"min_close_period"`
	MaxTagLength   int    `json:"max_tag_length"`
	MinChequeTTL   uint64 `json:"min_cheque_ttl"`
	FeePPM         uint64 `json:"fee_ppm"`
	FeeBase        uint64 `json:"fee_base"`
}

func (a *Adaptor) ShowConfig() ConfigView {
	kh := crypto.KeyHash(a.vkey)
	return ConfigView{
		Network:        a.cfg.Network,
		AdaptorVkey:    hex.EncodeToString(a.vkey[:]),
		AdaptorKeyHash: hex.EncodeToString(kh[:]),
		ClosePeriod:    a.cfg.ClosePeriod,
		MinClosePeriod: a.cfg.MinClosePeriod,
		MaxTagLength:   a.cfg.MaxTagLength,
		MinChequeTTL:   a.cfg.MinChequeTTL,
		FeePPM:         a.cfg.FeePPM,
		FeeBase:        a.cfg.FeeBase,
	}
}
