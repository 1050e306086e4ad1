package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"konduit.dev/node/channel"
	"konduit.dev/node/crypto"
)

type Request struct {
	Op string `json:"op"`

	SeedHex    string      `json:"seed,omitempty"`
	VkeyHex    string      `json:"vkey,omitempty"`
	TagHex     string      `json:"tag,omitempty"`
	Index      uint64      `json:"index,omitempty"`
	Amount     uint64      `json:"amount,omitempty"`
	Timeout    uint64      `json:"timeout,omitempty"`
	LockHex    string      `json:"lock,omitempty"`
	SecretHex  string      `json:"secret,omitempty"`
	ChequeHex  string      `json:"cheque,omitempty"`
	SquashHex  string      `json:"squash,omitempty"`
	BodyHex    string      `json:"body,omitempty"`
	Cheques    []string    `json:"cheques,omitempty"`
	ChannelHex string      `json:"channel,omitempty"`
	Intent     *IntentJSON `json:"intent,omitempty"`
}

// IntentJSON carries any intent; Kind selects which fields apply.
type IntentJSON struct {
	Kind       string   `json:"kind"`
	Amount     uint64   `json:"amount,omitempty"`
	UpperBound uint64   `json:"upper_bound,omitempty"`
	LowerBound uint64   `json:"lower_bound,omitempty"`
	SquashHex  string   `json:"squash,omitempty"`
	Cheques    []string `json:"cheques,omitempty"`
	Secrets    []string `json:"secrets,omitempty"`
}

type Response struct {
	Ok         bool     `json:"ok"`
	Err        string   `json:"err,omitempty"`
	KeytagHex  string   `json:"keytag,omitempty"`
	KeyHashHex string   `json:"key_hash,omitempty"`
	VkeyHex    string   `json:"vkey,omitempty"`
	ChequeHex  string   `json:"cheque,omitempty"`
	SquashHex  string   `json:"squash,omitempty"`
	BodyHex    string   `json:"body,omitempty"`
	Amount     uint64   `json:"amount,omitempty"`
	Index      uint64   `json:"index,omitempty"`
	Exclude    []uint64 `json:"exclude,omitempty"`
	Step       string   `json:"step,omitempty"`
	ChannelHex string   `json:"channel,omitempty"`
	Stage      string   `json:"stage,omitempty"`
	Claimed    uint64   `json:"claimed,omitempty"`
	Refunded   uint64   `json:"refunded,omitempty"`
	UnpendsHex string   `json:"unpends,omitempty"`
}

func writeResp(w io.Writer, resp Response) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(resp)
}

// errResp reports the channel error code when err carries one.
func errResp(err error) Response {
	if code := channel.CodeOf(err); code != "" {
		return Response{Ok: false, Err: string(code)}
	}
	return Response{Ok: false, Err: err.Error()}
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
}

func parseVkey(s string) (channel.VerificationKey, error) {
	b, err := decodeHex(s)
	if err != nil {
		return channel.VerificationKey{}, fmt.Errorf("bad vkey")
	}
	return channel.VerificationKeyFromBytes(b)
}

func parseTag(s string) (channel.Tag, error) {
	b, err := decodeHex(s)
	if err != nil {
		return nil, fmt.Errorf("bad tag")
	}
	return channel.Tag(b), nil
}

func parseSigner(s string) (*crypto.TinkSigner, error) {
	b, err := decodeHex(s)
	if err != nil {
		return nil, fmt.Errorf("bad seed")
	}
	return crypto.NewTinkSigner(b)
}

func parseCheques(items []string) ([]channel.Cheque, error) {
	out := make([]channel.Cheque, 0, len(items))
	for _, item := range items {
		b, err := decodeHex(item)
		if err != nil {
			return nil, fmt.Errorf("bad cheque hex")
		}
		c, err := channel.DecodeCheque(b)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseSquash(s string) (channel.Squash, error) {
	b, err := decodeHex(s)
	if err != nil {
		return channel.Squash{}, fmt.Errorf("bad squash hex")
	}
	return channel.DecodeSquash(b)
}

func parseBody(s string) (channel.SquashBody, error) {
	if s == "" {
		return channel.SquashBody{}, nil
	}
	b, err := decodeHex(s)
	if err != nil {
		return channel.SquashBody{}, fmt.Errorf("bad body hex")
	}
	return channel.DecodeSquashBody(b)
}

func parseIntent(in *IntentJSON) (channel.Intent, error) {
	if in == nil {
		return nil, fmt.Errorf("missing intent")
	}
	ub, lb := channel.Timestamp(in.UpperBound), channel.Timestamp(in.LowerBound)
	switch in.Kind {
	case "add":
		return channel.Add{Amount: in.Amount}, nil
	case "close":
		return channel.Close{UpperBound: ub}, nil
	case "timeout":
		return channel.Timeout{LowerBound: lb}, nil
	case "sub", "respond":
		sq, err := parseSquash(in.SquashHex)
		if err != nil {
			return nil, err
		}
		cheques, err := parseCheques(in.Cheques)
		if err != nil {
			return nil, err
		}
		if in.Kind == "respond" {
			return channel.Respond{Squash: sq, Cheques: cheques, UpperBound: ub}, nil
		}
		unlockeds := make([]channel.Unlocked, 0, len(cheques))
		for _, c := range cheques {
			u, ok := c.(channel.Unlocked)
			if !ok {
				return nil, fmt.Errorf("sub takes unlocked cheques only")
			}
			unlockeds = append(unlockeds, u)
		}
		return channel.Sub{Squash: sq, Unlockeds: unlockeds, UpperBound: ub}, nil
	case "unlock":
		secrets := make([]channel.Secret, 0, len(in.Secrets))
		for _, s := range in.Secrets {
			b, err := decodeHex(s)
			if err != nil {
				return nil, fmt.Errorf("bad secret hex")
			}
			secret, err := channel.SecretFromBytes(b)
			if err != nil {
				return nil, err
			}
			secrets = append(secrets, secret)
		}
		return channel.Unlock{Secrets: secrets, UpperBound: ub}, nil
	default:
		return nil, fmt.Errorf("unknown intent kind %q", in.Kind)
	}
}

func runFromStdin(r io.Reader, w io.Writer) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		writeResp(w, Response{Ok: false, Err: fmt.Sprintf("bad request: %v", err)})
		return
	}
	writeResp(w, handle(req))
}

func handle(req Request) Response {
	switch req.Op {
	case "keytag":
		vk, err := parseVkey(req.VkeyHex)
		if err != nil {
			return errResp(err)
		}
		tag, err := parseTag(req.TagHex)
		if err != nil {
			return errResp(err)
		}
		return Response{Ok: true, KeytagHex: channel.NewKeytag(vk, tag).String()}

	case "key_hash":
		vk, err := parseVkey(req.VkeyHex)
		if err != nil {
			return errResp(err)
		}
		kh := crypto.KeyHash(vk)
		return Response{Ok: true, KeyHashHex: kh.String()}

	case "sign_cheque":
		signer, err := parseSigner(req.SeedHex)
		if err != nil {
			return errResp(err)
		}
		tag, err := parseTag(req.TagHex)
		if err != nil {
			return errResp(err)
		}
		lb, err := decodeHex(req.LockHex)
		if err != nil {
			return Response{Ok: false, Err: "bad lock hex"}
		}
		lock, err := channel.LockFromBytes(lb)
		if err != nil {
			return errResp(err)
		}
		l, err := channel.SignLocked(signer, tag, channel.ChequeBody{
			Index: req.Index, Amount: req.Amount, Timeout: channel.Timestamp(req.Timeout), Lock: lock,
		})
		if err != nil {
			return errResp(err)
		}
		return Response{Ok: true, ChequeHex: hex.EncodeToString(channel.EncodeCheque(l)), VkeyHex: signer.VerificationKey().String()}

	case "unlock_cheque":
		cheques, err := parseCheques([]string{req.ChequeHex})
		if err != nil {
			return errResp(err)
		}
		l, ok := cheques[0].(channel.Locked)
		if !ok {
			return Response{Ok: false, Err: "cheque already unlocked"}
		}
		sb, err := decodeHex(req.SecretHex)
		if err != nil {
			return Response{Ok: false, Err: "bad secret hex"}
		}
		secret, err := channel.SecretFromBytes(sb)
		if err != nil {
			return errResp(err)
		}
		u, err := channel.NewUnlocked(l, secret)
		if err != nil {
			return errResp(err)
		}
		return Response{Ok: true, ChequeHex: hex.EncodeToString(channel.EncodeCheque(u))}

	case "squash":
		body, err := parseBody(req.BodyHex)
		if err != nil {
			return errResp(err)
		}
		cheques, err := parseCheques(req.Cheques)
		if err != nil {
			return errResp(err)
		}
		bodies := make([]channel.ChequeBody, 0, len(cheques))
		for _, c := range cheques {
			bodies = append(bodies, c.ChequeBody())
		}
		if err := body.SquashAll(bodies...); err != nil {
			return errResp(err)
		}
		return Response{
			Ok:      true,
			BodyHex: hex.EncodeToString(body.Encode()),
			Amount:  body.Amount,
			Index:   body.Index,
			Exclude: body.Exclude.Values(),
		}

	case "sign_squash":
		signer, err := parseSigner(req.SeedHex)
		if err != nil {
			return errResp(err)
		}
		tag, err := parseTag(req.TagHex)
		if err != nil {
			return errResp(err)
		}
		body, err := parseBody(req.BodyHex)
		if err != nil {
			return errResp(err)
		}
		sq, err := channel.SignSquash(signer, tag, body)
		if err != nil {
			return errResp(err)
		}
		return Response{Ok: true, SquashHex: hex.EncodeToString(sq.Encode())}

	case "verify":
		vk, err := parseVkey(req.VkeyHex)
		if err != nil {
			return errResp(err)
		}
		tag, err := parseTag(req.TagHex)
		if err != nil {
			return errResp(err)
		}
		switch {
		case req.SquashHex != "":
			sq, err := parseSquash(req.SquashHex)
			if err != nil {
				return errResp(err)
			}
			if err := sq.Verify(vk, tag); err != nil {
				return errResp(err)
			}
		case req.ChequeHex != "":
			cheques, err := parseCheques([]string{req.ChequeHex})
			if err != nil {
				return errResp(err)
			}
			var locked channel.Locked
			switch c := cheques[0].(type) {
			case channel.Locked:
				locked = c
			case channel.Unlocked:
				locked = c.Locked
			}
			if err := locked.Verify(vk, tag); err != nil {
				return errResp(err)
			}
		default:
			return Response{Ok: false, Err: "nothing to verify"}
		}
		return Response{Ok: true}

	case "step":
		cb, err := decodeHex(req.ChannelHex)
		if err != nil {
			return Response{Ok: false, Err: "bad channel hex"}
		}
		var c channel.Channel
		if err := c.UnmarshalBinary(cb); err != nil {
			return errResp(err)
		}
		in, err := parseIntent(req.Intent)
		if err != nil {
			return errResp(err)
		}
		step, err := c.Step(in)
		if err != nil {
			return errResp(err)
		}
		resp := Response{
			Ok:       true,
			Step:     step.Kind.String(),
			Claimed:  step.Claimed,
			Refunded: step.Refunded,
		}
		if len(step.Unpends) > 0 {
			resp.UnpendsHex = hex.EncodeToString(channel.EncodeUnpends(step.Unpends))
		}
		if step.Next != nil {
			raw, err := step.Next.MarshalBinary()
			if err != nil {
				return errResp(err)
			}
			resp.ChannelHex = hex.EncodeToString(raw)
			resp.Stage = channel.StageName(step.Next.Stage)
		}
		return resp

	default:
		return Response{Ok: false, Err: "unknown op"}
	}
}
