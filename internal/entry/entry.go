// Package entry implements the signed, hashed messages ("entries") that
// flow through the pool and ultimately into blocks.
package entry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/google/uuid"
)

// Sentinel senders for system-originated entries. These never carry a
// signature since there is no corresponding private key.
const (
	SenderICO       = "ICO"
	SenderIncentive = "INCENTIVE"
)

// ClockSkewTolerance is the maximum allowed distance between an entry's
// initiationTimestamp and the receiving node's clock.
const ClockSkewTolerance = 60 * time.Second

// PendingBlockIndex is the sentinel blockIndex value for an entry that has
// not yet been included in a block.
const PendingBlockIndex = "pending"

// Entry is a signed message intended for inclusion in a block. See
// data-model §3 of the specification for field semantics.
type Entry struct {
	EntryID             string `json:"entryId"`
	From                string `json:"from"`
	To                  string `json:"to"`
	Amount              uint64 `json:"amount"`
	Type                string `json:"type"`
	InitiationTimestamp int64  `json:"initiationTimestamp"`
	Data                any    `json:"data"`
	Hash                string `json:"hash"`
	Signature           string `json:"signature,omitempty"`
}

// unsignedFields is the six-field preimage hashed to produce Entry.Hash.
// Field order is part of the wire contract (§6.3) and is fixed by Go
// struct declaration order.
type unsignedFields struct {
	From                string `json:"from"`
	To                  string `json:"to"`
	Amount              uint64 `json:"amount"`
	Type                string `json:"type"`
	InitiationTimestamp int64  `json:"initiationTimestamp"`
	Data                any    `json:"data"`
}

// signedFields is the seven-field preimage covered by the signature.
type signedFields struct {
	unsignedFields
	Hash string `json:"hash"`
}

func (e *Entry) unsigned() unsignedFields {
	return unsignedFields{
		From:                e.From,
		To:                  e.To,
		Amount:              e.Amount,
		Type:                e.Type,
		InitiationTimestamp: e.InitiationTimestamp,
		Data:                e.Data,
	}
}

// computeHash returns the lowercase hex SHA-256 of the six unsigned fields.
func (e *Entry) computeHash() (string, error) {
	raw, err := json.Marshal(e.unsigned())
	if err != nil {
		return "", fmt.Errorf("entry: marshal unsigned fields: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// RecomputeHash recomputes the entry's hash from its unsigned fields,
// independent of whatever is currently stored in e.Hash.
func (e *Entry) RecomputeHash() (string, error) {
	return e.computeHash()
}

// IsSentinel reports whether From is one of the system sender identities
// that never carry a signature.
func (e *Entry) IsSentinel() bool {
	return e.From == SenderICO || e.From == SenderIncentive
}

// AssignID assigns a fresh entryId if one is not already set.
func (e *Entry) AssignID() {
	if e.EntryID == "" {
		e.EntryID = uuid.NewString()
	}
}

// Finalize computes and stores the entry's hash. Call before Sign.
func (e *Entry) Finalize() error {
	h, err := e.computeHash()
	if err != nil {
		return err
	}
	e.Hash = h
	return nil
}

// signaturePreimage returns the bytes covered by the ECDSA signature: the
// JSON serialization of the seven fields from, to, amount, type,
// initiationTimestamp, data, hash (§6.3).
func (e *Entry) signaturePreimage() ([]byte, error) {
	raw, err := json.Marshal(signedFields{unsignedFields: e.unsigned(), Hash: e.Hash})
	if err != nil {
		return nil, fmt.Errorf("entry: marshal signed fields: %w", err)
	}
	return raw, nil
}

// Sign finalizes the entry's hash and signs it with priv, storing the
// DER-encoded signature as lowercase hex. Sentinel senders must not call
// Sign; their Signature field stays empty.
func Sign(e *Entry, priv *btcec.PrivateKey) error {
	if e.IsSentinel() {
		return errors.New("entry: sentinel senders are not signed")
	}
	if err := e.Finalize(); err != nil {
		return err
	}
	preimage, err := e.signaturePreimage()
	if err != nil {
		return err
	}
	digest := sha256.Sum256(preimage)
	sig := ecdsa.Sign(priv, digest[:])
	e.Signature = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify recomputes the entry's hash and, for non-sentinel senders,
// verifies the ECDSA signature against the public key encoded in From.
// It returns (false, nil) for well-formed but invalid entries and
// (false, err) only when the entry is too malformed to evaluate.
func Verify(e *Entry) (bool, error) {
	wantHash, err := e.computeHash()
	if err != nil {
		return false, err
	}
	if wantHash != e.Hash {
		return false, nil
	}
	if e.IsSentinel() {
		return true, nil
	}
	pubBytes, err := hex.DecodeString(e.From)
	if err != nil {
		return false, nil
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return false, nil
	}
	sigBytes, err := hex.DecodeString(e.Signature)
	if err != nil {
		return false, nil
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false, nil
	}
	preimage, err := e.signaturePreimage()
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(preimage)
	return sig.Verify(digest[:], pub), nil
}

// WithinClockSkew reports whether initiationTimestamp (ms since epoch) is
// within ClockSkewTolerance of now.
func WithinClockSkew(initiationTimestamp int64, now time.Time) bool {
	delta := now.UnixMilli() - initiationTimestamp
	if delta < 0 {
		delta = -delta
	}
	return time.Duration(delta)*time.Millisecond <= ClockSkewTolerance
}
