// Package peer implements the WebSocket gossip mesh: handshake, entry and
// block broadcast, deduplication, and full-chain request/response
// (§4.7, §6.2).
package peer

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ledgerforge/ledgerforge/internal/block"
	"github.com/ledgerforge/ledgerforge/internal/entry"
)

// MessageType enumerates the wire message kinds of §4.7.
type MessageType string

const (
	MessageHandshake        MessageType = "handshake"
	MessageNewEntry         MessageType = "newEntry"
	MessageNewBlock         MessageType = "newBlock"
	MessageRequestFullChain MessageType = "requestFullChain"
	MessageFullChain        MessageType = "fullChain"
)

// SenderConfig identifies the message's originating node (§4.7). Only ID
// is trust-bearing; the rest are descriptive.
type SenderConfig struct {
	ID             string `json:"id"`
	Label          string `json:"label"`
	IP             string `json:"ip"`
	URL            string `json:"url"`
	P2PPort        int    `json:"p2pPort"`
	WebServicePort int    `json:"webServicePort"`
}

// Envelope is the wire message shape shared by every message type (§4.7).
// Data carries the type-specific payload, deferred as raw JSON until the
// handler knows which shape to decode.
type Envelope struct {
	Type         MessageType     `json:"type"`
	MessageID    string          `json:"messageId"`
	SenderConfig SenderConfig    `json:"senderConfig"`
	Data         json.RawMessage `json:"data,omitempty"`
}

func newEnvelope(typ MessageType, sender SenderConfig, payload any) (Envelope, error) {
	env := Envelope{Type: typ, MessageID: uuid.NewString(), SenderConfig: sender}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("peer: marshal %s payload: %w", typ, err)
	}
	env.Data = raw
	return env, nil
}

// NewHandshake builds a handshake envelope. Handshakes are never
// gossiped (§4.7).
func NewHandshake(sender SenderConfig) (Envelope, error) {
	return newEnvelope(MessageHandshake, sender, nil)
}

// NewEntryMessage builds a newEntry envelope carrying e.
func NewEntryMessage(sender SenderConfig, e entry.Entry) (Envelope, error) {
	return newEnvelope(MessageNewEntry, sender, e)
}

// NewBlockMessage builds a newBlock envelope carrying b.
func NewBlockMessage(sender SenderConfig, b block.Block) (Envelope, error) {
	return newEnvelope(MessageNewBlock, sender, b)
}

// NewRequestFullChainMessage builds a requestFullChain envelope.
func NewRequestFullChainMessage(sender SenderConfig) (Envelope, error) {
	return newEnvelope(MessageRequestFullChain, sender, nil)
}

// NewFullChainMessage builds a fullChain envelope carrying chain.
func NewFullChainMessage(sender SenderConfig, chain []block.Block) (Envelope, error) {
	return newEnvelope(MessageFullChain, sender, chain)
}

// DecodeEntry decodes a newEntry envelope's payload.
func (e Envelope) DecodeEntry() (entry.Entry, error) {
	var out entry.Entry
	err := json.Unmarshal(e.Data, &out)
	return out, err
}

// DecodeBlock decodes a newBlock envelope's payload.
func (e Envelope) DecodeBlock() (block.Block, error) {
	var out block.Block
	err := json.Unmarshal(e.Data, &out)
	return out, err
}

// DecodeChain decodes a fullChain envelope's payload.
func (e Envelope) DecodeChain() ([]block.Block, error) {
	var out []block.Block
	err := json.Unmarshal(e.Data, &out)
	return out, err
}
