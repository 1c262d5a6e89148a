// Package block implements the immutable block type and its
// proof-of-work-specific extension.
package block

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ledgerforge/ledgerforge/internal/entry"
)

// Data is the sum type spec design notes (§9) call for in place of the
// source's "magic string vs array" convention: a block's payload is either
// the genesis note or a list of entries, never both, and the two cases are
// branched on structurally rather than by string comparison.
//
// Its JSON encoding is chosen to be byte-identical to what the original
// system produces for each variant: a bare JSON string for the genesis
// note, a JSON array for entries. This is required because the block hash
// preimage embeds this JSON directly (§3).
type Data struct {
	genesisNote string
	entries     []entry.Entry
	isGenesis   bool
}

// GenesisData builds a genesis Data value carrying note.
func GenesisData(note string) Data {
	return Data{genesisNote: note, isGenesis: true}
}

// EntriesData builds a non-genesis Data value carrying entries.
func EntriesData(entries []entry.Entry) Data {
	if entries == nil {
		entries = []entry.Entry{}
	}
	return Data{entries: entries}
}

// IsGenesis reports whether d holds the genesis note variant.
func (d Data) IsGenesis() bool { return d.isGenesis }

// GenesisNote returns the genesis note; only meaningful when IsGenesis().
func (d Data) GenesisNote() string { return d.genesisNote }

// Entries returns the entry list; only meaningful when !IsGenesis().
func (d Data) Entries() []entry.Entry { return d.entries }

// MarshalJSON implements json.Marshaler.
func (d Data) MarshalJSON() ([]byte, error) {
	if d.isGenesis {
		return json.Marshal(d.genesisNote)
	}
	return json.Marshal(d.entries)
}

// UnmarshalJSON implements json.Unmarshaler, branching structurally on
// whether the payload is a JSON string or a JSON array.
func (d *Data) UnmarshalJSON(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var note string
		if err := json.Unmarshal(trimmed, &note); err != nil {
			return fmt.Errorf("block: unmarshal genesis data: %w", err)
		}
		*d = Data{genesisNote: note, isGenesis: true}
		return nil
	}
	var entries []entry.Entry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return fmt.Errorf("block: unmarshal entry data: %w", err)
	}
	*d = EntriesData(entries)
	return nil
}

// Block is an immutable record in the chain, carrying the proof-of-work
// fields (nonce, difficulty) used by the sole provided consensus variant.
type Block struct {
	Index        uint64 `json:"index"`
	Timestamp    int64  `json:"timestamp"`
	PreviousHash string `json:"previousHash"`
	BlockCreator string `json:"blockCreator"`
	OwnerAddress string `json:"ownerAddress"`
	Data         Data   `json:"data"`
	Nonce        uint64 `json:"nonce"`
	Difficulty   int    `json:"difficulty"`
	Hash         string `json:"hash"`
}

// ComputeHash returns the lowercase hex SHA-256 of the wire-compatible
// concatenation defined by §3: index || previousHash || timestamp ||
// blockCreator || ownerAddress || JSON(data) || nonce.
func (b *Block) ComputeHash() (string, error) {
	dataJSON, err := json.Marshal(b.Data)
	if err != nil {
		return "", fmt.Errorf("block: marshal data: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(strconv.FormatUint(b.Index, 10))
	buf.WriteString(b.PreviousHash)
	buf.WriteString(strconv.FormatInt(b.Timestamp, 10))
	buf.WriteString(b.BlockCreator)
	buf.WriteString(b.OwnerAddress)
	buf.Write(dataJSON)
	buf.WriteString(strconv.FormatUint(b.Nonce, 10))
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// RecomputeHash recomputes b's hash and reports whether it matches the
// stored Hash field.
func (b *Block) RecomputeHash() (string, bool, error) {
	got, err := b.ComputeHash()
	if err != nil {
		return "", false, err
	}
	return got, got == b.Hash, nil
}

// HasDifficultyPrefix reports whether hash begins with difficulty leading
// hex '0' characters.
func HasDifficultyPrefix(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(hash) < difficulty {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}

// View is the stable wire representation required by §4.1's
// toSerializable(): exactly Block's fields, in the fixed order of its json
// tags (index, timestamp, previousHash, blockCreator, ownerAddress, data,
// nonce, difficulty, hash). Block already marshals this way, so View is
// Block itself. This JSON order is not the hash preimage order, which
// ComputeHash defines separately.
type View = Block
