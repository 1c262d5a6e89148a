package entry

// Location describes where, from a query's point of view, an entry lives.
type Location int

const (
	// LocationPending means the entry sits in the pool, unconfirmed.
	LocationPending Location = iota
	// LocationConfirmed means the entry was found inside a committed block.
	LocationConfirmed
)

// View is an explicit query result type. It never aliases or mutates the
// stored Entry; per spec design notes, dynamic field-tacking (attaching
// blockIndex/isValid to the stored object at query time) is replaced by
// this separate, immutable projection.
type View struct {
	Entry      Entry
	Location   Location
	BlockIndex uint64 // meaningful only when Location == LocationConfirmed
	Valid      bool
}
