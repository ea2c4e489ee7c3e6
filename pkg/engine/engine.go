// Package engine is the seam between the sync core and the CRDT merge
// engine. The core treats documents as opaque: it applies update frames,
// asks for the encoded state when persisting, and listens for mutations.
// Merge semantics live entirely behind this interface.
package engine

// Doc is one in-memory shared document.
type Doc interface {
	// ApplyUpdate merges an update frame (or a full encoded state, which
	// every engine treats as a valid update) into the document.
	ApplyUpdate(update []byte) error

	// EncodeState returns the full state encoding of the document.
	EncodeState() []byte

	// OnUpdate registers a hook invoked after each applied update. The
	// registry registers it exactly once, at bind time, after the stored
	// state has been applied.
	OnUpdate(fn func(update []byte))
}

// Engine constructs documents. Exactly one Engine instance must exist per
// process; two independently linked engine instances can corrupt
// cross-instance merges, so every component receives the same injected value.
type Engine interface {
	NewDoc() Doc

	// EmptyStateLen is the size of the encoding of a contentless document.
	// Encodings at or below this size must never overwrite stored content.
	EmptyStateLen() int
}
