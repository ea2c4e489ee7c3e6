package engine

import (
	"encoding/binary"
	"errors"
	"sync"
)

// stateHeader opens every state encoding. An empty document encodes to the
// header alone, so EmptyStateLen is 2.
var stateHeader = [2]byte{0x00, 0x01}

var errTruncated = errors.New("engine: truncated state encoding")

// UpdateLog is the default engine: a document is the ordered log of update
// frames applied to it, and the state encoding is the header followed by the
// uvarint-length-prefixed frames. It honors the Engine contract end to end
// (including the empty-state size) without providing conflict resolution;
// deployments needing real convergence link a CRDT engine behind the same
// interface.
type UpdateLog struct{}

func NewUpdateLog() *UpdateLog { return &UpdateLog{} }

func (*UpdateLog) NewDoc() Doc { return &logDoc{} }

func (*UpdateLog) EmptyStateLen() int { return len(stateHeader) }

type logDoc struct {
	mu     sync.Mutex
	frames [][]byte
	hooks  []func(update []byte)
}

func (d *logDoc) ApplyUpdate(update []byte) error {
	if len(update) == 0 {
		return nil
	}

	var applied [][]byte
	if isState(update) {
		frames, err := decodeFrames(update[len(stateHeader):])
		if err != nil {
			return err
		}
		applied = frames
	} else {
		applied = [][]byte{cloned(update)}
	}

	d.mu.Lock()
	d.frames = append(d.frames, applied...)
	hooks := d.hooks
	d.mu.Unlock()

	for _, fn := range hooks {
		for _, frame := range applied {
			fn(frame)
		}
	}
	return nil
}

func (d *logDoc) EncodeState() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := append([]byte{}, stateHeader[:]...)
	var size [binary.MaxVarintLen64]byte
	for _, frame := range d.frames {
		n := binary.PutUvarint(size[:], uint64(len(frame)))
		out = append(out, size[:n]...)
		out = append(out, frame...)
	}
	return out
}

func (d *logDoc) OnUpdate(fn func(update []byte)) {
	d.mu.Lock()
	d.hooks = append(d.hooks, fn)
	d.mu.Unlock()
}

func isState(b []byte) bool {
	return len(b) >= len(stateHeader) && b[0] == stateHeader[0] && b[1] == stateHeader[1]
}

func decodeFrames(b []byte) ([][]byte, error) {
	var frames [][]byte
	for len(b) > 0 {
		size, n := binary.Uvarint(b)
		if n <= 0 || uint64(len(b)-n) < size {
			return nil, errTruncated
		}
		frames = append(frames, cloned(b[n:n+int(size)]))
		b = b[n+int(size):]
	}
	return frames, nil
}

func cloned(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
