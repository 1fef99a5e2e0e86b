// Package snapshot stores bytecode unit images outside the engine: a CBOR
// wire format for files and transport, and a SQLite store keyed by name.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/chazu/ecmavm/vm"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Version is the snapshot format version written by Marshal.
const Version = 1

// ErrVersion is returned when a snapshot was written by an incompatible
// format version.
var ErrVersion = errors.New("snapshot: unsupported format version")

// Snapshot is a named unit image with a stable identity.
type Snapshot struct {
	Version int           `cbor:"v"`
	ID      uuid.UUID     `cbor:"id"`
	Name    string        `cbor:"name"`
	Unit    *vm.UnitImage `cbor:"unit"`
}

// New wraps img in a snapshot with a fresh id.
func New(name string, img *vm.UnitImage) *Snapshot {
	return &Snapshot{Version: Version, ID: uuid.New(), Name: name, Unit: img}
}

// Canonical mode keeps the encoding deterministic, so equal images produce
// equal bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	dm, err := cbor.DecOptions{
		MaxNestedLevels: 64,
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// Marshal serializes s to CBOR bytes.
func Marshal(s *Snapshot) ([]byte, error) {
	if s == nil || s.Unit == nil {
		return nil, errors.New("snapshot: marshal: no unit")
	}
	if s.Version == 0 {
		s.Version = Version
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	data, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal %s: %w", s.Name, err)
	}
	return data, nil
}

// Unmarshal deserializes a snapshot from CBOR bytes. The unit image is not
// validated here; VM.Link does that.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := decMode.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("%w %d", ErrVersion, s.Version)
	}
	if s.Unit == nil {
		return nil, errors.New("snapshot: unmarshal: no unit")
	}
	return &s, nil
}

// MarshalUnit is a shorthand for Marshal(New(name, img)).
func MarshalUnit(name string, img *vm.UnitImage) ([]byte, error) {
	return Marshal(New(name, img))
}
