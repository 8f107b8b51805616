package seal

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Envelope is a sealed payload. The GCM tag is kept at the end of
// Ciphertext.
type Envelope struct {
	Version    uint8  `cbor:"1,keyasint"`
	Nonce      []byte `cbor:"2,keyasint"`
	Ciphertext []byte `cbor:"3,keyasint"`
}

var envelopeDecMode = func() cbor.DecMode {
	mode, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxArrayElements:  16,
		MaxMapPairs:       16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Marshal encodes env for storage.
func (env *Envelope) Marshal() ([]byte, error) {
	data, err := cbor.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// ParseEnvelope decodes an envelope produced by Marshal.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := envelopeDecMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.Version != EnvelopeVersion {
		return nil, ErrInvalidVersion
	}
	return &env, nil
}
