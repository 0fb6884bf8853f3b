// Package dist implements the wire format of linked images. Images are
// encoded as canonical CBOR with integer keys, so equal images always encode
// to equal bytes and can be content-addressed by their digest.
package dist

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/cellemit/isa"
	"github.com/chazu/cellemit/static"
)

var (
	ErrVersion   = errors.New("unsupported image version")
	ErrMalformed = errors.New("malformed image")
)

// Digest is the SHA-256 of an image's canonical encoding.
type Digest [32]byte

func (d Digest) String() string {
	return fmt.Sprintf("%x", d[:])
}

// wireImage is the encoded form of static.Image.
type wireImage struct {
	Version  uint16        `cbor:"1,keyasint"`
	Base     isa.Addr      `cbor:"2,keyasint"`
	Cells    []isa.Cell    `cbor:"3,keyasint"`
	Globals  []wireGlobal  `cbor:"4,keyasint,omitempty"`
	Routines []wireRoutine `cbor:"5,keyasint,omitempty"`
}

type wireGlobal struct {
	Name string   `cbor:"1,keyasint"`
	Addr isa.Addr `cbor:"2,keyasint"`
}

type wireRoutine struct {
	Name     string   `cbor:"1,keyasint"`
	Base     isa.Addr `cbor:"2,keyasint"`
	Capacity int      `cbor:"3,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalImage serializes an image to canonical CBOR bytes.
func MarshalImage(img *static.Image) ([]byte, error) {
	w := wireImage{Version: img.Version, Base: img.Base, Cells: img.Cells}
	for _, g := range img.Globals {
		w.Globals = append(w.Globals, wireGlobal{Name: g.Name, Addr: g.Addr})
	}
	for _, r := range img.Routines {
		w.Routines = append(w.Routines, wireRoutine{Name: r.Name, Base: r.Base, Capacity: r.Capacity})
	}
	return cborEncMode.Marshal(&w)
}

// UnmarshalImage deserializes an image and checks that its version is
// supported and that its layout is sound (see static.Image.CheckLayout).
func UnmarshalImage(data []byte) (*static.Image, error) {
	var w wireImage
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("dist: unmarshal image: %w", err)
	}
	if w.Version != static.ImageVersion {
		return nil, fmt.Errorf("%w: %d, want %d", ErrVersion, w.Version, static.ImageVersion)
	}
	img := &static.Image{Version: w.Version, Base: w.Base, Cells: w.Cells}
	for _, g := range w.Globals {
		img.Globals = append(img.Globals, static.GlobalInfo{Name: g.Name, Addr: g.Addr})
	}
	for _, r := range w.Routines {
		img.Routines = append(img.Routines, static.RoutineInfo{Name: r.Name, Base: r.Base, Capacity: r.Capacity})
	}
	if err := img.CheckLayout(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return img, nil
}

// Sum returns the digest of an image.
func Sum(img *static.Image) (Digest, error) {
	data, err := MarshalImage(img)
	if err != nil {
		return Digest{}, err
	}
	return sha256.Sum256(data), nil
}
