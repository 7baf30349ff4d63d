package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ImageMagic identifies a serialized bytecode image
const ImageMagic = "LOXC"

// ImageVersion is the current image format version
const ImageVersion = 1

// cborEncMode uses canonical encoding so the same chunk always serializes
// to the same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Image is a compiled program written to disk with -c and executed with -r.
type Image struct {
	Magic   string `cbor:"1,keyasint"`
	Version int    `cbor:"2,keyasint"`

	// SourceFile is the original source file path (for messages)
	SourceFile string `cbor:"3,keyasint,omitempty"`

	Chunk *Chunk `cbor:"4,keyasint"`
}

// MarshalImage serializes a chunk to CBOR bytes.
func MarshalImage(chunk *Chunk, sourceFile string) ([]byte, error) {
	img := &Image{
		Magic:      ImageMagic,
		Version:    ImageVersion,
		SourceFile: sourceFile,
		Chunk:      chunk,
	}
	data, err := cborEncMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("vm: marshal image: %w", err)
	}
	return data, nil
}

// UnmarshalImage deserializes and validates an image.
func UnmarshalImage(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("vm: unmarshal image: %w", err)
	}
	if img.Magic != ImageMagic {
		return nil, ErrBadMagic
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, img.Version)
	}
	if img.Chunk == nil {
		return nil, fmt.Errorf("%w: image has no chunk", ErrInvalidChunk)
	}
	if err := img.Chunk.Validate(); err != nil {
		return nil, err
	}
	return &img, nil
}
