package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// ImageVersion is the current on-disk image format.
const ImageVersion = 1

var ErrCorruptImage = errors.New("corrupt storage image")

// Image is the on-disk form of a Memory backend. Digest is the blake2b-256
// of Board followed by Data.
type Image struct {
	Version uint8  `cbor:"1,keyasint"`
	Board   string `cbor:"2,keyasint,omitempty"`
	Data    []byte `cbor:"3,keyasint"`
	Digest  []byte `cbor:"4,keyasint"`
}

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("storage: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

func digest(board string, data []byte) []byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(board))
	h.Write(data)
	return h.Sum(nil)
}

// SaveImage writes the contents of m, tagged with the board name, to w.
func SaveImage(w io.Writer, m *Memory, board string) error {
	data := m.Snapshot()
	img := Image{
		Version: ImageVersion,
		Board:   board,
		Data:    data,
		Digest:  digest(board, data),
	}
	return imageEncMode.NewEncoder(w).Encode(&img)
}

// LoadImage reads an image written by SaveImage and returns the restored
// backend together with the board name it was saved for.
func LoadImage(r io.Reader) (*Memory, string, error) {
	var img Image
	if err := cbor.NewDecoder(r).Decode(&img); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	if img.Version != ImageVersion {
		return nil, "", fmt.Errorf("%w: unsupported version %d", ErrCorruptImage, img.Version)
	}
	if !bytes.Equal(img.Digest, digest(img.Board, img.Data)) {
		return nil, "", fmt.Errorf("%w: digest mismatch", ErrCorruptImage)
	}
	return MemoryFrom(img.Data), img.Board, nil
}

// SaveImageFile writes m to path, replacing any previous image.
func SaveImageFile(path string, m *Memory, board string) error {
	var buf bytes.Buffer
	if err := SaveImage(&buf, m, board); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadImageFile reads an image from path. A missing file is reported with an
// error satisfying errors.Is(err, os.ErrNotExist).
func LoadImageFile(path string) (*Memory, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	return LoadImage(f)
}
