package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

// PNGWithDimensions returns a small, valid PNG whose header declares w x h.
// Only the header is rewritten, so the file stays a few bytes long.
func PNGWithDimensions(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	data := buf.Bytes()

	// 8-byte signature, then IHDR: length(4) type(4) data(13) crc(4).
	const ihdr = 8
	binary.BigEndian.PutUint32(data[ihdr+8:], w)
	binary.BigEndian.PutUint32(data[ihdr+12:], h)
	binary.BigEndian.PutUint32(data[ihdr+21:], crc32.ChecksumIEEE(data[ihdr+4:ihdr+21]))
	return data
}
