// Package cryptoassets embeds the machine-local key blob used to seal
// bookmark passwords at rest (spec §4.4, §9).
//
// The blob is intentionally NOT user-derived: it exists to prevent
// casual disclosure of plaintext credentials in the bookmarks file, not
// to withstand a targeted attack. Two magic byte offsets inside the blob
// (128, 129) select the sub-ranges used as the AES key and IV; this
// must be reproduced exactly, byte for byte, or previously sealed
// bookmarks become unreadable.
package cryptoassets

import _ "embed"

//go:embed secure-key.bin
var keyBlob []byte

const (
	blobKeyIndexOffset = 128
	blobIVIndexOffset  = 129
	keyLen             = 32
	ivLen              = 16
)

func init() {
	if len(keyBlob) <= blobIVIndexOffset {
		panic("cryptoassets: embedded key blob is too short to hold the index bytes")
	}
	i1 := int(keyBlob[blobKeyIndexOffset])
	i2 := int(keyBlob[blobIVIndexOffset])
	if i1+keyLen > len(keyBlob) || i2+ivLen > len(keyBlob) {
		panic("cryptoassets: embedded key blob is too short for the indices it contains")
	}
}

// SealingKeyIV returns the AES-256 key and CBC IV derived from the
// embedded blob, exactly as termscp's original implementation does:
// blob[i1:i1+32] is the key, blob[i2:i2+16] is the IV, where i1, i2 are
// the byte values stored at offsets 128 and 129 of the blob.
func SealingKeyIV() (key []byte, iv []byte) {
	i1 := int(keyBlob[blobKeyIndexOffset])
	i2 := int(keyBlob[blobIVIndexOffset])
	return keyBlob[i1 : i1+keyLen], keyBlob[i2 : i2+ivLen]
}
