package storage

import (
	"encoding/binary"
	"encoding/json"
)

func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decodeJSON(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

func encodeSeq(n uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], n)
	return k[:]
}

func decodeSeq(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
