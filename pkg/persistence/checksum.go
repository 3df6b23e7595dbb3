package persistence

import (
	"encoding/json"
	"hash/crc32"

	"github.com/gowebpki/jcs"
)

// Checksum computes PersistedEvent.checksum over payload plus the
// RFC 8785 canonical form of meta, so the same logical event produces the
// same checksum regardless of map iteration order across processes
// (spec.md §8 property 3, apply determinism).
func Checksum(payload []byte, meta map[string]any) (uint32, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return 0, err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return 0, err
	}
	h := crc32.NewIEEE()
	h.Write(payload)
	h.Write(canonical)
	return h.Sum32(), nil
}
