package wire

import (
	"encoding/hex"
	"encoding/json"
)

// HexBytes is an opaque payload rendered on the wire as a lowercase hex
// string, matching the "body" field of add/message commands.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}
