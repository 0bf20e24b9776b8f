package utils

import "encoding/json"

// JSONMarshal and JSONUnmarshal are a ready-made JSON MarshalFunc/
// UnmarshalFunc pair for gorpc.GoRPCClient.CallStructured. CallStructured
// has no built-in default: the caller passes the pair explicitly.
func JSONMarshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func JSONUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
