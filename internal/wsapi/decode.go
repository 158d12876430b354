package wsapi

import "encoding/json"

// decodeField re-marshals one field of a decoded JSON frame and
// unmarshals it into out, since frames arrive as map[string]interface{}
// rather than typed structs.
func decodeField(frame map[string]interface{}, key string, out interface{}) error {
	raw, ok := frame[key]
	if !ok {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func stringField(frame map[string]interface{}, key string) string {
	s, _ := frame[key].(string)
	return s
}

func boolField(frame map[string]interface{}, key string) bool {
	b, _ := frame[key].(bool)
	return b
}
