package manifest

import (
	"encoding/json"
	"strconv"
)

// LenientBool decodes a JSON boolean field that, across the modlist schema
// versions this engine has seen, sometimes arrives as a string or a 0/1
// number instead of a true JSON boolean.
type LenientBool bool

func (b *LenientBool) UnmarshalJSON(data []byte) error {
	var direct bool
	if err := json.Unmarshal(data, &direct); err == nil {
		*b = LenientBool(direct)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		parsed, err := strconv.ParseBool(str)
		if err != nil {
			return err
		}
		*b = LenientBool(parsed)
		return nil
	}

	var num int64
	if err := json.Unmarshal(data, &num); err == nil {
		*b = LenientBool(num != 0)
		return nil
	}

	return json.Unmarshal(data, (*bool)(b))
}

func (b LenientBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}
