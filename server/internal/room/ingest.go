package room

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidJSON is returned for an ingest body that is not JSON.
	ErrInvalidJSON = errors.New("invalid JSON")
	// ErrMissingField is returned when name or content is absent or unusable.
	ErrMissingField = errors.New("missing name or content")
)

// DecodeIngest parses an ingest body. name may be a string, number or
// boolean and is trimmed; a numeric name is printed as JavaScript would.
// content must be a string. updatedAt is used only when it is a finite
// JSON number.
func DecodeIngest(body []byte) (IngestRequest, error) {
	if !json.Valid(body) {
		return IngestRequest{}, ErrInvalidJSON
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		// Valid JSON that is not an object carries no fields.
		return IngestRequest{}, ErrMissingField
	}

	name, ok := scalarString(fields["name"])
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return IngestRequest{}, ErrMissingField
	}

	var content string
	if raw := fields["content"]; !isString(raw) || json.Unmarshal(raw, &content) != nil {
		return IngestRequest{}, ErrMissingField
	}

	return IngestRequest{
		Name:      name,
		Content:   content,
		UpdatedAt: finiteNumber(fields["updatedAt"]),
	}, nil
}

// scalarString renders a JSON string, number or boolean as text.
func scalarString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	switch {
	case isString(raw):
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case string(raw) == "true" || string(raw) == "false":
		return string(raw), true
	case isNumber(raw):
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return string(raw), true
		}
		return numberString(f), true
	}
	return "", false
}

// numberString formats f the way a JavaScript Number prints: plain decimal
// for magnitudes in [1e-6, 1e21), otherwise exponent form without padded
// exponent digits ("1e+21", "1.5e-7").
func numberString(f float64) string {
	if f == 0 {
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + digits
}

// finiteNumber returns raw as a float64, or NaN when raw is not a finite number.
func finiteNumber(raw json.RawMessage) float64 {
	if !isNumber(raw) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

func isString(raw json.RawMessage) bool { return len(raw) > 0 && raw[0] == '"' }

func isNumber(raw json.RawMessage) bool {
	return len(raw) > 0 && (raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'))
}
