package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// ErrMalformedFrame is returned by Decode when the frame body is not JSON.
var ErrMalformedFrame = errors.New("malformed frame")

// Inbound is a decoded client frame. Room, Name and Text are already coerced
// to strings; Type is empty when the frame carried no usable type.
type Inbound struct {
	Type string
	Room string
	Name string
	Text string
}

// Decode parses one client frame. Only a body that is not valid JSON is an
// error; valid JSON of the wrong shape decodes to an Inbound with an empty
// Type, which the router reports as an unknown type. Keys match exactly, so
// "Type" or "TYPE" is not a type field.
func Decode(raw []byte) (Inbound, error) {
	if !json.Valid(raw) {
		return Inbound{}, ErrMalformedFrame
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		// Arrays, numbers and strings are valid JSON but carry no fields.
		return Inbound{}, nil
	}

	var typ string
	if err := json.Unmarshal(fields["type"], &typ); err != nil {
		typ = ""
	}

	return Inbound{
		Type: typ,
		Room: Coerce(fields["room"]),
		Name: Coerce(fields["name"]),
		Text: Coerce(fields["text"]),
	}, nil
}

// Coerce turns a client-supplied JSON value into the string a browser would
// produce for String(value || ""). Missing values, null, false, zero and the
// empty string all yield "". Numbers use the shortest round-trip form with an
// exponent beyond 1e21 or below 1e-6, arrays join their elements with commas
// and objects become "[object Object]".
func Coerce(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	if falsy(v) {
		return ""
	}
	return stringify(v)
}

func falsy(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return !val
	case string:
		return val == ""
	case json.Number:
		return numberValue(val) == 0
	}
	return false
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return formatNumber(numberValue(val))
	case []any:
		return strings.Join(lo.Map(val, func(e any, _ int) string { return stringify(e) }), ",")
	default:
		return "[object Object]"
	}
}

// numberValue keeps the ±Inf that ParseFloat reports for out-of-range input.
func numberValue(n json.Number) float64 {
	f, _ := strconv.ParseFloat(string(n), 64)
	return f
}

func formatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	sign := ""
	if f < 0 {
		sign, f = "-", -f
	}

	// f = 0.digits * 10^n
	mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	digits := strings.Replace(mant, ".", "", 1)
	e, _ := strconv.Atoi(exp)
	n, k := e+1, len(digits)

	switch {
	case k <= n && n <= 21:
		return sign + digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		return sign + digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		return sign + "0." + strings.Repeat("0", -n) + digits
	}

	out := digits[:1]
	if k > 1 {
		out += "." + digits[1:]
	}
	if n-1 >= 0 {
		return sign + out + "e+" + strconv.Itoa(n-1)
	}
	return sign + out + "e" + strconv.Itoa(n-1)
}

// Encode renders a frame for the wire.
func Encode(f Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return b, nil
}

// MarshalJSON keeps text and time on chat messages even when empty, since
// clients render those fields unconditionally.
func (f Frame) MarshalJSON() ([]byte, error) {
	type plain Frame
	if f.Type != TypeMessage {
		return json.Marshal(plain(f))
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Room string `json:"room"`
		Name string `json:"name"`
		Text string `json:"text"`
		Time int64  `json:"time"`
	}{f.Type, f.Room, f.Name, f.Text, f.Time})
}
