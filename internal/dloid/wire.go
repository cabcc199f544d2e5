package dloid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is a DLOID as carried in JSON. It unmarshals from either the packed
// string or the structured object and always marshals as the structured
// object, with numeric fields zero-padded the way the web form sends them.
type Record struct {
	Fields
}

// wireObject is the structured wire form. Numeric fields may arrive as
// padded strings or as JSON numbers.
type wireObject struct {
	ChauffeQuantity   *json.RawMessage `json:"chauffeQuantity"`
	PartnershipStatus *string          `json:"partnershipStatus"`
	Collateralizable  *string          `json:"collateralizable"`
	Inheritance       *string          `json:"inheritance"`
	Convertibility    *json.RawMessage `json:"convertibility"`
	Rating            *json.RawMessage `json:"rating"`
	ShareEligible     *string          `json:"shareEligible"`
	Redeemability     *string          `json:"redeemability"`
}

// Normalize decodes either wire representation into Fields.
func Normalize(data []byte) (Fields, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Fields{}, &MalformedError{Reason: ReasonSyntax, Field: "empty value"}
	}

	switch data[0] {
	case '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return Fields{}, &MalformedError{Reason: ReasonSyntax, Field: err.Error()}
		}
		return Decode(raw)
	case '{':
		var w wireObject
		if err := json.Unmarshal(data, &w); err != nil {
			return Fields{}, &MalformedError{Reason: ReasonSyntax, Field: err.Error()}
		}
		return w.fields()
	default:
		return Fields{}, &MalformedError{Reason: ReasonSyntax, Field: "expected string or object"}
	}
}

func (w wireObject) fields() (Fields, error) {
	var f Fields
	var err error

	if f.Quantity, err = wireNumber("chauffeQuantity", w.ChauffeQuantity, MaxQuantity); err != nil {
		return Fields{}, err
	}
	if f.Rating, err = wireNumber("rating", w.Rating, MaxRating); err != nil {
		return Fields{}, err
	}

	conv, err := wireConvertibility(w.Convertibility)
	if err != nil {
		return Fields{}, err
	}
	f.Convertibility = conv

	flags := []struct {
		name string
		src  *string
		dst  *Flag
	}{
		{"partnershipStatus", w.PartnershipStatus, &f.PartnershipStatus},
		{"collateralizable", w.Collateralizable, &f.Collateralizable},
		{"inheritance", w.Inheritance, &f.Inheritance},
		{"shareEligible", w.ShareEligible, &f.ShareEligible},
		{"redeemability", w.Redeemability, &f.Redeemability},
	}
	for _, fl := range flags {
		if fl.src == nil {
			return Fields{}, &MalformedError{Reason: ReasonFlag, Field: fl.name}
		}
		c, err := singleFlag(fl.name, *fl.src)
		if err != nil {
			return Fields{}, err
		}
		*fl.dst = c
	}
	return f, nil
}

func wireNumber(name string, raw *json.RawMessage, limit uint64) (uint64, error) {
	if raw == nil {
		return 0, &MalformedError{Reason: ReasonDigits, Field: name}
	}
	var s string
	if err := json.Unmarshal(*raw, &s); err != nil {
		// Not a string: accept a plain JSON number.
		s = string(bytes.TrimSpace(*raw))
	}
	if s == "" {
		return 0, &MalformedError{Reason: ReasonDigits, Field: name}
	}
	if s[0] == '-' {
		return 0, &RangeError{Field: name, Value: s, Limit: limit}
	}
	n, ok := parseDigits([]rune(s))
	if !ok {
		return 0, &MalformedError{Reason: ReasonDigits, Field: name, Raw: s}
	}
	// parseDigits does not guard against overflow on very long inputs.
	// Leading zeros carry no value, so only significant digits count.
	if len(strings.TrimLeft(s, "0")) > 19 || n > limit {
		return 0, &RangeError{Field: name, Value: s, Limit: limit}
	}
	return n, nil
}

func wireConvertibility(raw *json.RawMessage) (Flag, error) {
	if raw == nil {
		return 0, &MalformedError{Reason: ReasonFlag, Field: "convertibility"}
	}
	var s string
	if err := json.Unmarshal(*raw, &s); err == nil {
		return singleFlag("convertibility", s)
	}
	var n int
	if err := json.Unmarshal(*raw, &n); err != nil || n < 0 || n > 9 {
		return 0, &MalformedError{Reason: ReasonFlag, Field: "convertibility", Raw: string(*raw)}
	}
	return Flag('0' + n), nil
}

func singleFlag(name, s string) (Flag, error) {
	chars := []rune(s)
	if len(chars) != 1 {
		return 0, &MalformedError{Reason: ReasonFlag, Field: name, Length: len(chars), Raw: s}
	}
	return Flag(chars[0]), nil
}

// UnmarshalJSON implements json.Unmarshaler for both wire forms.
func (r *Record) UnmarshalJSON(data []byte) error {
	f, err := Normalize(data)
	if err != nil {
		return err
	}
	r.Fields = f
	return nil
}

// MarshalJSON implements json.Marshaler, emitting the structured object.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Quantity > MaxQuantity {
		return nil, &RangeError{Field: "chauffeQuantity", Value: strconv.FormatUint(r.Quantity, 10), Limit: MaxQuantity}
	}
	if r.Rating > MaxRating {
		return nil, &RangeError{Field: "rating", Value: strconv.FormatUint(r.Rating, 10), Limit: MaxRating}
	}
	return json.Marshal(map[string]string{
		"chauffeQuantity":   fmt.Sprintf("%0*d", quantityWidth, r.Quantity),
		"partnershipStatus": r.PartnershipStatus.String(),
		"collateralizable":  r.Collateralizable.String(),
		"inheritance":       r.Inheritance.String(),
		"convertibility":    r.Convertibility.String(),
		"rating":            fmt.Sprintf("%0*d", ratingWidth, r.Rating),
		"shareEligible":     r.ShareEligible.String(),
		"redeemability":     r.Redeemability.String(),
	})
}
