// Package dloid encodes and decodes DLOID records, the 25-character positional
// strings that describe a blockchain's economic and eligibility attributes.
//
// Layout (0-indexed, half-open):
//
//	[0,10)  quantity           zero-padded CHAUFFEcoin quantity
//	[10]    partnership status  L/N
//	[11]    collateralizable    Y/N
//	[12]    inheritance         Y/N
//	[13]    convertibility      small ordinal
//	[14,23) rating             zero-padded secondary quantity
//	[23]    share eligible      Y/N
//	[24]    redeemability       e.g. P
//
// The package performs no I/O and holds no state.
package dloid

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// RecordLength is the exact length, in characters, of a packed record.
	RecordLength = 25

	quantityWidth = 10
	ratingWidth   = 9

	// MaxQuantity is the largest quantity that fits the 10-digit field.
	MaxQuantity uint64 = 9_999_999_999
	// MaxRating is the largest rating that fits the 9-digit field.
	MaxRating uint64 = 999_999_999
)

// Field offsets within a packed record.
const (
	offQuantity      = 0
	offPartnership   = 10
	offCollateral    = 11
	offInheritance   = 12
	offConvertible   = 13
	offRating        = 14
	offShareEligible = 23
	offRedeemability = 24
)

// Flag is a single-character attribute. Unknown characters are carried
// through unchanged so new codes issued by CloudManager do not break parsing.
type Flag rune

// Known flag values. These are advisory; see Fields.Advisories.
const (
	PartnershipLimited Flag = 'L'
	PartnershipNone    Flag = 'N'
	Yes                Flag = 'Y'
	No                 Flag = 'N'
	RedeemablePartial  Flag = 'P'
	RedeemableMature   Flag = 'M'
)

// String returns the flag as a one-character string.
func (f Flag) String() string {
	return string(rune(f))
}

// Fields is the structured form of a DLOID record.
type Fields struct {
	Quantity          uint64
	PartnershipStatus Flag
	Collateralizable  Flag
	Inheritance       Flag
	Convertibility    Flag
	Rating            uint64
	ShareEligible     Flag
	Redeemability     Flag
}

// Decode parses a packed record. It fails only when the record is not exactly
// RecordLength characters or when the quantity or rating ranges contain
// non-digit characters; the returned error is a *MalformedError.
func Decode(raw string) (Fields, error) {
	chars := []rune(raw)
	if len(chars) != RecordLength {
		return Fields{}, &MalformedError{Reason: ReasonLength, Length: len(chars), Raw: raw}
	}

	qty, ok := parseDigits(chars[offQuantity : offQuantity+quantityWidth])
	if !ok {
		return Fields{}, &MalformedError{Reason: ReasonDigits, Field: "quantity", Length: len(chars), Raw: raw}
	}
	rating, ok := parseDigits(chars[offRating : offRating+ratingWidth])
	if !ok {
		return Fields{}, &MalformedError{Reason: ReasonDigits, Field: "rating", Length: len(chars), Raw: raw}
	}

	return Fields{
		Quantity:          qty,
		PartnershipStatus: Flag(chars[offPartnership]),
		Collateralizable:  Flag(chars[offCollateral]),
		Inheritance:       Flag(chars[offInheritance]),
		Convertibility:    Flag(chars[offConvertible]),
		Rating:            rating,
		ShareEligible:     Flag(chars[offShareEligible]),
		Redeemability:     Flag(chars[offRedeemability]),
	}, nil
}

// Encode packs f into its 25-character form. It returns a *RangeError when
// quantity or rating does not fit its digit field.
func Encode(f Fields) (string, error) {
	if f.Quantity > MaxQuantity {
		return "", &RangeError{Field: "quantity", Value: strconv.FormatUint(f.Quantity, 10), Limit: MaxQuantity}
	}
	if f.Rating > MaxRating {
		return "", &RangeError{Field: "rating", Value: strconv.FormatUint(f.Rating, 10), Limit: MaxRating}
	}

	var b strings.Builder
	b.Grow(RecordLength)
	fmt.Fprintf(&b, "%0*d", quantityWidth, f.Quantity)
	b.WriteRune(rune(f.PartnershipStatus))
	b.WriteRune(rune(f.Collateralizable))
	b.WriteRune(rune(f.Inheritance))
	b.WriteRune(rune(f.Convertibility))
	fmt.Fprintf(&b, "%0*d", ratingWidth, f.Rating)
	b.WriteRune(rune(f.ShareEligible))
	b.WriteRune(rune(f.Redeemability))
	return b.String(), nil
}

// FromInts builds Fields from signed quantities, as supplied by forms and
// config files. Negative or oversized values are reported as *RangeError.
func FromInts(quantity, rating int64, flags string) (Fields, error) {
	if quantity < 0 || uint64(quantity) > MaxQuantity {
		return Fields{}, &RangeError{Field: "quantity", Value: strconv.FormatInt(quantity, 10), Limit: MaxQuantity}
	}
	if rating < 0 || uint64(rating) > MaxRating {
		return Fields{}, &RangeError{Field: "rating", Value: strconv.FormatInt(rating, 10), Limit: MaxRating}
	}
	chars := []rune(flags)
	if len(chars) != 6 {
		return Fields{}, &MalformedError{Reason: ReasonFlag, Field: "flags", Length: len(chars), Raw: flags}
	}
	return Fields{
		Quantity:          uint64(quantity),
		PartnershipStatus: Flag(chars[0]),
		Collateralizable:  Flag(chars[1]),
		Inheritance:       Flag(chars[2]),
		Convertibility:    Flag(chars[3]),
		Rating:            uint64(rating),
		ShareEligible:     Flag(chars[4]),
		Redeemability:     Flag(chars[5]),
	}, nil
}

// StripController removes a leading controller name from a DLOID string.
// CloudManager sometimes returns the packed record prefixed with the
// blockchain's controller name.
func StripController(raw, controllerName string) string {
	if controllerName != "" && strings.HasPrefix(raw, controllerName) {
		return raw[len(controllerName):]
	}
	return raw
}

// Advisories lists flag characters outside the known vocabulary. An empty
// result does not make a record more valid; decoding never depends on it.
func (f Fields) Advisories() []string {
	var out []string
	check := func(name string, v Flag, allowed ...Flag) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		out = append(out, fmt.Sprintf("%s: unknown code %q", name, v.String()))
	}
	check("partnershipStatus", f.PartnershipStatus, PartnershipLimited, PartnershipNone)
	check("collateralizable", f.Collateralizable, Yes, No)
	check("inheritance", f.Inheritance, Yes, No)
	if f.Convertibility < '0' || f.Convertibility > '9' {
		out = append(out, fmt.Sprintf("convertibility: unknown code %q", f.Convertibility.String()))
	}
	check("shareEligible", f.ShareEligible, Yes, No)
	check("redeemability", f.Redeemability, RedeemablePartial, RedeemableMature)
	return out
}

func parseDigits(chars []rune) (uint64, bool) {
	var n uint64
	for _, c := range chars {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
	}
	return n, true
}
