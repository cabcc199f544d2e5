package dloid

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFields() Fields {
	return Fields{
		Quantity:          100000,
		PartnershipStatus: 'L',
		Collateralizable:  'N',
		Inheritance:       'Y',
		Convertibility:    '2',
		Rating:            10000,
		ShareEligible:     'N',
		Redeemability:     'P',
	}
}

func TestDecode_WellFormed(t *testing.T) {
	got, err := Decode("0000100000LNY2000010000NP")
	require.NoError(t, err)

	if diff := cmp.Diff(sampleFields(), got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, got.Advisories())
}

func TestDecode_LengthBoundary(t *testing.T) {
	valid := "0000100000LNY2000010000NP"

	tests := []struct {
		name string
		raw  string
	}{
		{"24 chars", valid[:24]},
		{"26 chars", valid + "0"},
		{"24 digits", strings.Repeat("0", 24)},
		{"26 digits", strings.Repeat("0", 26)},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			require.Error(t, err)

			var me *MalformedError
			require.True(t, errors.As(err, &me))
			assert.Equal(t, ReasonLength, me.Reason)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecode_NonDigitRanges(t *testing.T) {
	t.Run("quantity", func(t *testing.T) {
		_, err := Decode("00001X0000LNY2000010000NP")
		var me *MalformedError
		require.True(t, errors.As(err, &me))
		assert.Equal(t, ReasonDigits, me.Reason)
		assert.Equal(t, "quantity", me.Field)
	})

	t.Run("rating", func(t *testing.T) {
		_, err := Decode("0000100000LNY200001 000NP")
		var me *MalformedError
		require.True(t, errors.As(err, &me))
		assert.Equal(t, "rating", me.Field)
	})
}

func TestDecode_UnknownFlagsPassThrough(t *testing.T) {
	got, err := Decode("0000000005ZQQ9000000001XZ")
	require.NoError(t, err)

	assert.Equal(t, Flag('Z'), got.PartnershipStatus)
	assert.Equal(t, Flag('X'), got.ShareEligible)
	assert.Len(t, got.Advisories(), 5)
}

func TestEncode_RoundTrip(t *testing.T) {
	cases := []Fields{
		sampleFields(),
		{Quantity: 0, Rating: 0, PartnershipStatus: 'N', Collateralizable: 'N', Inheritance: 'N', Convertibility: '0', ShareEligible: 'N', Redeemability: 'P'},
		{Quantity: MaxQuantity, Rating: MaxRating, PartnershipStatus: 'L', Collateralizable: 'Y', Inheritance: 'Y', Convertibility: '9', ShareEligible: 'Y', Redeemability: 'M'},
		{Quantity: 42, Rating: 7, PartnershipStatus: 'é', Collateralizable: 'Y', Inheritance: 'N', Convertibility: '3', ShareEligible: 'Y', Redeemability: 'Ω'},
	}
	for _, f := range cases {
		raw, err := Encode(f)
		require.NoError(t, err)
		assert.Equal(t, RecordLength, len([]rune(raw)))

		back, err := Decode(raw)
		require.NoError(t, err)
		if diff := cmp.Diff(f, back); diff != "" {
			t.Errorf("round trip mismatch for %q (-want +got):\n%s", raw, diff)
		}
	}
}

func TestEncode_Padding(t *testing.T) {
	raw, err := Encode(sampleFields())
	require.NoError(t, err)
	assert.Equal(t, "0000100000LNY2000010000NP", raw)
}

func TestEncode_RangeErrors(t *testing.T) {
	f := sampleFields()
	f.Quantity = MaxQuantity + 1
	_, err := Encode(f)
	var re *RangeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "quantity", re.Field)

	f = sampleFields()
	f.Rating = MaxRating + 1
	_, err = Encode(f)
	assert.ErrorIs(t, err, ErrRange)
}

func TestFromInts(t *testing.T) {
	f, err := FromInts(100000, 10000, "LNY2NP")
	require.NoError(t, err)
	assert.Equal(t, sampleFields(), f)

	_, err = FromInts(-1, 0, "LNY2NP")
	assert.ErrorIs(t, err, ErrRange)

	_, err = FromInts(0, -5, "LNY2NP")
	assert.ErrorIs(t, err, ErrRange)

	_, err = FromInts(0, 0, "LNY")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestStripController(t *testing.T) {
	assert.Equal(t, "0000100000LNY2000010000NP", StripController("ctrl-abc0000100000LNY2000010000NP", "ctrl-abc"))
	assert.Equal(t, "0000100000LNY2000010000NP", StripController("0000100000LNY2000010000NP", "ctrl-abc"))
	assert.Equal(t, "x", StripController("x", ""))
}

func TestNormalize_BothWireForms(t *testing.T) {
	packed, err := Normalize([]byte(`"0000100000LNY2000010000NP"`))
	require.NoError(t, err)

	structured, err := Normalize([]byte(`{
		"chauffeQuantity": "0000100000",
		"partnershipStatus": "L",
		"collateralizable": "N",
		"inheritance": "Y",
		"convertibility": "2",
		"rating": "000010000",
		"shareEligible": "N",
		"redeemability": "P"
	}`))
	require.NoError(t, err)

	numeric, err := Normalize([]byte(`{
		"chauffeQuantity": 100000,
		"partnershipStatus": "L",
		"collateralizable": "N",
		"inheritance": "Y",
		"convertibility": 2,
		"rating": 10000,
		"shareEligible": "N",
		"redeemability": "P"
	}`))
	require.NoError(t, err)

	assert.Equal(t, packed, structured)
	assert.Equal(t, packed, numeric)
}

func TestNormalize_LongZeroPaddedNumber(t *testing.T) {
	f, err := Normalize([]byte(`{
		"chauffeQuantity": "000000000000000000001",
		"partnershipStatus": "L",
		"collateralizable": "N",
		"inheritance": "Y",
		"convertibility": "2",
		"rating": "0000000000000000000000042",
		"shareEligible": "N",
		"redeemability": "P"
	}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Quantity)
	assert.Equal(t, uint64(42), f.Rating)
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"null", `null`, ErrMalformed},
		{"number", `12`, ErrMalformed},
		{"short string", `"BAD"`, ErrMalformed},
		{"missing flag", `{"chauffeQuantity":"1","convertibility":"2","rating":"1"}`, ErrMalformed},
		{"two-char flag", `{"chauffeQuantity":"1","partnershipStatus":"LL","collateralizable":"N","inheritance":"Y","convertibility":"2","rating":"1","shareEligible":"N","redeemability":"P"}`, ErrMalformed},
		{"quantity too large", `{"chauffeQuantity":"10000000000","partnershipStatus":"L","collateralizable":"N","inheritance":"Y","convertibility":"2","rating":"1","shareEligible":"N","redeemability":"P"}`, ErrRange},
		{"quantity too long", `{"chauffeQuantity":"123456789012345678901","partnershipStatus":"L","collateralizable":"N","inheritance":"Y","convertibility":"2","rating":"1","shareEligible":"N","redeemability":"P"}`, ErrRange},
		{"negative rating", `{"chauffeQuantity":"1","partnershipStatus":"L","collateralizable":"N","inheritance":"Y","convertibility":"2","rating":-3,"shareEligible":"N","redeemability":"P"}`, ErrRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize([]byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRecord_JSON(t *testing.T) {
	var payload struct {
		Params Record `json:"dloid_params"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"dloid_params":"0000100000LNY2000010000NP"}`), &payload))
	assert.Equal(t, sampleFields(), payload.Params.Fields)

	out, err := json.Marshal(payload.Params)
	require.NoError(t, err)

	var obj map[string]string
	require.NoError(t, json.Unmarshal(out, &obj))
	assert.Equal(t, "0000100000", obj["chauffeQuantity"])
	assert.Equal(t, "000010000", obj["rating"])
	assert.Equal(t, "L", obj["partnershipStatus"])

	var again Record
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Equal(t, payload.Params, again)
}
