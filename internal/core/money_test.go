package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.005", true}, // full precision is kept
		{" 2.50 ", "2.5", true},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"0.00", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Cmp(MustMoney(tc.out)) != 0 {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyArithmetic(t *testing.T) {
	// 0.1 + 0.2 is exact with decimals.
	sum := MustMoney("0.1").Add(MustMoney("0.2"))
	assert.Equal(t, "0.3", sum.String())

	assert.Equal(t, "3.75", MustMoney("7.50").Div(2).String())
	assert.True(t, MustMoney("7.50").Div(0).IsZero())

	assert.Equal(t, "3.33", MustMoney("10").Div(3).Rounded().String())
	assert.Equal(t, "0.01", MustMoney("0.005").Rounded().String())
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(MustMoney("12.345"))
	require.NoError(t, err)
	assert.Equal(t, "12.345", string(b))

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`"7.5"`), &m))
	assert.Equal(t, 0, m.Cmp(MustMoney("7.5")))

	require.NoError(t, json.Unmarshal([]byte(`2.5`), &m))
	assert.Equal(t, 0, m.Cmp(MustMoney("2.5")))

	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &m))
}

func TestIDGeneratorMonotonic(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	g := NewIDGenerator(func() time.Time { return fixed })

	first := g.Next()
	second := g.Next()
	assert.Equal(t, int64(1_700_000_000_000), first)
	assert.Equal(t, first+1, second)

	g.Observe(1_800_000_000_000)
	assert.Equal(t, int64(1_800_000_000_001), g.Next())

	g.Observe(5) // older ids never move the generator backwards
	assert.Equal(t, int64(1_800_000_000_002), g.Next())
}
