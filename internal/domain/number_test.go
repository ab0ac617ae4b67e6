package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumber_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want string
	}{
		{"finite", 0.00035, `0.00035`},
		{"large", 7e295, `7e+295`},
		{"positive infinity", math.Inf(1), `"+Inf"`},
		{"negative infinity", math.Inf(-1), `"-Inf"`},
		{"nan", math.NaN(), `"NaN"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(Number(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))
		})
	}
}

func TestNumber_UnmarshalJSON(t *testing.T) {
	var v struct {
		A, B, C Number
	}
	require.NoError(t, json.Unmarshal([]byte(`{"A":0.5,"B":"-Inf","C":"NaN"}`), &v))
	assert.InDelta(t, 0.5, float64(v.A), 0)
	assert.True(t, math.IsInf(float64(v.B), -1))
	assert.True(t, math.IsNaN(float64(v.C)))

	var n Number
	assert.Error(t, json.Unmarshal([]byte(`"0.5"`), &n))
	assert.Error(t, json.Unmarshal([]byte(`"lots"`), &n))
}

func TestNumbers(t *testing.T) {
	got := Numbers(map[District]float64{Mitte: 0.25, Pankow: math.Inf(1)})
	assert.InDelta(t, 0.25, float64(got[Mitte]), 0)
	assert.True(t, math.IsInf(float64(got[Pankow]), 1))

	b, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Mitte":0.25,"Pankow":"+Inf"}`, string(b))
}
