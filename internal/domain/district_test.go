package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalLabel(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"mitte", "Mitte"},
		{"friedrichshain_kreuzberg", "Friedrichshain-Kreuzberg"},
		{"tempelhof_schoeneberg", "Tempelhof-Schöneberg"},
		{"neukoelln", "Neukölln"},
		{"treptow_koepenick", "Treptow-Köpenick"},
		{"MARZAHN_HELLERSDORF", "Marzahn-Hellersdorf"},
		{"  lichtenberg ", "Lichtenberg"},
		{"Tempelhof-Schöneberg", "Tempelhof-Schöneberg"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalLabel(tt.raw))
		})
	}
}

func TestCanonicalLabel_Idempotent(t *testing.T) {
	labels := []string{
		"tempelhof_schoeneberg", "neukoelln", "treptow_koepenick", "charlottenburg_wilmersdorf",
		"steglitz_zehlendorf", "reinickendorf", "berlin", "some_unknown_column", "datum", "",
	}
	for _, raw := range labels {
		once := CanonicalLabel(raw)
		assert.Equal(t, once, CanonicalLabel(once), "label %q", raw)
	}
}

func TestParseDistrict_AllUpstreamColumns(t *testing.T) {
	columns := map[string]District{
		"mitte":                      Mitte,
		"friedrichshain_kreuzberg":   FriedrichshainKreuzberg,
		"pankow":                     Pankow,
		"charlottenburg_wilmersdorf": CharlottenburgWilmersdorf,
		"spandau":                    Spandau,
		"steglitz_zehlendorf":        SteglitzZehlendorf,
		"tempelhof_schoeneberg":      TempelhofSchoeneberg,
		"neukoelln":                  Neukoelln,
		"treptow_koepenick":          TreptowKoepenick,
		"marzahn_hellersdorf":        MarzahnHellersdorf,
		"lichtenberg":                Lichtenberg,
		"reinickendorf":              Reinickendorf,
	}
	for raw, want := range columns {
		got, ok := ParseDistrict(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got)
	}

	_, ok := ParseDistrict("hamburg_mitte")
	assert.False(t, ok)
}

func TestDistricts_MatchPopulationReference(t *testing.T) {
	pop := BerlinPopulation()
	assert.Len(t, Districts(), 12)
	for _, d := range Districts() {
		assert.Positive(t, pop[d], d.String())
	}
	assert.Len(t, pop, 12)
}

func TestDistrict_TextRoundTrip(t *testing.T) {
	in := map[District]int{TempelhofSchoeneberg: 3, Mitte: 1}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Mitte":1,"Tempelhof-Schöneberg":3}`, string(data))

	var out map[District]int
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestDistrict_Invalid(t *testing.T) {
	var d District
	assert.False(t, d.Valid())
	assert.Equal(t, "District(0)", d.String())
	_, err := d.MarshalText()
	assert.Error(t, err)
	assert.Error(t, d.UnmarshalText([]byte("Atlantis")))
}
