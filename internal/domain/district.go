package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// District is one of Berlin's twelve administrative Bezirke.
type District uint8

const (
	Mitte District = iota + 1
	FriedrichshainKreuzberg
	Pankow
	CharlottenburgWilmersdorf
	Spandau
	SteglitzZehlendorf
	TempelhofSchoeneberg
	Neukoelln
	TreptowKoepenick
	MarzahnHellersdorf
	Lichtenberg
	Reinickendorf
)

var districtNames = [...]string{
	Mitte:                     "Mitte",
	FriedrichshainKreuzberg:   "Friedrichshain-Kreuzberg",
	Pankow:                    "Pankow",
	CharlottenburgWilmersdorf: "Charlottenburg-Wilmersdorf",
	Spandau:                   "Spandau",
	SteglitzZehlendorf:        "Steglitz-Zehlendorf",
	TempelhofSchoeneberg:      "Tempelhof-Schöneberg",
	Neukoelln:                 "Neukölln",
	TreptowKoepenick:          "Treptow-Köpenick",
	MarzahnHellersdorf:        "Marzahn-Hellersdorf",
	Lichtenberg:               "Lichtenberg",
	Reinickendorf:             "Reinickendorf",
}

var districtByName = func() map[string]District {
	m := make(map[string]District, len(districtNames))
	for _, d := range Districts() {
		m[d.String()] = d
	}
	return m
}()

// Districts returns every district in official order.
func Districts() []District {
	out := make([]District, 0, len(districtNames)-1)
	for d := Mitte; d <= Reinickendorf; d++ {
		out = append(out, d)
	}
	return out
}

// String returns the canonical display name.
func (d District) String() string {
	if d < Mitte || d > Reinickendorf {
		return fmt.Sprintf("District(%d)", uint8(d))
	}
	return districtNames[d]
}

// Valid reports whether d is one of the twelve districts.
func (d District) Valid() bool {
	return d >= Mitte && d <= Reinickendorf
}

// MarshalText encodes the district as its canonical name, so district-keyed
// maps serialize by name.
func (d District) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("marshal district: invalid value %d", uint8(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText accepts any label form that ParseDistrict resolves.
func (d *District) UnmarshalText(text []byte) error {
	v, ok := ParseDistrict(string(text))
	if !ok {
		return fmt.Errorf("unmarshal district: unknown label %q", text)
	}
	*d = v
	return nil
}

// ParseDistrict canonicalizes a raw label and resolves it to a District.
func ParseDistrict(label string) (District, bool) {
	d, ok := districtByName[CanonicalLabel(label)]
	return d, ok
}

// umlautFixes restores transliterated characters. Only "oe" occurs in
// district names.
var umlautFixes = strings.NewReplacer("oe", "ö")

// CanonicalLabel converts an upstream column label such as
// "tempelhof_schoeneberg" into the display form "Tempelhof-Schöneberg".
// Underscores become hyphens, each hyphen-separated word is title-cased and
// transliterated umlauts are restored. Applying it twice yields the same
// result as applying it once.
func CanonicalLabel(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, " ", "-")
	// A Caser carries state and must not be shared between goroutines.
	caser := cases.Title(language.German)
	parts := strings.Split(s, "-")
	for i, p := range parts {
		parts[i] = caser.String(p)
	}
	return umlautFixes.Replace(strings.Join(parts, "-"))
}
