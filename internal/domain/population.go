package domain

// Population maps each district to its resident count.
type Population map[District]int

// BerlinPopulation returns registered residents per district as of
// 31.12.2019 (Amt für Statistik Berlin-Brandenburg, Einwohnerregister).
func BerlinPopulation() Population {
	return Population{
		Mitte:                     385748,
		FriedrichshainKreuzberg:   290386,
		Pankow:                    409335,
		CharlottenburgWilmersdorf: 343081,
		Spandau:                   245197,
		SteglitzZehlendorf:        310071,
		TempelhofSchoeneberg:      351644,
		Neukoelln:                 329691,
		TreptowKoepenick:          273689,
		MarzahnHellersdorf:        268548,
		Lichtenberg:               294201,
		Reinickendorf:             266408,
	}
}

// Total returns the summed population over all districts.
func (p Population) Total() int {
	total := 0
	for _, n := range p {
		total += n
	}
	return total
}
