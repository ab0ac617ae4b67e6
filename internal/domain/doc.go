// Package domain models district-level COVID-19 case data for Berlin and the
// event risk derived from it.
//
// # Data Source
//
// Case counts come from the Landesamt für Gesundheit und Soziales (LAGeSo)
// "Verteilung in den Bezirken - Gesamtübersicht" table, published at
// https://daten.berlin.de as a semicolon-separated CSV (and as JSON with an
// "index" array). Each row is one reporting date; each column after "id" and
// "datum" is one Bezirk holding that day's newly reported cases.
//
// # Column Labels
//
// Upstream column names are lower snake case with umlauts transliterated:
//
//	"tempelhof_schoeneberg"  →  "Tempelhof-Schöneberg"
//	"neukoelln"              →  "Neukölln"
//
// [CanonicalLabel] restores the display form and [ParseDistrict] resolves it
// to a [District]. All joins (population, geometry) use the typed key, so a
// label that fails to resolve is reported as a [JoinMismatchError] instead of
// silently vanishing from aggregates.
//
// # Pipeline
//
//	RawCaseRecord ─Normalize→ IncidenceSeries ─EstimatePrevalence→ PrevalenceEstimate ─ProjectRisk→ RiskEstimate
//
// Incidence is the trailing 7-day case sum divided by district population.
// Rows without six preceding reporting days are dropped. The city-wide
// figure divides summed cases by summed population, which weights districts
// by size.
//
// Prevalence multiplies incidence by the ascertainment bias (the ratio of
// true to reported infections). Values above 1 are kept as-is: they mean the
// bias assumption does not fit the data.
//
// Risk is the probability that at least one of n attendees is infected,
// assuming random mixing:
//
//	risk = 1 - (1 - prevalence)^n
//
// For prevalence in [0, 1] risk lies in [0, 1] and never decreases with
// either input. For prevalence above 1 the base is negative and the result
// alternates sign with n; this output is returned unchanged.
//
// # Geometry
//
// District centroids are computed in ETRS89 Lambert Azimuthal Equal Area
// (EPSG:3035) and projected back to WGS84, see [PolygonCentroid].
package domain
