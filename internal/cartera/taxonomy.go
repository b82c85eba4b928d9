package cartera

import "strings"

// TaxonomyEntry maps a business line to its reporting business unit,
// sales channel and settlement currency.
type TaxonomyEntry struct {
	BusinessUnit string
	Channel      string
	Currency     string
}

// Taxonomy is the static business-line lookup table, loaded once per run.
type Taxonomy map[string]TaxonomyEntry

// Others is the catch-all business unit and channel for unmapped lines.
const Others = "OTROS"

// Lookup resolves a business-line code. Unmapped codes return the
// OTROS/OTROS entry in local currency and ok=false so callers can record a
// diagnostic instead of dropping the record.
func (t Taxonomy) Lookup(line string) (TaxonomyEntry, bool) {
	key := strings.ToUpper(strings.TrimSpace(line))
	if entry, ok := t[key]; ok {
		return entry, true
	}
	return TaxonomyEntry{BusinessUnit: Others, Channel: Others, Currency: CurrencyCOP}, false
}

// DefaultTaxonomy returns the collections department table: business unit and
// channel per line, with the USD export lines (PL11, PL18, PL57) and the EUR
// export line (PL41) flagged as foreign currency.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		"PL10": {BusinessUnit: "LIBRERIAS 2", Channel: "LIBRERIAS 2", Currency: CurrencyCOP},
		"PL15": {BusinessUnit: "E-COMMERCE", Channel: "E-COMMERCE", Currency: CurrencyCOP},
		"PL20": {BusinessUnit: "LIBRERIAS 1", Channel: "LIBRERIAS 1", Currency: CurrencyCOP},
		"PL21": {BusinessUnit: "LIBRERIAS 2", Channel: "LIBRERIAS 2", Currency: CurrencyCOP},
		"PL23": {BusinessUnit: "LIBRERIAS 1", Channel: "LIBRERIAS 1", Currency: CurrencyCOP},
		"PL25": {BusinessUnit: "LIBRERIAS 1", Channel: "LIBRERIAS 1", Currency: CurrencyCOP},
		"PL28": {BusinessUnit: "SALDOS", Channel: "SALDOS", Currency: CurrencyCOP},
		"PL29": {BusinessUnit: "SALDOS", Channel: "SALDOS", Currency: CurrencyCOP},
		"PL31": {BusinessUnit: "SALDOS", Channel: "SALDOS", Currency: CurrencyCOP},
		"PL32": {BusinessUnit: "DISTRIBUIDORES", Channel: "DISTRIBUIDORES", Currency: CurrencyCOP},
		"PL53": {BusinessUnit: "LIBRERIAS 3", Channel: "LIBRERIAS 3", Currency: CurrencyCOP},
		"PL56": {BusinessUnit: "OTROS DIGITAL", Channel: "OTROS DIGITAL", Currency: CurrencyCOP},
		"PL60": {BusinessUnit: "OTROS", Channel: "OTROS", Currency: CurrencyCOP},
		"PL62": {BusinessUnit: "PRENSA", Channel: "PRENSA", Currency: CurrencyCOP},
		"PL63": {BusinessUnit: "LIBRERIAS 3", Channel: "LIBRERIAS 3", Currency: CurrencyCOP},
		"PL64": {BusinessUnit: "OTROS", Channel: "OTROS", Currency: CurrencyCOP},
		"PL65": {BusinessUnit: "OTROS", Channel: "OTROS", Currency: CurrencyCOP},
		"PL66": {BusinessUnit: "OTROS DIGITAL", Channel: "OTROS DIGITAL", Currency: CurrencyCOP},
		"PL69": {BusinessUnit: "LIBRERIAS 1", Channel: "LIBRERIAS 1", Currency: CurrencyCOP},
		"PL11": {BusinessUnit: "EXPORTACION USD", Channel: "EXPORTACION USD", Currency: CurrencyUSD},
		"PL18": {BusinessUnit: "EXPORTACION USD", Channel: "EXPORTACION USD", Currency: CurrencyUSD},
		"PL57": {BusinessUnit: "PRENSA USD", Channel: "PRENSA USD", Currency: CurrencyUSD},
		"PL41": {BusinessUnit: "EXPORTACION EURO", Channel: "EXPORTACION EURO", Currency: CurrencyEUR},
		"CT80": {BusinessUnit: "TINTA CLUB DEL LIBRO", Channel: "TINTA", Currency: CurrencyCOP},
		"ED41": {BusinessUnit: "EDUCACION", Channel: "EDUCACION", Currency: CurrencyCOP},
		"ED44": {BusinessUnit: "OTROS DIGITAL", Channel: "OTROS DIGITAL", Currency: CurrencyCOP},
		"ED47": {BusinessUnit: "EDUCACION", Channel: "EDUCACION", Currency: CurrencyCOP},
	}
}
