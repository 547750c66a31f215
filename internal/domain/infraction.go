package domain

// Infraction represents one matched fine line from a municipal statement.
// Values are built once by the extractor and never mutated afterwards.
// The csv tags define the export header and column order.
type Infraction struct {
	Date             string `csv:"Fecha"`                // YYYY-MM-01 derived from the file name
	Block            string `csv:"Manzana"`              // digits after "Mz"
	Lot              string `csv:"Lote"`                 // digits after "Lote"
	Name             string `csv:"Nombre"`               // resident name, trimmed
	InfractionNumber string `csv:"Número de Infracción"` // digits after "nro"
	Amount           string `csv:"Monto"`                // locale formatted, e.g. 65.171,77

	RowID  string `csv:"-"` // leading identifier on the statement line
	Source string `csv:"-"` // document the line came from
}

// Columns is the fixed export header, in column order.
var Columns = []string{"Fecha", "Manzana", "Lote", "Nombre", "Número de Infracción", "Monto"}

// Complete reports whether all exported fields are present.
func (i Infraction) Complete() bool {
	return i.Date != "" && i.Block != "" && i.Lot != "" &&
		i.Name != "" && i.InfractionNumber != "" && i.Amount != ""
}
