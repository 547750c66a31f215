// Package extract finds speeding fine lines in the plain text of a statement page.
package extract

import (
	"regexp"
	"strings"

	"github.com/dvloznov/fines-ledger/internal/domain"
	"golang.org/x/text/unicode/norm"
)

// ws matches a whitespace run, including no-break spaces emitted by PDF producers.
const ws = `[\s\p{Zs}]+`

// finePattern matches a single statement line. Literal tokens are matched
// exactly, accents included. The amount is the last numeric token after the
// infraction description; text before or after the match is ignored.
var finePattern = regexp.MustCompile(
	`(?P<row>\d+)` + ws +
		`Mz` + ws + `(?P<block>\d+)` + ws +
		`Lote` + ws + `(?P<lot>\d+)` + ws +
		`(?P<name>.*?)` + ws +
		`Multas Infracción nro` + ws + `(?P<number>\d+):` + ws +
		`Exceso de velocidad.*` + ws +
		`(?P<amount>[\d.,]+)(?:[\s\p{Zs}]|$)`,
)

var (
	rowIdx    = finePattern.SubexpIndex("row")
	blockIdx  = finePattern.SubexpIndex("block")
	lotIdx    = finePattern.SubexpIndex("lot")
	nameIdx   = finePattern.SubexpIndex("name")
	numberIdx = finePattern.SubexpIndex("number")
	amountIdx = finePattern.SubexpIndex("amount")
)

// Line matches one line of text. The date is copied into the record as is.
// Lines that do not match, or match with an empty field, report false.
func Line(line, date string) (domain.Infraction, bool) {
	m := finePattern.FindStringSubmatch(norm.NFC.String(line))
	if m == nil {
		return domain.Infraction{}, false
	}

	rec := domain.Infraction{
		Date:             date,
		Block:            m[blockIdx],
		Lot:              m[lotIdx],
		Name:             strings.TrimSpace(m[nameIdx]),
		InfractionNumber: m[numberIdx],
		Amount:           m[amountIdx],
		RowID:            m[rowIdx],
	}
	if !rec.Complete() {
		return domain.Infraction{}, false
	}
	return rec, true
}

// Page returns the records found in the text of one page, in line order.
func Page(text, date string) []domain.Infraction {
	var out []domain.Infraction
	for _, line := range strings.Split(text, "\n") {
		if rec, ok := Line(line, date); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Pages returns the records of all pages in page order. Pages without text
// contribute nothing.
func Pages(pages []string, date string) []domain.Infraction {
	var out []domain.Infraction
	for _, text := range pages {
		if text == "" {
			continue
		}
		out = append(out, Page(text, date)...)
	}
	return out
}
