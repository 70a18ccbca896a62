package records

import (
	"strings"

	"github.com/samber/lo"

	constants "github.com/CodeAndHammer/memorama/internal/constants"
	models "github.com/CodeAndHammer/memorama/internal/models"
)

// ExportCSV renders the header and one quoted row per record, rows separated
// by "\n" and no trailing newline. Embedded quotes are doubled.
func ExportCSV(recs []models.ParticipantRecord) ([]byte, error) {
	if len(recs) == 0 {
		return nil, ErrEmptyExport
	}

	rows := lo.Map(recs, func(rec models.ParticipantRecord, _ int) string {
		return strings.Join([]string{
			quoteField(rec.Name),
			quoteField(rec.Email),
			quoteField(rec.University),
		}, ",")
	})

	var b strings.Builder
	b.WriteString(constants.ExportHeader)
	b.WriteString("\n")
	b.WriteString(strings.Join(rows, "\n"))
	return []byte(b.String()), nil
}

func quoteField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
