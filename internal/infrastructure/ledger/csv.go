package ledger

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shelfscan/backend/internal/domain"
)

// DefaultCSVFile is the file name used when saving without an explicit path
const DefaultCSVFile = "products.csv"

// Columns is the canonical CSV column order
var Columns = []string{"name", "price", "unit", "sku", "category"}

// ToCSV renders records as CSV. Every value is double-quoted with inner
// quotes doubled; missing values are "". Each line ends with "\n".
func ToCSV(records []domain.Record) string {
	var b strings.Builder
	b.WriteString(strings.Join(Columns, ","))
	b.WriteByte('\n')

	for _, r := range records {
		price := ""
		if r.Price != nil {
			price = strconv.FormatInt(*r.Price, 10)
		}
		fields := []string{r.Name, price, r.Unit, r.SKU, string(r.Category)}
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(quote(f))
		}
		b.WriteByte('\n')
	}

	return b.String()
}

// SaveToFile writes the CSV rendering of records to path
func SaveToFile(path string, records []domain.Record) error {
	if path == "" {
		path = DefaultCSVFile
	}
	if err := os.WriteFile(path, []byte(ToCSV(records)), 0o644); err != nil {
		return fmt.Errorf("save csv: %w", err)
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
