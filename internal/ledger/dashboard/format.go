package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Month names are not exposed by x/text, so the two supported languages carry their own.
var monthNames = map[language.Base][12]string{
	language.MustParseBase("pt"): {"janeiro", "fevereiro", "março", "abril", "maio", "junho",
		"julho", "agosto", "setembro", "outubro", "novembro", "dezembro"},
	language.MustParseBase("en"): {"january", "february", "march", "april", "may", "june",
		"july", "august", "september", "october", "november", "december"},
}

// Formatter renders money and month labels for one locale. Printers and casers
// are stateful, so each call builds its own.
type Formatter struct {
	tag    language.Tag
	unit   currency.Unit
	months [12]string
}

// NewFormatter parses a BCP 47 locale and an ISO 4217 currency code.
func NewFormatter(locale, code string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("dashboard: locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("dashboard: currency %q: %w", code, err)
	}
	base, _ := tag.Base()
	months, ok := monthNames[base]
	if !ok {
		months = monthNames[language.MustParseBase("en")]
	}
	return &Formatter{tag: tag, unit: unit, months: months}, nil
}

// Money formats v with the currency symbol and locale digit grouping. The
// integer part goes through the locale printer with two zero decimals, which are
// then replaced by the exact cents of v.
func (f *Formatter) Money(v decimal.Decimal) string {
	v = v.Round(2)
	sign := ""
	if v.IsNegative() {
		sign, v = "-", v.Neg()
	}
	whole := v.Truncate(0)
	cents := v.Sub(whole).Shift(2).IntPart()

	p := message.NewPrinter(f.tag)
	digits := p.Sprint(number.Decimal(whole.IntPart(), number.Scale(2)))
	digits = fmt.Sprintf("%s%02d", strings.TrimSuffix(digits, "00"), cents)
	return fmt.Sprintf("%s %s%s", p.Sprint(currency.Symbol(f.unit)), sign, digits)
}

// Month renders a month label such as "Março 2025".
func (f *Formatter) Month(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", cases.Title(f.tag).String(f.months[month-1]), year)
}
