package offer

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// fieldCount is the number of tab-separated fields of a listing line:
// date spec, market, product, price, category.
const fieldCount = 5

var (
	numberRe      = regexp.MustCompile(`[\d.,]+`)
	currencyRe    = regexp.MustCompile(`R\$\s*[\d.,]+`)
	annotationRe  = regexp.MustCompile(`\((.*?)\)`)
	parentheticRe = regexp.MustCompile(`\s*\(.*?\)\s*`)
)

// ParseListing parses every line of text. Malformed lines are skipped and
// only counted; records keep input order and are not deduplicated.
func ParseListing(text string) *Listing {
	l := &Listing{}
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		l.Lines++

		recs, ok := ParseLine(line)
		if !ok {
			l.Skipped++
			continue
		}
		l.Records = append(l.Records, recs...)
	}
	return l
}

// ParseLine parses one listing line. It reports false when the line is not
// admissible; a valid line whose date range is empty yields no records and true.
func ParseLine(line string) ([]Record, bool) {
	if strings.TrimSpace(line) == "" || !strings.Contains(line, "\t") {
		return nil, false
	}
	cols := strings.Split(line, "\t")
	if len(cols) < fieldCount {
		return nil, false
	}
	for i := range cols[:fieldCount] {
		cols[i] = strings.TrimSpace(cols[i])
	}
	dateSpec, marketRaw, productRaw, priceRaw, categoryRaw := cols[0], cols[1], cols[2], cols[3], cols[4]

	dates, err := ParseDateSpec(dateSpec)
	if err != nil {
		return nil, false
	}

	price, unit, err := ParsePrice(priceRaw)
	if err != nil {
		return nil, false
	}

	product, note := ParseProductName(productRaw)
	market := normalizeName(marketRaw)
	category := normalizeName(categoryRaw)
	if market == "" || product == "" || category == "" {
		return nil, false
	}

	recs := make([]Record, 0, len(dates))
	for _, d := range dates {
		recs = append(recs, Record{
			Market:     market,
			Category:   category,
			Product:    product,
			Annotation: note,
			Price:      price,
			Unit:       unit,
			Date:       d,
		})
	}
	return recs, true
}

// ParseDateSpec parses "DD/MM/YYYY" or "D1-D2/MM/YYYY". A range expands to
// every day from D1 to D2 inclusive; D1 > D2 gives no dates. Any invalid day in
// the range fails the whole spec.
func ParseDateSpec(spec string) ([]time.Time, error) {
	parts := strings.Split(strings.TrimSpace(spec), "/")
	if len(parts) != 3 {
		return nil, eris.Errorf("offer: date spec %q: expected D/M/Y", spec)
	}

	month, err := atoi(parts[1])
	if err != nil {
		return nil, eris.Wrapf(err, "offer: date spec %q: month", spec)
	}
	year, err := atoi(parts[2])
	if err != nil {
		return nil, eris.Wrapf(err, "offer: date spec %q: year", spec)
	}

	first, last, err := parseDays(parts[0])
	if err != nil {
		return nil, eris.Wrapf(err, "offer: date spec %q: day", spec)
	}

	var dates []time.Time
	for day := first; day <= last; day++ {
		d, ok := calendarDate(year, month, day)
		if !ok {
			return nil, eris.Errorf("offer: date spec %q: invalid date %d/%d/%d", spec, day, month, year)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// parseDays parses "D" or "D1-D2".
func parseDays(s string) (int, int, error) {
	if !strings.Contains(s, "-") {
		d, err := atoi(s)
		return d, d, err
	}
	bounds := strings.Split(s, "-")
	if len(bounds) != 2 {
		return 0, 0, eris.Errorf("malformed day range %q", s)
	}
	first, err := atoi(bounds[0])
	if err != nil {
		return 0, 0, err
	}
	last, err := atoi(bounds[1])
	if err != nil {
		return 0, 0, err
	}
	return first, last, nil
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, eris.Wrapf(err, "not a number: %q", s)
	}
	return n, nil
}

// calendarDate rejects dates that time.Date would silently normalize,
// such as 31/04.
func calendarDate(year, month, day int) (time.Time, bool) {
	if year < 1 || year > 9999 || month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// ParsePrice extracts the price from text such as "R$ 12,90 kg". The unit is
// what remains after removing the currency marker and its number.
func ParsePrice(text string) (decimal.Decimal, string, error) {
	token := numberRe.FindString(text)
	if token == "" {
		return decimal.Zero, "", eris.Errorf("offer: no price in %q", text)
	}
	price, err := NormalizeNumber(token)
	if err != nil {
		return decimal.Zero, "", err
	}
	unit := strings.TrimSpace(currencyRe.ReplaceAllString(text, ""))
	return price, unit, nil
}

// NormalizeNumber converts a number written with "." as thousands separator
// and "," as decimal separator: "1.234,56" becomes 1234.56.
func NormalizeNumber(token string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(token, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "offer: parse number %q", token)
	}
	return d, nil
}

// ParseProductName splits "Arroz (tipo 1)" into the canonical name "Arroz" and
// the annotation "tipo 1". The annotation is nil when there is no parenthesized
// text or it is blank.
func ParseProductName(raw string) (string, *string) {
	var note *string
	if m := annotationRe.FindStringSubmatch(raw); m != nil {
		if inner := strings.TrimSpace(m[1]); inner != "" {
			inner = norm.NFC.String(inner)
			note = &inner
		}
	}
	name := parentheticRe.ReplaceAllString(raw, " ")
	return normalizeName(name), note
}

func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
