package offer

import (
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseLine_SingleDay(t *testing.T) {
	recs, ok := ParseLine("05/03/2025\tMercado A\tArroz (tipo 1)\tR$ 12,90 kg\tAlimentos")
	require.True(t, ok)
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, "Mercado A", r.Market)
	assert.Equal(t, "Alimentos", r.Category)
	assert.Equal(t, "Arroz", r.Product)
	require.NotNil(t, r.Annotation)
	assert.Equal(t, "tipo 1", *r.Annotation)
	assertDecimal(t, "12.90", r.Price)
	assert.Equal(t, "kg", r.Unit)
	assert.Equal(t, day(2025, time.March, 5), r.Date)
}

func TestParseLine_RangeExpandsEveryDay(t *testing.T) {
	recs, ok := ParseLine("10-12/04/2025\tMercado B\tFeijão\tR$ 7,50\tAlimentos")
	require.True(t, ok)
	require.Len(t, recs, 3)

	wantDates := []time.Time{day(2025, time.April, 10), day(2025, time.April, 11), day(2025, time.April, 12)}
	for i, r := range recs {
		assert.Equal(t, wantDates[i], r.Date)
		assert.Equal(t, "Mercado B", r.Market)
		assert.Equal(t, "Feijão", r.Product)
		assert.Nil(t, r.Annotation)
		assertDecimal(t, "7.50", r.Price)
		assert.Empty(t, r.Unit)
	}
}

func TestParseLine_TrimsFieldsAndIgnoresExtraColumns(t *testing.T) {
	recs, ok := ParseLine("  01/02/2025 \t Mercado C \t Leite (integral) \t R$ 4,99 un \t Laticínios \textra\r")
	require.True(t, ok)
	require.Len(t, recs, 1)
	assert.Equal(t, "Mercado C", recs[0].Market)
	assert.Equal(t, "Leite", recs[0].Product)
	assert.Equal(t, "Laticínios", recs[0].Category)
	assert.Equal(t, "un", recs[0].Unit)
}

func TestParseLine_Rejected(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"blank", "   "},
		{"no tab", "05/03/2025 Mercado A Arroz R$ 1,00 Alimentos"},
		{"four fields", "05/03/2025\tMercado A\tArroz\tR$ 1,00"},
		{"header", "Data\tMercado\tProduto\tPreço\tCategoria"},
		{"invalid calendar date", "31/04/2025\tMercado A\tArroz\tR$ 1,00\tAlimentos"},
		{"range with invalid day", "30-31/04/2025\tMercado A\tArroz\tR$ 1,00\tAlimentos"},
		{"no price", "05/03/2025\tMercado A\tArroz\tsob consulta\tAlimentos"},
		{"empty market", "05/03/2025\t\tArroz\tR$ 1,00\tAlimentos"},
		{"empty product", "05/03/2025\tMercado A\t(promo)\tR$ 1,00\tAlimentos"},
		{"empty category", "05/03/2025\tMercado A\tArroz\tR$ 1,00\t "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, ok := ParseLine(tt.line)
			assert.False(t, ok)
			assert.Empty(t, recs)
		})
	}
}

func TestParseLine_DescendingRangeYieldsNothing(t *testing.T) {
	recs, ok := ParseLine("12-10/04/2025\tMercado B\tFeijão\tR$ 7,50\tAlimentos")
	assert.True(t, ok)
	assert.Empty(t, recs)
}

func TestParseDateSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []time.Time
		wantErr bool
	}{
		{"single", "05/03/2025", []time.Time{day(2025, time.March, 5)}, false},
		{"single unpadded", "5/3/2025", []time.Time{day(2025, time.March, 5)}, false},
		{"range", "1-3/01/2025", []time.Time{day(2025, time.January, 1), day(2025, time.January, 2), day(2025, time.January, 3)}, false},
		{"range single day", "7-7/06/2025", []time.Time{day(2025, time.June, 7)}, false},
		{"leap day", "29/02/2024", []time.Time{day(2024, time.February, 29)}, false},
		{"not a leap year", "29/02/2025", nil, true},
		{"too few parts", "05/03", nil, true},
		{"too many parts", "05/03/2025/1", nil, true},
		{"non-numeric day", "aa/03/2025", nil, true},
		{"non-numeric month", "05/mar/2025", nil, true},
		{"month out of range", "05/13/2025", nil, true},
		{"malformed range", "1-2-3/03/2025", nil, true},
		{"open range", "1-/03/2025", nil, true},
		{"day zero", "0/03/2025", nil, true},
		{"empty", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDateSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDateSpec_RangeCount(t *testing.T) {
	for first := 1; first <= 28; first += 9 {
		for last := first; last <= 28; last += 4 {
			dates, err := ParseDateSpec(strconv.Itoa(first) + "-" + strconv.Itoa(last) + "/02/2025")
			require.NoError(t, err)
			assert.Len(t, dates, last-first+1)
		}
	}
}

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"1234,56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"12,90", "12.90"},
		{"7", "7"},
		{"1.000.000,01", "1000000.01"},
		{"0,5", "0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := NormalizeNumber(tt.token)
			require.NoError(t, err)
			assertDecimal(t, tt.want, got)
		})
	}
}

func TestNormalizeNumber_Invalid(t *testing.T) {
	_, err := NormalizeNumber("1,2,3")
	assert.Error(t, err)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		price   string
		unit    string
		wantErr bool
	}{
		{"unit kg", "R$ 12,90 kg", "12.90", "kg", false},
		{"no unit", "R$ 7,50", "7.50", "", false},
		{"no space", "R$3,49 cada", "3.49", "cada", false},
		{"thousands", "R$ 1.299,00 un", "1299.00", "un", false},
		{"free text unit", "R$ 9,99 leve 3 pague 2", "9.99", "leve 3 pague 2", false},
		{"no currency marker keeps text", "12,90 kg", "12.90", "12,90 kg", false},
		{"no number", "grátis", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, unit, err := ParsePrice(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assertDecimal(t, tt.price, price)
			assert.Equal(t, tt.unit, unit)
		})
	}
}

func TestParseProductName(t *testing.T) {
	tests := []struct {
		raw      string
		wantName string
		wantNote *string
	}{
		{"Leite (integral)", "Leite", ptr("integral")},
		{"Leite", "Leite", nil},
		{"  Açúcar  ", "Açúcar", nil},
		{"Arroz (tipo 1) Camil", "Arroz Camil", ptr("tipo 1")},
		{"Café ( 500g )", "Café", ptr("500g")},
		{"Sabão ()", "Sabão", nil},
		{"Óleo (soja) (900ml)", "Óleo", ptr("soja")},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			name, note := ParseProductName(tt.raw)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantNote, note)
		})
	}
}

func ptr(s string) *string { return &s }

func TestParseProductName_NFC(t *testing.T) {
	decomposed := "Feija\u0303o"
	name, _ := ParseProductName(decomposed)
	assert.Equal(t, "Feijão", name)
}

func TestParseListing(t *testing.T) {
	text := "Data\tMercado\tProduto\tPreço\tCategoria\n" +
		"05/03/2025\tMercado A\tArroz (tipo 1)\tR$ 12,90 kg\tAlimentos\r\n" +
		"\n" +
		"linha sem tabulação\n" +
		"10-12/04/2025\tMercado B\tFeijão\tR$ 7,50\tAlimentos\n" +
		"05/03/2025\tMercado A\tArroz (tipo 1)\tR$ 11,90 kg\tAlimentos\n"

	l := ParseListing(text)
	assert.Equal(t, 5, l.Lines)
	assert.Equal(t, 2, l.Skipped)
	require.Len(t, l.Records, 5)

	// input order, duplicates kept
	assert.Equal(t, "Arroz", l.Records[0].Product)
	assert.Equal(t, "Feijão", l.Records[1].Product)
	assert.Equal(t, "Feijão", l.Records[3].Product)
	assert.Equal(t, "Arroz", l.Records[4].Product)
	assertDecimal(t, "11.90", l.Records[4].Price)
}

func TestParseListing_Empty(t *testing.T) {
	l := ParseListing("")
	assert.Empty(t, l.Records)
	assert.Zero(t, l.Lines)
	assert.Zero(t, l.Skipped)
}
