package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const minMoneyAmount = 10

var (
	digitRe        = regexp.MustCompile(`\d`)
	parenRe        = regexp.MustCompile(`\(.*?\)`)
	currencySignRe = regexp.MustCompile(`[\$€£₽₸]`)
	currencyCodeRe = regexp.MustCompile(`(?i)\b(usd|eur|gbp|rub|kzt|uah|uzs|cad|aud|chf)\b`)
	periodWordsRe  = regexp.MustCompile(`(?i)(/year|per year|a year|/yr|year|/month|per month|a month|/mo|month|/hour|per hour|/hr|hour)`)
	moneyTokenRe   = regexp.MustCompile(`[\$€£₽₸]?\d[\d, ]*(?:\.\d+)?\s*[kK]?`)
	moneyValueRe   = regexp.MustCompile(`^(\d+(?:\.\d+)?)([kK])?$`)
	salaryInTextRe = regexp.MustCompile(`(\$|£|€)\s?\d[\d,]*(\s?-\s?(\$|£|€)?\s?\d[\d,]*)?`)
	yrWordRe       = regexp.MustCompile(`\byr\b`)
	moWordRe       = regexp.MustCompile(`\bmo\b`)
	hrWordRe       = regexp.MustCompile(`\bhr\b`)
	leadingSignRe  = regexp.MustCompile(`^[\$€£₽₸]`)
	dashReplacer   = strings.NewReplacer("–", "-", "—", "-", "\u00a0", " ")
)

// Salary tidies a free-text salary. Text without any digit is not a salary
// and yields "".
func Salary(raw string) string {
	s := collapse(dashReplacer.Replace(raw))
	if !digitRe.MatchString(s) {
		return ""
	}
	return s
}

// SalaryFromText returns the first "$1,000 - $2,000" style amount in text.
func SalaryFromText(text string) string {
	return strings.TrimSpace(salaryInTextRe.FindString(text))
}

// SalaryRange renders API salary bounds as "min=..; max=..; predicted=..".
func SalaryRange(lo, hi *float64, predicted string) string {
	var parts []string
	if lo != nil {
		parts = append(parts, "min="+formatAmount(*lo))
	}
	if hi != nil {
		parts = append(parts, "max="+formatAmount(*hi))
	}
	if predicted = strings.TrimSpace(predicted); predicted != "" {
		parts = append(parts, "predicted="+predicted)
	}
	return strings.Join(parts, "; ")
}

// CurrencySalary normalizes "$85K - $120K /yr (Employer est.)" into
// "85 000 - 120 000 $ / year". Input without a currency or without an amount
// of at least 10 yields "".
func CurrencySalary(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = dashReplacer.Replace(s)
	s = parenRe.ReplaceAllString(s, "")
	s = collapse(s)

	currency := detectCurrency(s)
	if currency == "" {
		return ""
	}
	period := detectPeriod(s)

	cleaned := collapse(periodWordsRe.ReplaceAllString(s, " "))
	var amounts []int
	for _, token := range moneyTokenRe.FindAllString(cleaned, -1) {
		if n, ok := parseMoney(token); ok && n >= minMoneyAmount {
			amounts = append(amounts, n)
		}
	}
	if len(amounts) == 0 {
		return ""
	}

	out := groupThousands(amounts[0])
	if len(amounts) >= 2 {
		out += " - " + groupThousands(amounts[1])
	}
	out += " " + currency
	if period != "" {
		out += " / " + period
	}
	return out
}

func detectCurrency(s string) string {
	if sign := currencySignRe.FindString(s); sign != "" {
		return sign
	}
	if m := currencyCodeRe.FindStringSubmatch(s); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

func detectPeriod(s string) string {
	t := strings.ToLower(s)
	switch {
	case strings.Contains(t, "year") || strings.Contains(t, "/yr") || yrWordRe.MatchString(t):
		return "year"
	case strings.Contains(t, "month") || strings.Contains(t, "/mo") || moWordRe.MatchString(t):
		return "month"
	case strings.Contains(t, "hour") || strings.Contains(t, "/hr") || hrWordRe.MatchString(t):
		return "hour"
	}
	return ""
}

func parseMoney(token string) (int, bool) {
	s := strings.NewReplacer(",", "", " ", "").Replace(strings.TrimSpace(token))
	s = leadingSignRe.ReplaceAllString(s, "")
	m := moneyValueRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil || math.IsInf(value, 0) {
		return 0, false
	}
	if m[2] != "" {
		value *= 1000
	}
	if value > math.MaxInt32 {
		return 0, false
	}
	return int(math.Round(value)), true
}

func groupThousands(n int) string {
	digits := strconv.Itoa(n)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
