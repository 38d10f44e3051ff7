// Package validate implements stateless shape validation for extracted
// document fields. It is the cheapest, highest-precision filter in the
// correction chain and runs before any store lookup or scorer call.
package validate

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/docfix/internal/model"
)

// Result reports whether a value matches its field kind's shape.
type Result struct {
	Kind       model.FieldKind
	Input      string
	WellFormed bool
	// Candidate is the canonical form of a well-formed value (separators
	// stripped, stable formatting). Empty when the input is malformed.
	Candidate string
}

// Match is one candidate field value located inside free text.
type Match struct {
	Value      string
	WellFormed bool
}

// rule describes the shape of one field kind: a search pattern for locating
// candidates in raw text, a check for full validation, and an optional
// canonicalizer.
type rule struct {
	search    *regexp.Regexp
	check     func(s string) bool
	canonical func(s string) string
}

var rules = map[model.FieldKind]rule{
	model.KindRegistrationNumber: {
		search:    regexp.MustCompile(`\b\d{13,15}\b`),
		check:     digitLen(13, 15),
		canonical: digitsOnly,
	},
	model.KindTaxID: {
		search:    regexp.MustCompile(`\b\d{10,12}\b`),
		check:     digitLen(10, 12),
		canonical: digitsOnly,
	},
	model.KindTaxRegCode: {
		search:    regexp.MustCompile(`\b\d{9}\b`),
		check:     digitLen(9),
		canonical: digitsOnly,
	},
	model.KindInsuranceNumber: {
		search:    regexp.MustCompile(`\b\d{3}-\d{3}-\d{3}[ -]?\d{2}\b|\b\d{11}\b`),
		check:     digitLen(11),
		canonical: digitsOnly,
	},
	model.KindDate: {
		search:    regexp.MustCompile(`\b\d{1,2}[./-]\d{1,2}[./-]\d{2,4}\b`),
		check:     checkDate,
		canonical: canonicalDate,
	},
	model.KindCertificateNumber: {
		search: regexp.MustCompile(`(?i)(?:ЕАЭС\s*)?[ДС]\s*-?\s*RU\.?\s*[А-Я]{2}\d{2}\.?\s*В\.?\s*\d{5,6}(?:_\d{2})?`),
		check: func(s string) bool {
			return certRe.MatchString(s)
		},
		canonical: func(s string) string {
			return strings.Join(strings.Fields(s), " ")
		},
	},
	model.KindPhone: {
		// Anchored on the +7/8 trunk prefix so bare digit runs (tax ids,
		// registration numbers) are not mistaken for phones.
		search: regexp.MustCompile(`(?:\+7|\b8)[\s(-]*\d{3}[\s)-]*\d{3}[-.\s]?\d{2}[-.\s]?\d{2}\b`),
		check: func(s string) bool {
			n := len(digitsOnly(s))
			return n == 10 || n == 11
		},
		canonical: canonicalPhone,
	},
	model.KindEmail: {
		search:    regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		check:     checkEmail,
		canonical: strings.ToLower,
	},
	// address and free-text carry no shape: validation always reports
	// malformed so the engine consults the store and the scorer instead.
}

var certRe = regexp.MustCompile(`(?i)^(?:ЕАЭС\s*)?[ДС]\s*-?\s*RU\.?\s*[А-Я]{2}\d{2}\.?\s*В\.?\s*\d{5,6}(?:_\d{2})?$`)

// Validator validates extracted strings against known field shapes.
// Stateless; the zero value is not usable, use New.
type Validator struct{}

// New returns a Validator backed by the package pattern table.
func New() *Validator {
	return &Validator{}
}

// Validate checks text against the shape rules for kind. It never errors:
// unknown kinds and shapeless kinds yield WellFormed=false with no
// candidate. Input is NFC-normalized before matching.
func (v *Validator) Validate(kind model.FieldKind, text string) Result {
	res := Result{Kind: kind, Input: text}

	r, ok := rules[kind]
	if !ok {
		return res
	}

	cleaned := Normalize(text)
	if cleaned == "" {
		return res
	}

	if !r.check(cleaned) {
		return res
	}
	res.WellFormed = true
	if r.canonical != nil {
		res.Candidate = r.canonical(cleaned)
	} else {
		res.Candidate = cleaned
	}
	return res
}

// FindAll scans free text for candidate values of the given kind. Each
// located substring is re-checked against the full shape rule, so a match
// may still be reported malformed (for example an 8-digit run found by the
// tax-registration-code search window).
func (v *Validator) FindAll(kind model.FieldKind, text string) []Match {
	r, ok := rules[kind]
	if !ok {
		return nil
	}

	var out []Match
	for _, raw := range r.search.FindAllString(Normalize(text), -1) {
		cleaned := strings.TrimSpace(raw)
		out = append(out, Match{Value: cleaned, WellFormed: r.check(cleaned)})
	}
	return out
}

// HasShape reports whether kind carries a shape rule at all. Shapeless
// kinds (address, free-text) can never be well-formed.
func (v *Validator) HasShape(kind model.FieldKind) bool {
	_, ok := rules[kind]
	return ok
}

// Normalize applies NFC normalization and trims surrounding whitespace.
// OCR engines emit decomposed Cyrillic sequences that would defeat exact
// store lookups otherwise.
func Normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func digitLen(lengths ...int) func(string) bool {
	return func(s string) bool {
		n := len(digitsOnly(s))
		for _, l := range lengths {
			if n == l {
				return true
			}
		}
		return false
	}
}

var dateRe = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})[./-](\d{2,4})$`)

func checkDate(s string) bool {
	m := dateRe.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	return day >= 1 && day <= 31 && month >= 1 && month <= 12
}

func canonicalDate(s string) string {
	m := dateRe.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year := m[3]
	if len(year) == 2 {
		year = "20" + year
	}
	return pad2(day) + "." + pad2(month) + "." + year
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func canonicalPhone(s string) string {
	digits := digitsOnly(s)
	if len(digits) == 11 && (digits[0] == '7' || digits[0] == '8') {
		return "+7" + digits[1:]
	}
	if len(digits) == 10 {
		return "+7" + digits
	}
	return digits
}

func checkEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.Contains(s[at+1:], "@")
}
