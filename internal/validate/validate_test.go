package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/docfix/internal/model"
)

func TestValidate_DigitFields(t *testing.T) {
	v := New()

	tests := []struct {
		name       string
		kind       model.FieldKind
		text       string
		wellFormed bool
		candidate  string
	}{
		{"tax id 10 digits", model.KindTaxID, "1234567890", true, "1234567890"},
		{"tax id 12 digits", model.KindTaxID, "123456789012", true, "123456789012"},
		{"tax id too short", model.KindTaxID, "12345", false, ""},
		{"tax id 11 digits", model.KindTaxID, "12345678901", false, ""},
		{"registration 13 digits", model.KindRegistrationNumber, "1027700132195", true, "1027700132195"},
		{"registration 15 digits", model.KindRegistrationNumber, "304500116000157", true, "304500116000157"},
		{"registration 14 digits", model.KindRegistrationNumber, "10277001321950", false, ""},
		{"tax reg code 9 digits", model.KindTaxRegCode, "770201001", true, "770201001"},
		{"tax reg code 8 digits", model.KindTaxRegCode, "77020100", false, ""},
		{"insurance grouped", model.KindInsuranceNumber, "112-233-445 95", true, "11223344595"},
		{"insurance plain", model.KindInsuranceNumber, "11223344595", true, "11223344595"},
		{"insurance short", model.KindInsuranceNumber, "112-233-445", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.kind, tt.text)
			assert.Equal(t, tt.wellFormed, res.WellFormed)
			assert.Equal(t, tt.candidate, res.Candidate)
		})
	}
}

func TestValidate_Date(t *testing.T) {
	v := New()

	assert.True(t, v.Validate(model.KindDate, "01.02.2024").WellFormed)
	assert.True(t, v.Validate(model.KindDate, "1/2/24").WellFormed)
	assert.Equal(t, "01.02.2024", v.Validate(model.KindDate, "1/2/24").Candidate)
	assert.False(t, v.Validate(model.KindDate, "32.01.2024").WellFormed)
	assert.False(t, v.Validate(model.KindDate, "01.13.2024").WellFormed)
	assert.False(t, v.Validate(model.KindDate, "not a date").WellFormed)
}

func TestValidate_Phone(t *testing.T) {
	v := New()

	res := v.Validate(model.KindPhone, "+7 (495) 123-45-67")
	assert.True(t, res.WellFormed)
	assert.Equal(t, "+74951234567", res.Candidate)

	res = v.Validate(model.KindPhone, "8 495 123 45 67")
	assert.True(t, res.WellFormed)
	assert.Equal(t, "+74951234567", res.Candidate)

	assert.False(t, v.Validate(model.KindPhone, "12345").WellFormed)
}

func TestValidate_Email(t *testing.T) {
	v := New()

	res := v.Validate(model.KindEmail, "Info@Example.COM")
	assert.True(t, res.WellFormed)
	assert.Equal(t, "info@example.com", res.Candidate)

	assert.False(t, v.Validate(model.KindEmail, "not-an-email").WellFormed)
	assert.False(t, v.Validate(model.KindEmail, "a@b").WellFormed)
}

func TestValidate_CertificateNumber(t *testing.T) {
	v := New()

	assert.True(t, v.Validate(model.KindCertificateNumber, "ЕАЭС С-RU.АБ12.В.00123_21").WellFormed)
	assert.True(t, v.Validate(model.KindCertificateNumber, "Д-RU.АМ03.В.12345").WellFormed)
	assert.False(t, v.Validate(model.KindCertificateNumber, "сертификат 12345").WellFormed)
}

func TestValidate_ShapelessKinds(t *testing.T) {
	v := New()

	// Address and free text carry no shape rule; the engine decides via
	// the store and the scorer instead.
	assert.False(t, v.Validate(model.KindAddress, "Мариуполь").WellFormed)
	assert.False(t, v.Validate(model.KindFreeText, "any text at all").WellFormed)
	assert.False(t, v.HasShape(model.KindAddress))
	assert.True(t, v.HasShape(model.KindTaxID))
}

func TestValidate_UnknownKindAndEmpty(t *testing.T) {
	v := New()

	assert.False(t, v.Validate(model.FieldKind("bogus"), "1234567890").WellFormed)
	assert.False(t, v.Validate(model.KindTaxID, "   ").WellFormed)
}

func TestFindAll(t *testing.T) {
	v := New()

	text := "ИНН 1234567890, КПП 770201001, тел. +7 (495) 123-45-67"

	taxIDs := v.FindAll(model.KindTaxID, text)
	if assert.Len(t, taxIDs, 1) {
		assert.Equal(t, "1234567890", taxIDs[0].Value)
		assert.True(t, taxIDs[0].WellFormed)
	}

	codes := v.FindAll(model.KindTaxRegCode, text)
	if assert.Len(t, codes, 1) {
		assert.True(t, codes[0].WellFormed)
	}

	assert.Nil(t, v.FindAll(model.KindAddress, text))
	assert.Empty(t, v.FindAll(model.KindEmail, text))
}

func TestNormalize_NFC(t *testing.T) {
	// Decomposed й (и + combining breve) must collapse to the composed form
	// so exact store lookups hit.
	decomposed := "Российская"
	composed := "Российская"
	assert.Equal(t, composed, Normalize(decomposed))
	assert.Equal(t, "abc", Normalize("  abc  "))
}
