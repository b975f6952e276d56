package qr_test

import (
	"bytes"
	"testing"

	"ms-registration/internal/payments/qr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionString(t *testing.T) {
	in := qr.Instruction{
		IBAN:           "cz65 0800 0000 1920 0014 5399",
		AmountMinor:    45000,
		Currency:       "czk",
		VariableSymbol: "1234567890",
		Message:        "GameOne *Spring Cup*",
	}
	assert.Equal(t,
		"SPD*1.0*ACC:CZ6508000000192000145399*AM:450.00*CC:CZK*X-VS:1234567890*MSG:GameOne  Spring Cup",
		in.String())
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.00", qr.FormatAmount(0))
	assert.Equal(t, "0.05", qr.FormatAmount(5))
	assert.Equal(t, "1350.50", qr.FormatAmount(135050))
	assert.Equal(t, "-1.01", qr.FormatAmount(-101))
}

func TestParse(t *testing.T) {
	in := qr.Instruction{
		IBAN:           "CZ6508000000192000145399",
		AmountMinor:    90000,
		Currency:       "CZK",
		VariableSymbol: "0000000042",
		RecipientName:  "GameOne",
		Message:        "Registration",
	}
	out, err := qr.Parse(in.String())
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = qr.Parse("ACC:CZ1")
	assert.Error(t, err)

	_, err = qr.Parse("SPD*1.0*AM:1.234*ACC:CZ1")
	assert.Error(t, err)
}

func TestMessageIsTruncated(t *testing.T) {
	long := bytes.Repeat([]byte("x"), 100)
	s := qr.Instruction{IBAN: "CZ1", Currency: "CZK", Message: string(long)}.String()
	out, err := qr.Parse(s)
	require.NoError(t, err)
	assert.Len(t, out.Message, 60)
}

func TestGeneratorPNG(t *testing.T) {
	gen := qr.NewGenerator(128)
	png, err := gen.PNG("SPD*1.0*ACC:CZ6508000000192000145399*AM:1.00*CC:CZK")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "should be PNG encoded")

	_, err = gen.PNG("")
	assert.Error(t, err)
}
