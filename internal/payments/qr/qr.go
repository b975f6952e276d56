// Package qr builds bank-transfer payment instructions in the Short Payment
// Descriptor format and renders them as scannable PNG images.
package qr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
)

const (
	spdHeader     = "SPD*1.0"
	maxMessageLen = 60
	maxNameLen    = 35
)

// Instruction is the data a banking app needs to pre-fill a transfer.
type Instruction struct {
	IBAN           string
	AmountMinor    int64
	Currency       string
	VariableSymbol string
	Message        string
	RecipientName  string
}

// String encodes the instruction, e.g.
// SPD*1.0*ACC:CZ6508000000192000145399*AM:450.00*CC:CZK*X-VS:1234567890*MSG:GAMEONE REGISTRATION
func (i Instruction) String() string {
	var b strings.Builder
	b.WriteString(spdHeader)
	b.WriteString("*ACC:")
	b.WriteString(strings.ReplaceAll(strings.ToUpper(i.IBAN), " ", ""))
	b.WriteString("*AM:")
	b.WriteString(FormatAmount(i.AmountMinor))
	b.WriteString("*CC:")
	b.WriteString(strings.ToUpper(i.Currency))
	if i.VariableSymbol != "" {
		b.WriteString("*X-VS:")
		b.WriteString(i.VariableSymbol)
	}
	if name := clean(i.RecipientName, maxNameLen); name != "" {
		b.WriteString("*RN:")
		b.WriteString(name)
	}
	if msg := clean(i.Message, maxMessageLen); msg != "" {
		b.WriteString("*MSG:")
		b.WriteString(msg)
	}
	return b.String()
}

// FormatAmount renders minor units with two decimals: 45000 -> "450.00".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// Parse decodes a string produced by Instruction.String.
func Parse(s string) (Instruction, error) {
	if !strings.HasPrefix(s, spdHeader) {
		return Instruction{}, errors.New("qr: missing SPD header")
	}
	var in Instruction
	for _, part := range strings.Split(strings.TrimPrefix(s, spdHeader), "*") {
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			return Instruction{}, fmt.Errorf("qr: malformed field %q", part)
		}
		switch key {
		case "ACC":
			in.IBAN = value
		case "AM":
			minor, err := parseAmount(value)
			if err != nil {
				return Instruction{}, err
			}
			in.AmountMinor = minor
		case "CC":
			in.Currency = value
		case "X-VS":
			in.VariableSymbol = value
		case "RN":
			in.RecipientName = value
		case "MSG":
			in.Message = value
		}
	}
	if in.IBAN == "" {
		return Instruction{}, errors.New("qr: missing account")
	}
	return in, nil
}

func parseAmount(v string) (int64, error) {
	whole, frac, _ := strings.Cut(v, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("qr: amount %q has more than two decimals", v)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("qr: invalid amount %q: %w", v, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("qr: invalid amount %q: %w", v, err)
	}
	return w*100 + f, nil
}

// '*' separates fields and cannot appear inside a value.
func clean(s string, max int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "*", " "))
	if r := []rune(s); len(r) > max {
		s = string(r[:max])
	}
	return s
}

// Generator renders instructions to PNG.
type Generator struct {
	size int
}

func NewGenerator(size int) *Generator {
	if size <= 0 {
		size = 256
	}
	return &Generator{size: size}
}

func (g *Generator) PNG(instruction string) ([]byte, error) {
	if instruction == "" {
		return nil, errors.New("qr: empty instruction")
	}
	return qrcode.Encode(instruction, qrcode.Medium, g.size)
}
