package ticks

import (
	"math"
	"strconv"
	"strings"
)

// Parity of a tick's last digit
type Parity string

const (
	ParityPar   Parity = "PAR"
	ParityImpar Parity = "IMPAR"
)

// Tick is one observed price sample with its derived digit and parity
type Tick struct {
	Value  float64 `json:"value"`
	Epoch  int64   `json:"epoch"`
	Digit  int     `json:"digit"`
	Parity Parity  `json:"parity"`
}

// NewTick derives digit and parity from a raw quote. pipDigits is the
// number of decimal places the symbol is quoted in.
func NewTick(value float64, epoch int64, pipDigits int) Tick {
	d := LastDigit(value, pipDigits)
	return Tick{
		Value:  value,
		Epoch:  epoch,
		Digit:  d,
		Parity: ParityOf(d),
	}
}

// LastDigit returns the last decimal digit of the quote rendered at the
// symbol's pip precision, decimal point removed. Rendering at a fixed
// precision keeps trailing zeros: 1234.50 on a two-pip symbol yields 0,
// not 5. The quote is taken as an absolute number, so -123.45 and 123.45
// both yield 5. A negative pipDigits falls back to shortest rendering.
func LastDigit(value float64, pipDigits int) int {
	if pipDigits < 0 {
		pipDigits = -1
	}
	s := strconv.FormatFloat(math.Abs(value), 'f', pipDigits, 64)
	s = strings.ReplaceAll(s, ".", "")
	if s == "" {
		return 0
	}
	return int(s[len(s)-1] - '0')
}

// ParityOf maps a digit to PAR/IMPAR
func ParityOf(digit int) Parity {
	if digit%2 == 0 {
		return ParityPar
	}
	return ParityImpar
}

// Opposite returns the other parity
func (p Parity) Opposite() Parity {
	if p == ParityPar {
		return ParityImpar
	}
	return ParityPar
}

// ContractType maps a parity to the venue contract type
func (p Parity) ContractType() string {
	if p == ParityPar {
		return "DIGITEVEN"
	}
	return "DIGITODD"
}
