package postal

import (
	"errors"
	"strconv"
	"time"
)

// Code is a Norwegian postal code. Codes are numeric, consist of exactly
// 4 digits, and are always displayed zero-padded ("0001", not "1").
type Code uint16

// ErrInvalidCode is returned by ParseCode for input that is not exactly
// 4 ASCII digits.
var ErrInvalidCode = errors.New("postal: Norwegian postal codes consist of exactly 4 digits")

// ParseCode validates and parses a postal code from its textual form.
func ParseCode(s string) (Code, error) {
	if len(s) != 4 {
		return 0, ErrInvalidCode
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrInvalidCode
		}
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, ErrInvalidCode
	}
	return Code(n), nil
}

// String returns the zero-padded 4-digit form.
func (c Code) String() string {
	out := [4]byte{'0', '0', '0', '0'}
	n := uint16(c)
	for i := 3; i >= 0 && n > 0; i-- {
		out[i] = '0' + byte(n%10)
		n /= 10
	}
	return string(out[:])
}

// DeliveryDate records that mail arrives at a postal code on a given date.
// Only the year/month/day of Date are meaningful; the time of day and
// location are ignored.
type DeliveryDate struct {
	Code Code
	Date time.Time
}

// NewDeliveryDate constructs a DeliveryDate for the given code and date.
func NewDeliveryDate(code Code, date time.Time) DeliveryDate {
	return DeliveryDate{Code: code, Date: date}
}
