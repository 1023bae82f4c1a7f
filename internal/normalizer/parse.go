package normalizer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayouts are the accepted source date formats, tried in order.
var DateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"1/2/06",
	"2006/01/02",
	"01-02-2006",
	time.RFC3339,
}

// ISODate is the layout dates are rewritten to.
const ISODate = "2006-01-02"

// Parse errors.
var (
	ErrEmptyValue = errors.New("value is empty")
	ErrBadDate    = errors.New("not a recognized date")
	ErrBadNumber  = errors.New("not a number")
)

// ParseDate parses s using DateLayouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmptyValue
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, s)
}

// ParseNumber parses an amount, tolerating currency symbols, thousands separators
// and accounting-style parentheses for negatives.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyValue
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadNumber, s)
	}
	if negative {
		f = -f
	}
	return f, nil
}
