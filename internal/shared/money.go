package shared

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Cents is a monetary amount with two decimal places, stored as an integer.
// It encodes to JSON as a decimal number such as 12.50.
type Cents int64

// MaxAmount is the largest magnitude a NUMERIC(10,2) column holds.
const MaxAmount Cents = 99_999_999_99

// String renders the amount as a decimal.
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON implements json.Marshaler.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalJSON accepts a JSON number or numeric string with at most two decimals.
func (c *Cents) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	parsed, err := ParseCents(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCents parses a decimal string such as "12", "12.5" or "12.50".
func ParseCents(raw string) (Cents, error) {
	raw = strings.TrimSpace(raw)
	negative := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(raw, "-")
	whole, frac, hasFrac := strings.Cut(raw, ".")
	if whole == "" || (hasFrac && frac == "") || len(frac) > 2 {
		return 0, fmt.Errorf("%w: invalid amount %q", ErrValidation, raw)
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid amount %q", ErrValidation, raw)
	}
	var cents int64
	if frac != "" {
		if len(frac) == 1 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || strings.ContainsAny(frac, "+-") {
			return 0, fmt.Errorf("%w: invalid amount %q", ErrValidation, raw)
		}
	}
	if strings.ContainsAny(whole, "+-") {
		return 0, fmt.Errorf("%w: invalid amount %q", ErrValidation, raw)
	}
	if units > int64(MaxAmount)/100 {
		return 0, fmt.Errorf("%w: amount %q exceeds %s", ErrValidation, raw, MaxAmount)
	}
	total := units*100 + cents
	if negative {
		total = -total
	}
	return Cents(total), nil
}
