package domain

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// ROEDecimals is the fixed-point precision of a ratio of exchange.
const ROEDecimals = 8

// ROE (ratio of exchange) is a USD price scaled by 10^8 and truncated to an integer.
type ROE int64

// ROEFromDecimal truncates toward zero, matching integer parsing of the scaled value.
func ROEFromDecimal(usd decimal.Decimal) ROE {
	return ROE(usd.Shift(ROEDecimals).IntPart())
}

func ROEFromFloat(usd float64) ROE {
	return ROEFromDecimal(decimal.NewFromFloat(usd))
}

// ROEFromString parses a decimal USD price such as "29.1067214009".
func ROEFromString(usd string) (ROE, error) {
	d, err := decimal.NewFromString(usd)
	if err != nil {
		return 0, fmt.Errorf("parse usd price %q: %w", usd, err)
	}
	return ROEFromDecimal(d), nil
}

// USD converts the ratio back to a decimal USD price.
func (r ROE) USD() decimal.Decimal {
	return decimal.New(int64(r), -ROEDecimals)
}

func (r ROE) String() string { return strconv.FormatInt(int64(r), 10) }
