package consensus

import "fmt"

// Amount is a signed quantity of base units. Fees derived from certificates
// may be negative; every stored amount must satisfy MoneyRange.
type Amount int64

const (
	COIN     Amount = 100_000_000
	MaxMoney Amount = 21_000_000 * COIN
)

func MoneyRange(v Amount) bool {
	return v >= 0 && v <= MaxMoney
}

// sumAmounts adds values left to right, rejecting any term or running total
// outside MoneyRange. No partial sum is returned on failure.
func sumAmounts(what string, values []Amount) (Amount, error) {
	var total Amount
	for i, v := range values {
		if !MoneyRange(v) {
			return 0, certerr(CERT_ERR_VALUE_RANGE, fmt.Sprintf("%s[%d] out of range", what, i))
		}
		// Both operands are in [0, MaxMoney], so the addition cannot wrap int64.
		total += v
		if !MoneyRange(total) {
			return 0, certerr(CERT_ERR_VALUE_RANGE, fmt.Sprintf("%s running total out of range at %d", what, i))
		}
	}
	return total, nil
}

func (a Amount) String() string {
	sign := ""
	u := int64(a)
	if u < 0 {
		sign = "-"
		u = -u
	}
	return fmt.Sprintf("%s%d.%08d", sign, u/int64(COIN), u%int64(COIN))
}
