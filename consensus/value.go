package consensus

// ValueOut sums the ordinary outputs.
func (c *Certificate) ValueOut() (Amount, error) {
	values := make([]Amount, len(c.vout))
	for i, o := range c.vout {
		values[i] = o.Value
	}
	return sumAmounts("vout", values)
}

// ValueBackwardTransferOut sums the backward transfer outputs.
func (c *Certificate) ValueBackwardTransferOut() (Amount, error) {
	values := make([]Amount, len(c.vbtOut))
	for i, bt := range c.vbtOut {
		values[i] = bt.Value
	}
	return sumAmounts("vbt_ccout", values)
}

// FeeAmount returns TotalAmount minus ValueOut. The result is signed and is
// not checked for negativity here: fee policy belongs to block assembly.
func (c *Certificate) FeeAmount() (Amount, error) {
	if !MoneyRange(c.totalAmount) {
		return 0, certerr(CERT_ERR_VALUE_RANGE, "total_amount out of range")
	}
	out, err := c.ValueOut()
	if err != nil {
		return 0, err
	}
	return c.totalAmount - out, nil
}

// CheckAmounts runs both accountings and the committed total range check.
func (c *Certificate) CheckAmounts() error {
	if _, err := c.FeeAmount(); err != nil {
		return err
	}
	_, err := c.ValueBackwardTransferOut()
	return err
}
