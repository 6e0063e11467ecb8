package util

import (
	"fmt"
	"math/big"
	"strings"
)

const etherDecimals = 18

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(etherDecimals), nil)

// ParseEther converts a decimal ether amount such as "0.25" to wei without going through floats.
func ParseEther(ethValue string) (*big.Int, error) {
	ethValue = strings.TrimSpace(ethValue)
	if ethValue == "" {
		return nil, fmt.Errorf("empty amount")
	}
	whole, frac, _ := strings.Cut(ethValue, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > etherDecimals {
		return nil, fmt.Errorf("amount %s has more than %d decimals", ethValue, etherDecimals)
	}

	wei, ok := new(big.Int).SetString(whole+frac+strings.Repeat("0", etherDecimals-len(frac)), 10)
	if !ok || strings.ContainsAny(whole+frac, "+-") {
		return nil, fmt.Errorf("conversion to wei failed: %q", ethValue)
	}
	return wei, nil
}

// ParseAmount accepts either a plain wei integer or an ether amount suffixed with "ether".
func ParseAmount(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "ether") {
		return ParseEther(strings.TrimSuffix(value, "ether"))
	}
	wei, ok := new(big.Int).SetString(value, 10)
	if !ok || wei.Sign() < 0 {
		return nil, fmt.Errorf("invalid wei amount: %q", value)
	}
	return wei, nil
}

func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	q, r := new(big.Int).QuoRem(new(big.Int).Abs(wei), weiPerEther, new(big.Int))
	sign := ""
	if wei.Sign() < 0 {
		sign = "-"
	}
	if r.Sign() == 0 {
		return sign + q.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%018s", r.String()), "0")
	return sign + q.String() + "." + frac
}
