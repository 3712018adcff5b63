package sale

import "math/big"

// usdScale is the fixed-point scale shared by the sale price and normalised
// USD values.
const usdScale = 18

var bigTen = big.NewInt(10)

func pow10(exp uint) *big.Int {
	return new(big.Int).Exp(bigTen, new(big.Int).SetUint64(uint64(exp)), nil)
}

// NormalizeUSD rescales a payment-asset amount from its native decimal
// precision to the 18-decimal fixed-point USD representation.
func NormalizeUSD(amount *big.Int, assetDecimals uint8) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	normalized := new(big.Int).Set(amount)
	if assetDecimals < usdScale {
		return normalized.Mul(normalized, pow10(uint(usdScale-assetDecimals)))
	}
	if assetDecimals > usdScale {
		return normalized.Quo(normalized, pow10(uint(assetDecimals-usdScale)))
	}
	return normalized
}

// ConvertUSDToTokens derives the sold-token amount for a contribution using
// floor division: fractional remainders below one sold-token base unit are
// dropped, never carried forward. Deterministic for identical inputs.
func ConvertUSDToTokens(usdAmount *big.Int, assetDecimals, soldTokenDecimals uint8, priceUSD *big.Int) (*big.Int, error) {
	if usdAmount == nil || usdAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if priceUSD == nil || priceUSD.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	normalized := NormalizeUSD(usdAmount, assetDecimals)
	tokens := new(big.Int).Mul(normalized, pow10(uint(soldTokenDecimals)))
	return tokens.Quo(tokens, priceUSD), nil
}
