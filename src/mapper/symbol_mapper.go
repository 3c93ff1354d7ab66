package mapper

import (
	"strings"

	logger "github.com/sirupsen/logrus"
)

// NormalizeTradingSymbol converts a signal-source symbol into the
// venue-neutral trading symbol the engine subscribes with.
// Examples:
//
//	BINANCE:BTCUSDT.P -> BTCUSDT
//	BYBIT:ETHUSDT     -> ETHUSDT
//	btcusd            -> BTCUSDT
func NormalizeTradingSymbol(signalSymbol string) string {
	if signalSymbol == "" {
		return signalSymbol
	}

	s := strings.ToUpper(strings.TrimSpace(signalSymbol))

	// Drop the venue prefix ("BINANCE:", "BYBIT:", ...)
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}

	// Drop perpetual-contract suffixes
	s = strings.TrimSuffix(s, ".P")
	s = strings.TrimSuffix(s, ".PS")

	return NormalizeToUSDT(s)
}

// NormalizeToUSDT ensures that a symbol ends with USDT.
// Examples:
//
//	BTCUSD  -> BTCUSDT
//	ETHUSD  -> ETHUSDT
//	BTCUSDT -> BTCUSDT
//	ethusd  -> ETHUSDT
func NormalizeToUSDT(symbol string) string {
	if symbol == "" {
		return symbol
	}

	s := strings.ToUpper(strings.TrimSpace(symbol))

	// If it already ends with USDT, nothing to do
	if strings.HasSuffix(s, "USDT") {
		return s
	}

	// If it ends with USD, replace with USDT
	if strings.HasSuffix(s, "USD") {
		base := strings.TrimSuffix(s, "USD")
		return base + "USDT"
	}

	// Otherwise, return as is (do not force)
	return s
}

// ToBinanceFutures maps the neutral trading symbol to Binance USD(T)-M
// futures naming. Binance uses the neutral form directly.
func ToBinanceFutures(symbol string) string {
	return strings.ToUpper(symbol)
}

// ToBybitLinear maps the neutral trading symbol to Bybit linear-perpetual
// naming. Bybit uses the neutral form directly.
func ToBybitLinear(symbol string) string {
	return strings.ToUpper(symbol)
}

// ToKrakenFutures maps the neutral trading symbol to a Kraken Futures
// perpetual product id.
// Examples:
//
//	BTCUSDT -> PF_XBTUSD
//	ETHUSDT -> PF_ETHUSD
func ToKrakenFutures(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	base := strings.TrimSuffix(strings.TrimSuffix(s, "USDT"), "USD")
	if base == "" {
		logger.WithField("mapper", "ToKrakenFutures").
			WithField("symbol", symbol).
			Warn("Cannot derive base currency, returning symbol unchanged")
		return s
	}

	// Kraken names bitcoin XBT
	if base == "BTC" {
		base = "XBT"
	}

	return "PF_" + base + "USD"
}
