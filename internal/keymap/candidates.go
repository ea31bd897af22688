package keymap

// SingleLabelKeys lists candidate provider keys per directly-fetched UI
// label, highest priority first. The first entries mirror the provider's
// documented constants; the rest are aliases seen in the wild.
var SingleLabelKeys = map[string][]string{
	"Net Asset Value":             {"NAV", "netassetvalue"},
	"Fully Diluted Market Cap":    {"FULLY_DILUTED_MARKET_CAP", "fullydilutedmarketcap", "fdmc"},
	"Fully Diluted Shares":        {"FULLY_DILUTED_SHARES", "fullydilutedshares", "fdshares", "fds"},
	"Number of Shares Outstanding": {
		"NUM_OF_SHARES", "SHARES_OUTSTANDING", "OUTSTANDING_SHARES",
		"SHARES_OUT", "sharesoutstanding", "shares_outstanding",
	},
	"Price":                   {"PRICE", "equityprice", "stockprice"},
	"Stock Trading Volume":    {"SHARE_VOLUME", "stocktradingvolume", "equityvolume", "volume", "stockvolume", "tradingvolume"},
	"Convertible Debt":        {"CONVERTIBLE_DEBT", "convertibledebt", "convdebt"},
	"Convertible Debt Shares": {"CONVERTIBLE_DEBT_SHARES", "convertibledebtshares", "convdebtshares"},
	"Non-Convertible Debt":    {"NON_CONVERTIBLE_DEBT", "non_convertible_debt", "nonconvertibledebt", "nonconvdebt"},
	"Historical Volatility":   {"HISTORICAL_VOLATILITY", "historicalvolatility", "volatility", "hv"},
	"Number of Tokens Held":   {"NUM_OF_TOKENS", "numberoftokensheld", "tokensheld", "assetsholding", "tokenheld", "coinsheld"},
	"Token Per Share":         {"TOKEN_PER_SHARE", "tokenpershare", "assetpershare", "coinpershare"},
	// The provider spells it WARRENTS.
	"Warrants": {"WARRENTS", "warrants", "warrents", "warrantcount"},
}

// CompositeLabelKeys lists candidate keys for ratio labels that must come
// straight from the provider. These are never computed locally: an
// unresolvable composite stays empty rather than being approximated.
var CompositeLabelKeys = map[string][]string{
	"MC / Nav":   {"M_NAV", "MC_NAV", "MC/NAV", "MARKET_CAP_NAV", "market_cap_nav", "mcnav", "mnav"},
	"FDMC / NAV": {"FDM_NAV", "FDMC_NAV", "FDMC/NAV", "FDMC_NAV_RATIO", "fdmcnav", "fdmnav"},
}

// Candidates returns the candidate key list for a label, composite or
// single, and whether the label is fetchable at all.
func Candidates(label string) ([]string, bool) {
	if keys, ok := SingleLabelKeys[label]; ok {
		return keys, true
	}
	if keys, ok := CompositeLabelKeys[label]; ok {
		return keys, true
	}
	return nil, false
}
