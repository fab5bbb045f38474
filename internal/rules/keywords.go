package rules

// High-risk keyword lists for the built-in heuristics. Matching is
// case-insensitive substring containment against the upper-cased field.
var (
	highRiskLocations = []string{
		"RU", "CN", "IR", "KP", "SY", "RUSSIA", "CHINA", "IRAN",
	}

	highRiskMerchants = []string{
		"CASH ADVANCE", "CASINO", "GAMBLING", "CRYPTO", "ADULT", "UNKNOWN MERCHANT",
	}
)
