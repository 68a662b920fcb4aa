package router

import (
	"regexp"
	"strings"
)

// Knowledge collection names.
const (
	CollectionVisa    = "visa_oracle"
	CollectionTax     = "tax_genius"
	CollectionKBLI    = "kbli_eye"
	CollectionLegal   = "legal_architect"
	CollectionPricing = "bali_zero_pricing"
	CollectionBooks   = "zantara_books"
)

// AllCollections lists every routable collection.
var AllCollections = []string{
	CollectionVisa,
	CollectionTax,
	CollectionKBLI,
	CollectionLegal,
	CollectionPricing,
	CollectionBooks,
}

// Route is a collection routing decision.
type Route struct {
	CollectionName string
	Collections    []string
	Confidence     float64
	IsPricing      bool
}

var pricingQueryRe = regexp.MustCompile(`(?i)\b(price|prices|pricing|cost|costs|fee|fees|tariff|how much|berapa biaya|berapa harga|harga|biaya|quanto costa)\b`)

var collectionKeywords = []struct {
	collection string
	keywords   []string
}{
	{CollectionVisa, []string{
		"visa", "kitas", "kitap", "immigration", "imigrasi", "passport",
		"paspor", "overstay", "sponsor", "voa", "b211", "e33", "golden visa",
		"stay permit", "exit permit",
	}},
	{CollectionTax, []string{
		"tax", "pajak", "npwp", "pph", "ppn", "vat", "spt", "withholding",
		"coretax", "efaktur", "tax return", "fiscal",
	}},
	{CollectionKBLI, []string{
		"kbli", "business classification", "klasifikasi baku", "oss",
		"nib", "business field", "bidang usaha", "risk-based",
	}},
	{CollectionLegal, []string{
		"pt pma", "company setup", "notaris", "notary", "deed", "akta",
		"shareholder", "director", "komisaris", "land", "tanah", "lease",
		"hak pakai", "hgb", "property law", "employment law", "labor",
	}},
}

// RouteCollections decides which collection(s) serve a query. Pricing
// detection takes precedence, then an explicit override, then keyword
// scoring. Unmatched business queries fan out to the main collections.
func RouteCollections(query, override string) *Route {
	q := strings.ToLower(strings.TrimSpace(query))

	if pricingQueryRe.MatchString(q) {
		return &Route{
			CollectionName: CollectionPricing,
			Collections:    []string{CollectionPricing},
			Confidence:     0.95,
			IsPricing:      true,
		}
	}

	if override != "" {
		return &Route{
			CollectionName: override,
			Collections:    []string{override},
			Confidence:     1.0,
		}
	}

	best := ""
	bestScore := 0
	var matched []string
	for _, ck := range collectionKeywords {
		score := 0
		for _, kw := range ck.keywords {
			if strings.Contains(q, kw) {
				score++
			}
		}
		if score > 0 {
			matched = append(matched, ck.collection)
		}
		if score > bestScore {
			bestScore = score
			best = ck.collection
		}
	}

	if best == "" {
		// No signal: search the broad collections.
		return &Route{
			CollectionName: CollectionLegal,
			Collections:    []string{CollectionVisa, CollectionTax, CollectionLegal},
			Confidence:     0.3,
		}
	}

	confidence := 0.6 + 0.1*float64(min(bestScore, 3))
	return &Route{
		CollectionName: best,
		Collections:    matched,
		Confidence:     confidence,
	}
}
