package enrich

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/holdings-cli/internal/ident"
	"github.com/sells-group/holdings-cli/internal/model"
)

// Controlled vocabulary values.
const (
	CountryUnknown = "Unknown"
	SectorUnknown  = "Unclassified"

	ClassEquity      = "Equity"
	ClassFixedIncome = "Fixed Income"
	ClassDerivatives = "Derivatives"
	ClassCash        = "Cash"
	ClassFund        = "Fund"
	ClassRealEstate  = "Real Estate"
	ClassCommodity   = "Commodity"
	ClassOther       = "Other"
)

var countryAliases = map[string]string{
	"USA": "US", "UNITED STATES": "US", "UNITED STATES OF AMERICA": "US", "ETATS-UNIS": "US", "VEREINIGTE STAATEN": "US",
	"UK": "GB", "UNITED KINGDOM": "GB", "GREAT BRITAIN": "GB", "ROYAUME-UNI": "GB", "GROSSBRITANNIEN": "GB",
	"GERMANY": "DE", "DEUTSCHLAND": "DE", "ALLEMAGNE": "DE",
	"FRANCE": "FR", "FRANKREICH": "FR",
	"LUXEMBOURG": "LU", "LUXEMBURG": "LU",
	"IRELAND": "IE", "IRLANDE": "IE", "IRLAND": "IE",
	"NETHERLANDS": "NL", "PAYS-BAS": "NL", "NIEDERLANDE": "NL",
	"SWITZERLAND": "CH", "SUISSE": "CH", "SCHWEIZ": "CH",
	"JAPAN": "JP", "JAPON": "JP",
	"CANADA": "CA", "KANADA": "CA",
	"CHINA": "CN", "CHINE": "CN",
	"ITALY": "IT", "ITALIE": "IT", "ITALIEN": "IT",
	"SPAIN": "ES", "ESPAGNE": "ES", "SPANIEN": "ES",
	"SWEDEN": "SE", "SUEDE": "SE", "SCHWEDEN": "SE",
	"DENMARK": "DK", "DANEMARK": "DK", "DAENEMARK": "DK",
	"AUSTRALIA": "AU", "AUSTRALIE": "AU", "AUSTRALIEN": "AU",
	"TAIWAN": "TW", "SOUTH KOREA": "KR", "KOREA": "KR", "INDIA": "IN", "INDE": "IN", "BRAZIL": "BR", "BRESIL": "BR",
	"BELGIUM": "BE", "BELGIQUE": "BE", "BELGIEN": "BE", "FINLAND": "FI", "FINLANDE": "FI", "NORWAY": "NO", "NORVEGE": "NO",
	"AUSTRIA": "AT", "AUTRICHE": "AT", "OSTERREICH": "AT", "HONG KONG": "HK", "SINGAPORE": "SG", "SINGAPOUR": "SG",
}

type vocabRule struct {
	value    string
	keywords []string
}

// assetClassCodes are exact N-PORT assetCat codes.
var assetClassCodes = map[string]string{
	"EC": ClassEquity, "EP": ClassEquity,
	"DBT": ClassFixedIncome, "LON": ClassFixedIncome, "SN": ClassFixedIncome,
	"ABS-MBS": ClassFixedIncome, "ABS-ASBS": ClassFixedIncome, "ABS-CBDO": ClassFixedIncome, "ABS-O": ClassFixedIncome,
	"STIV": ClassCash, "RA": ClassCash,
	"RF": ClassFund, "RE": ClassRealEstate, "COMM": ClassCommodity,
	"DCO": ClassDerivatives, "DCR": ClassDerivatives, "DE": ClassDerivatives, "DFE": ClassDerivatives,
	"DIR": ClassDerivatives, "DO": ClassDerivatives,
}

// assetClassRules match folded free text in order.
var assetClassRules = []vocabRule{
	{ClassDerivatives, []string{"deriv", "future", "swap", "option", "forward", "warrant"}},
	{ClassCash, []string{"cash", "repurchase", "liquid", "money market", "deposit", "bankguthaben"}},
	{ClassFund, []string{"fund", "etf", "ucits", "fonds", "opcvm", "investmentanteil"}},
	{ClassRealEstate, []string{"real estate", "reit", "immobil"}},
	{ClassCommodity, []string{"commodit", "gold bullion", "rohstoff", "matieres premieres"}},
	{ClassFixedIncome, []string{"debt", "bond", "oblig", "anleihe", "renten", "fixed income", "note", "treasury", "convertible"}},
	{ClassEquity, []string{"equit", "action", "aktie", "share", "common stock", "preferred"}},
}

var sectionClass = map[model.Section]string{
	model.SectionEquity:     ClassEquity,
	model.SectionBond:       ClassFixedIncome,
	model.SectionDerivative: ClassDerivatives,
	model.SectionCash:       ClassCash,
	model.SectionFund:       ClassFund,
}

// sectorRules map provider and report sector labels onto GICS sectors.
// Health Care precedes IT so "biotechnology" is not read as technology.
var sectorRules = []vocabRule{
	{"Health Care", []string{"health", "sante", "gesundheit", "pharma", "biotech"}},
	{"Information Technology", []string{"information technology", "technology", "technologie", "informationstechnologie", "software", "semiconductor"}},
	{"Financials", []string{"financ", "bank", "insurance", "assurance", "versicherung"}},
	{"Consumer Discretionary", []string{"consumer discretionary", "consumer cyclical", "consommation discretionnaire", "zyklische konsumguter", "retail", "automobile"}},
	{"Consumer Staples", []string{"consumer staples", "consumer defensive", "biens de consommation de base", "basiskonsumguter", "food", "beverage"}},
	{"Communication Services", []string{"communication", "telecom", "media", "kommunikation"}},
	{"Industrials", []string{"industr", "aerospace", "transport"}},
	{"Energy", []string{"energy", "energie", "oil", "gas"}},
	{"Utilities", []string{"utilit", "services publics", "versorger"}},
	{"Real Estate", []string{"real estate", "immobil", "reit"}},
	{"Materials", []string{"material", "materiaux", "chemical", "chimie", "mining", "rohstoff"}},
}

func vocabKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

func matchRules(rules []vocabRule, key string) (string, bool) {
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(key, kw) {
				return r.value, true
			}
		}
	}
	return "", false
}

// Country canonicalises a raw country string to ISO 3166-1 alpha-2, falling
// back to the ISIN's country prefix and then to CountryUnknown.
func Country(raw, isin string) string {
	key := strings.ToUpper(vocabKey(raw))
	if len(key) == 2 && isLetters(key) {
		if key == "UK" {
			return "GB"
		}
		return key
	}
	if iso, ok := countryAliases[key]; ok {
		return iso
	}
	if c := ident.Country(ident.Clean(isin)); c != "" && ident.ValidISIN(ident.Clean(isin)) {
		return c
	}
	return CountryUnknown
}

// AssetClass maps a raw asset class to the controlled vocabulary. A report
// section label outranks the raw text; the derivative flag outranks both.
func AssetClass(raw string, section model.Section, derivative bool) string {
	if derivative {
		return ClassDerivatives
	}
	if c, ok := sectionClass[section]; ok {
		return c
	}
	code := strings.ToUpper(strings.TrimSpace(raw))
	if c, ok := assetClassCodes[code]; ok {
		return c
	}
	if strings.HasPrefix(code, "ABS") {
		return ClassFixedIncome
	}
	if c, ok := matchRules(assetClassRules, vocabKey(raw)); ok {
		return c
	}
	return ClassOther
}

// Sector maps a raw sector label to a GICS sector name.
func Sector(raw string) string {
	key := vocabKey(raw)
	if key == "" {
		return SectorUnknown
	}
	if s, ok := matchRules(sectorRules, key); ok {
		return s
	}
	return SectorUnknown
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
