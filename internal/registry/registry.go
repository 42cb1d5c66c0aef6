// Package registry loads the declarative fund registry and indexes it by fund
// id, ticker, and share-class ISIN.
package registry

import (
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/holdings-cli/internal/ident"
	"github.com/sells-group/holdings-cli/internal/model"
)

const (
	defaultFreshnessUS = 30 * 24 * time.Hour
	defaultFreshnessEU = 210 * 24 * time.Hour
)

var (
	cikPattern      = regexp.MustCompile(`^[0-9]{1,10}$`)
	seriesPattern   = regexp.MustCompile(`^S[0-9]{9}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

type file struct {
	Funds map[string]fundYAML `yaml:"funds"`
}

type fundYAML struct {
	Name                   string                `yaml:"name"`
	Issuer                 string                `yaml:"issuer"`
	Jurisdiction           string                `yaml:"jurisdiction"`
	Source                 string                `yaml:"source"`
	Tickers                []string              `yaml:"tickers"`
	CIK                    string                `yaml:"cik"`
	SeriesID               string                `yaml:"series_id"`
	ClassID                string                `yaml:"class_id"`
	ShareClassISIN         string                `yaml:"share_class_isin"`
	Currency               string                `yaml:"currency"`
	FreshnessDays          *int                  `yaml:"freshness_days"`
	ExcludeFromLookthrough bool                  `yaml:"exclude_from_lookthrough"`
	StaticHoldings         []model.StaticHolding `yaml:"static_holdings"`
}

// Registry is an immutable, indexed set of fund entries.
type Registry struct {
	funds    []model.FundEntry
	byID     map[string]int
	byTicker map[string]int
	byISIN   map[string]int
}

// LoadFile reads and validates a YAML registry file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read file")
	}
	return Parse(data)
}

// Parse decodes and validates YAML registry content.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal yaml")
	}
	if len(f.Funds) == 0 {
		return nil, eris.New("registry: no funds defined")
	}

	entries := make([]model.FundEntry, 0, len(f.Funds))
	for id, y := range f.Funds {
		entries = append(entries, y.entry(id))
	}
	return New(entries)
}

func (y fundYAML) entry(id string) model.FundEntry {
	e := model.FundEntry{
		ID:                     strings.TrimSpace(id),
		Name:                   strings.TrimSpace(y.Name),
		Issuer:                 strings.TrimSpace(y.Issuer),
		Jurisdiction:           model.Jurisdiction(strings.ToUpper(strings.TrimSpace(y.Jurisdiction))),
		Source:                 model.SourceKind(strings.ToLower(strings.TrimSpace(y.Source))),
		CIK:                    strings.TrimSpace(y.CIK),
		SeriesID:               strings.ToUpper(strings.TrimSpace(y.SeriesID)),
		ClassID:                strings.ToUpper(strings.TrimSpace(y.ClassID)),
		ShareClassISIN:         ident.Clean(y.ShareClassISIN),
		Currency:               strings.ToUpper(strings.TrimSpace(y.Currency)),
		ExcludeFromLookthrough: y.ExcludeFromLookthrough,
		StaticHoldings:         y.StaticHoldings,
	}
	for _, t := range y.Tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			e.Tickers = append(e.Tickers, t)
		}
	}
	if e.Source == "" {
		e.Source = model.DefaultSource(e.Jurisdiction)
	}
	if e.Currency == "" {
		e.Currency = e.Jurisdiction.BaseCurrency()
	}
	switch {
	case y.FreshnessDays != nil:
		e.Freshness = time.Duration(*y.FreshnessDays) * 24 * time.Hour
	case e.Jurisdiction.IsEU():
		e.Freshness = defaultFreshnessEU
	default:
		e.Freshness = defaultFreshnessUS
	}
	return e
}

// New validates entries and builds the lookup indexes. All validation
// problems are reported together.
func New(entries []model.FundEntry) (*Registry, error) {
	r := &Registry{
		byID:     make(map[string]int, len(entries)),
		byTicker: make(map[string]int),
		byISIN:   make(map[string]int),
	}

	sorted := append([]model.FundEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var problems []string
	for _, e := range sorted {
		if errs := validate(e); len(errs) > 0 {
			problems = append(problems, errs...)
			continue
		}
		if _, dup := r.byID[e.ID]; dup {
			problems = append(problems, e.ID+": duplicate fund id")
			continue
		}

		idx := len(r.funds)
		r.funds = append(r.funds, e)
		r.byID[e.ID] = idx
		for _, t := range e.Tickers {
			if prev, dup := r.byTicker[t]; dup {
				problems = append(problems, e.ID+": ticker "+t+" already mapped to "+r.funds[prev].ID)
				continue
			}
			r.byTicker[t] = idx
		}
		if e.ShareClassISIN != "" {
			r.byISIN[e.ShareClassISIN] = idx
		}
	}

	if len(problems) > 0 {
		return nil, eris.Errorf("registry: %d validation error(s): %s", len(problems), strings.Join(problems, "; "))
	}
	return r, nil
}

func validate(e model.FundEntry) []string {
	if e.ID == "" {
		return []string{"fund with empty id"}
	}

	var errs []string
	add := func(msg string) { errs = append(errs, e.ID+": "+msg) }

	switch e.Jurisdiction {
	case model.JurisdictionUS, model.JurisdictionLU, model.JurisdictionDE, model.JurisdictionFR, model.JurisdictionIE:
	default:
		add("unknown jurisdiction " + strconv.Quote(string(e.Jurisdiction)))
	}
	if !e.Source.Valid() {
		add("unknown source " + strconv.Quote(string(e.Source)))
	}
	if e.Freshness <= 0 {
		add("freshness must be positive")
	}
	if e.ShareClassISIN != "" && !ident.ValidISIN(e.ShareClassISIN) {
		add("malformed share_class_isin " + e.ShareClassISIN)
	}
	if e.Currency != "" && !currencyPattern.MatchString(e.Currency) {
		add("malformed currency " + e.Currency)
	}

	switch e.Source {
	case model.SourceSECNPORT:
		if !cikPattern.MatchString(e.CIK) {
			add("sec_nport requires a numeric cik of at most 10 digits")
		}
		if e.SeriesID != "" && !seriesPattern.MatchString(e.SeriesID) {
			add("malformed series_id " + e.SeriesID)
		}
	case model.SourceLuxSEOAM, model.SourceBundesanzeiger, model.SourceAMFBDIF:
		if e.ShareClassISIN == "" {
			add(string(e.Source) + " requires share_class_isin")
		}
	case model.SourceStatic:
		if len(e.StaticHoldings) == 0 {
			add("static source requires static_holdings")
		}
		for i, h := range e.StaticHoldings {
			if h.ISIN != "" && !ident.ValidISIN(ident.Clean(h.ISIN)) {
				add("static_holdings[" + strconv.Itoa(i) + "] malformed isin " + h.ISIN)
			}
		}
	}
	return errs
}

// Len returns the number of funds.
func (r *Registry) Len() int { return len(r.funds) }

// Funds returns all entries ordered by fund id.
func (r *Registry) Funds() []model.FundEntry {
	return append([]model.FundEntry(nil), r.funds...)
}

// Get returns the entry for a canonical fund id.
func (r *Registry) Get(id string) (model.FundEntry, bool) {
	idx, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return model.FundEntry{}, false
	}
	return r.funds[idx], true
}

// ByTicker returns the entry mapped to a tradable symbol (case-insensitive).
func (r *Registry) ByTicker(ticker string) (model.FundEntry, bool) {
	idx, ok := r.byTicker[strings.ToUpper(strings.TrimSpace(ticker))]
	if !ok {
		return model.FundEntry{}, false
	}
	return r.funds[idx], true
}

// ByISIN returns the entry whose share-class ISIN matches.
func (r *Registry) ByISIN(isin string) (model.FundEntry, bool) {
	idx, ok := r.byISIN[ident.Clean(isin)]
	if !ok {
		return model.FundEntry{}, false
	}
	return r.funds[idx], true
}

// Lookup resolves a fund id, ticker, or share-class ISIN, in that order.
func (r *Registry) Lookup(key string) (model.FundEntry, bool) {
	if e, ok := r.Get(key); ok {
		return e, true
	}
	if e, ok := r.ByTicker(key); ok {
		return e, true
	}
	return r.ByISIN(key)
}
