package discovery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/holdings-cli/internal/model"
)

// Static serves registry-embedded holdings as a single inline candidate.
type Static struct {
	now func() time.Time
}

// NewStatic creates the static adapter.
func NewStatic() *Static {
	return &Static{now: time.Now}
}

// Source implements Adapter.
func (s *Static) Source() model.SourceKind { return model.SourceStatic }

// Discover implements Adapter.
func (s *Static) Discover(_ context.Context, fund model.FundEntry, target time.Time) ([]model.DocumentDescriptor, error) {
	if len(fund.StaticHoldings) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(fund.StaticHoldings)
	if err != nil {
		return nil, eris.Wrap(err, "static: encode holdings")
	}

	asOf := target
	if asOf.IsZero() {
		asOf = truncateDay(s.now().UTC())
	}
	return []model.DocumentDescriptor{{
		URI:           StaticURI(fund.ID),
		PublishedDate: asOf,
		DocumentType:  model.DocStatic,
		Title:         fund.Name + " static holdings",
		Inline:        payload,
	}}, nil
}

// StaticURI is the pseudo-URI recorded as provenance for static holdings.
func StaticURI(fundID string) string {
	return "registry://" + fundID + "/static_holdings"
}
