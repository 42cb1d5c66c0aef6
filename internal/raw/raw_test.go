package raw

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/holdings-cli/internal/fetcher"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/resilience"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Get(ctx context.Context, source, u string) (*fetcher.Response, error) {
	args := m.Called(ctx, source, u)
	resp, _ := args.Get(0).(*fetcher.Response)
	return resp, args.Error(1)
}

func (m *mockFetcher) PostForm(ctx context.Context, source, u string, form url.Values) (*fetcher.Response, error) {
	args := m.Called(ctx, source, u, form)
	resp, _ := args.Get(0).(*fetcher.Response)
	return resp, args.Error(1)
}

const nportBody = `<?xml version="1.0" encoding="UTF-8"?><edgarSubmission xmlns="http://www.sec.gov/edgar/nport"></edgarSubmission>`

func nportDesc() model.DocumentDescriptor {
	return model.DocumentDescriptor{
		FundID:        "spdr-sp500",
		Source:        model.SourceSECNPORT,
		Jurisdiction:  model.JurisdictionUS,
		URI:           "https://www.sec.gov/Archives/edgar/data/884394/000175272424190001/primary_doc.xml",
		PublishedDate: time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		DocumentType:  model.DocNPORTXML,
		Accession:     "0001752724-24-190001",
	}
}

func okResponse(body, contentType string) *fetcher.Response {
	return &fetcher.Response{
		StatusCode:  200,
		ContentType: contentType,
		Body:        []byte(body),
		Attempts:    1,
		FetchedAt:   time.Date(2024, 8, 29, 12, 0, 0, 0, time.UTC),
	}
}

func TestDownload_StoresContentAddressed(t *testing.T) {
	dir := t.TempDir()
	f := new(mockFetcher)
	desc := nportDesc()
	f.On("Get", mock.Anything, "sec_nport", desc.URI).Return(okResponse(nportBody, "application/xml"), nil).Once()

	d := NewDownloader(f, NewArena(dir))
	doc, err := d.Download(context.Background(), desc)
	require.NoError(t, err)

	assert.Equal(t, Hash([]byte(nportBody)), doc.Hash)
	assert.Equal(t, model.DocNPORTXML, doc.DocumentType)
	assert.Equal(t, int64(len(nportBody)), doc.Size)
	assert.Equal(t, "US/sec_nport/fund_id=spdr-sp500/2024-06-30/"+doc.Hash+"/document.xml", doc.Path)

	payload, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(doc.Path)))
	require.NoError(t, err)
	assert.Equal(t, nportBody, string(payload))

	_, err = os.Stat(filepath.Join(dir, "US/sec_nport/fund_id=spdr-sp500/2024-06-30", doc.Hash, "metadata.json"))
	require.NoError(t, err)

	stored, err := d.Arena().Get(doc.Hash)
	require.NoError(t, err)
	assert.Equal(t, desc.URI, stored.URI)
	assert.Equal(t, "0001752724-24-190001", stored.Accession)
	f.AssertExpectations(t)
}

func TestDownload_IdempotentWithoutNetwork(t *testing.T) {
	f := new(mockFetcher)
	desc := nportDesc()
	f.On("Get", mock.Anything, "sec_nport", desc.URI).Return(okResponse(nportBody, "application/xml"), nil).Once()

	d := NewDownloader(f, NewArena(t.TempDir()))
	first, err := d.Download(context.Background(), desc)
	require.NoError(t, err)

	second, err := d.Download(context.Background(), desc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	f.AssertNumberOfCalls(t, "Get", 1)
}

func TestDownload_SameContentDifferentURI(t *testing.T) {
	f := new(mockFetcher)
	a, b := nportDesc(), nportDesc()
	b.URI = "https://mirror.example.com/primary_doc.xml"
	f.On("Get", mock.Anything, "sec_nport", a.URI).Return(okResponse(nportBody, "application/xml"), nil).Once()
	f.On("Get", mock.Anything, "sec_nport", b.URI).Return(okResponse(nportBody, "application/xml"), nil).Once()

	d := NewDownloader(f, NewArena(t.TempDir()))
	first, err := d.Download(context.Background(), a)
	require.NoError(t, err)
	second, err := d.Download(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, b.URI, second.URI)

	byURI, ok, err := d.Arena().LookupURI(b.URI)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, first.Hash, byURI.Hash)
}

func TestDownload_SharedReportKeepsCallerFund(t *testing.T) {
	f := new(mockFetcher)
	a, b := nportDesc(), nportDesc()
	b.FundID = "sub-fund-b"
	b.URI = "https://mirror.example.com/umbrella.xml"
	f.On("Get", mock.Anything, "sec_nport", a.URI).Return(okResponse(nportBody, "application/xml"), nil).Once()
	f.On("Get", mock.Anything, "sec_nport", b.URI).Return(okResponse(nportBody, "application/xml"), nil).Once()

	d := NewDownloader(f, NewArena(t.TempDir()))
	first, err := d.Download(context.Background(), a)
	require.NoError(t, err)
	second, err := d.Download(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, a.FundID, first.FundID)
	assert.Equal(t, "sub-fund-b", second.FundID)
	assert.Equal(t, b.URI, second.URI)

	// Replaying the second URI from the index keeps the caller's fund too.
	again, err := d.Download(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, "sub-fund-b", again.FundID)
	assert.Equal(t, b.URI, again.URI)
	f.AssertExpectations(t)
}

func TestDownload_FailureRecorded(t *testing.T) {
	f := new(mockFetcher)
	desc := nportDesc()
	fetchErr := &fetcher.AttemptError{
		URL:      desc.URI,
		Attempts: 3,
		Err:      resilience.StatusError(503, desc.URI),
	}
	f.On("Get", mock.Anything, "sec_nport", desc.URI).Return(nil, fetchErr)

	arena := NewArena(t.TempDir())
	_, err := NewDownloader(f, arena).Download(context.Background(), desc)

	var de *model.DownloadError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 3, de.Attempts)
	assert.Equal(t, 503, de.StatusCode)
	assert.False(t, de.Permanent)

	rec, ok, err := arena.Failure(desc.URI)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, 503, rec.StatusCode)
	assert.Equal(t, "spdr-sp500", rec.FundID)

	_, found, err := arena.LookupURI(desc.URI)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDownload_NotFoundIsPermanent(t *testing.T) {
	f := new(mockFetcher)
	desc := nportDesc()
	f.On("Get", mock.Anything, "sec_nport", desc.URI).
		Return(nil, &fetcher.AttemptError{URL: desc.URI, Attempts: 1, Err: resilience.StatusError(404, desc.URI)})

	_, err := NewDownloader(f, NewArena(t.TempDir())).Download(context.Background(), desc)
	var de *model.DownloadError
	require.ErrorAs(t, err, &de)
	assert.True(t, de.Permanent)
	assert.Equal(t, 404, de.StatusCode)
	assert.Equal(t, 1, de.Attempts)
}

func TestDownload_WrongContentTypeIsPermanent(t *testing.T) {
	f := new(mockFetcher)
	desc := nportDesc()
	f.On("Get", mock.Anything, "sec_nport", desc.URI).
		Return(okResponse("<html><body>Request Rate Threshold Exceeded</body></html>", "text/html"), nil)

	arena := NewArena(t.TempDir())
	_, err := NewDownloader(f, arena).Download(context.Background(), desc)
	var de *model.DownloadError
	require.ErrorAs(t, err, &de)
	assert.True(t, de.Permanent)
	assert.Contains(t, de.Error(), "unexpected content type")

	_, ok, err := arena.Failure(desc.URI)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDownload_ReportTypeIsSniffed(t *testing.T) {
	f := new(mockFetcher)
	desc := model.DocumentDescriptor{
		FundID: "lux", Source: model.SourceLuxSEOAM, Jurisdiction: model.JurisdictionLU,
		URI: "https://www.bourse.lu/download?id=42", DocumentType: model.DocReport,
		PublishedDate: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	f.On("Get", mock.Anything, "luxse_oam", desc.URI).Return(okResponse("%PDF-1.7\n...", "application/octet-stream"), nil)

	doc, err := NewDownloader(f, NewArena(t.TempDir())).Download(context.Background(), desc)
	require.NoError(t, err)
	assert.Equal(t, model.DocPDF, doc.DocumentType)
	assert.Equal(t, ".pdf", filepath.Ext(doc.Path))
}

func TestDownload_InlinePayload(t *testing.T) {
	f := new(mockFetcher)
	desc := model.DocumentDescriptor{
		FundID: "vanguard-mm", Source: model.SourceStatic, URI: "registry://vanguard-mm/static_holdings",
		DocumentType: model.DocStatic, Inline: []byte(`[{"name":"T-Bill","weight_pct":100}]`),
	}

	doc, err := NewDownloader(f, NewArena(t.TempDir())).Download(context.Background(), desc)
	require.NoError(t, err)
	assert.Equal(t, model.DocStatic, doc.DocumentType)
	assert.Contains(t, doc.Path, "/undated/")
	f.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestArena_ReadAndMissing(t *testing.T) {
	arena := NewArena(t.TempDir())
	doc, created, err := arena.Put(model.RawDocument{
		URI: "https://x/a.csv", FundID: "f", Source: model.SourceStatic, DocumentType: model.DocCSV,
	}, []byte("name,value\nA,1\n"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "unknown/static/fund_id=f/undated/"+doc.Hash+"/document.csv", doc.Path)

	data, err := arena.Read(doc)
	require.NoError(t, err)
	assert.Equal(t, "name,value\nA,1\n", string(data))

	_, err = arena.Get("deadbeef")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, created, err = arena.Put(model.RawDocument{URI: "https://x/b.csv", DocumentType: model.DocCSV}, []byte("name,value\nA,1\n"))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		want        model.DocumentType
	}{
		{"pdf", "%PDF-1.4", "", model.DocPDF},
		{"xlsx", "PK\x03\x04rest", "", model.DocXLSX},
		{"nport", nportBody, "text/xml", model.DocNPORTXML},
		{"html", "<!DOCTYPE html><html></html>", "", model.DocHTML},
		{"bare table", "  <table><tr><td>x</td></tr></table>", "", model.DocHTML},
		{"csv by header", "Name;ISIN;Weight\nA;US0378331005;1", "", model.DocCSV},
		{"csv by content type", "x", "text/csv; charset=utf-8", model.DocCSV},
		{"text", "Holdings report\nnothing tabular", "text/plain", model.DocText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sniff([]byte(tt.body), tt.contentType))
		})
	}
}
