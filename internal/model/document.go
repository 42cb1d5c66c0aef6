package model

import "time"

// DocumentType identifies the shape of a source document and selects its parser.
type DocumentType string

const (
	DocNPORTXML DocumentType = "nport_xml"
	DocPDF      DocumentType = "pdf"
	DocHTML     DocumentType = "html"
	DocXLSX     DocumentType = "xlsx"
	DocCSV      DocumentType = "csv"
	DocText     DocumentType = "text"
	DocStatic   DocumentType = "static"
	// DocReport is a periodic report whose concrete format is only known after download.
	DocReport DocumentType = "report"
)

// Extension returns the file extension used when storing the raw payload.
func (d DocumentType) Extension() string {
	switch d {
	case DocNPORTXML:
		return "xml"
	case DocPDF:
		return "pdf"
	case DocHTML:
		return "html"
	case DocXLSX:
		return "xlsx"
	case DocCSV:
		return "csv"
	case DocStatic:
		return "json"
	default:
		return "bin"
	}
}

// DocumentDescriptor is a discovered candidate document. It never carries the body
// of a remote document; Inline is only set for registry-embedded payloads.
type DocumentDescriptor struct {
	FundID        string       `json:"fund_id"`
	Source        SourceKind   `json:"source"`
	Jurisdiction  Jurisdiction `json:"jurisdiction"`
	URI           string       `json:"uri"`
	PublishedDate time.Time    `json:"published_date"`
	DocumentType  DocumentType `json:"document_type"`
	ReportType    string       `json:"report_type,omitempty"`
	Title         string       `json:"title,omitempty"`
	Accession     string       `json:"accession,omitempty"`
	ContentHash   string       `json:"content_hash,omitempty"`
	Inline        []byte       `json:"-"`
}

// RawDocument is the immutable, content-addressed record of a fetched document.
type RawDocument struct {
	Hash         string       `json:"hash"`
	URI          string       `json:"uri"`
	FundID       string       `json:"fund_id"`
	Jurisdiction Jurisdiction `json:"jurisdiction"`
	Source       SourceKind   `json:"source"`
	FetchedAt    time.Time    `json:"fetched_at"`
	DocumentDate time.Time    `json:"document_date"`
	DocumentType DocumentType `json:"document_type"`
	ContentType  string       `json:"content_type,omitempty"`
	Size         int64        `json:"size"`
	Accession    string       `json:"accession,omitempty"`
	// Path is the payload location relative to the arena root.
	Path string `json:"path"`
}

// FetchFailure is persisted when a document could not be fetched after all retries.
type FetchFailure struct {
	URI        string     `json:"uri"`
	FundID     string     `json:"fund_id"`
	Source     SourceKind `json:"source"`
	Attempts   int        `json:"attempts"`
	StatusCode int        `json:"status_code,omitempty"`
	Error      string     `json:"error"`
	FailedAt   time.Time  `json:"failed_at"`
}
