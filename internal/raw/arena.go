// Package raw stores fetched documents content-addressed by SHA-256 and
// downloads discovery candidates into that store.
package raw

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/holdings-cli/internal/model"
)

const (
	indexDir    = "_index"
	urlsDir     = "_urls"
	failuresDir = "_failures"
	metaFile    = "metadata.json"
)

// ErrNotFound is returned when no document is stored under a hash.
var ErrNotFound = errors.New("raw: document not found")

type hashRef struct {
	Hash string `json:"hash"`
	Path string `json:"path"`
}

type urlRef struct {
	URI  string `json:"uri"`
	Hash string `json:"hash"`
}

// Arena is an append-only, content-addressed document store. Payloads live
// under <root>/<jurisdiction>/<source>/fund_id=<id>/<date>/<hash>/ next to a
// metadata.json record; _index maps hashes to those directories and _urls
// maps source URIs to hashes.
type Arena struct {
	root string
	mu   sync.Mutex
}

// NewArena returns an arena rooted at dir.
func NewArena(dir string) *Arena {
	return &Arena{root: dir}
}

// Root returns the arena directory.
func (a *Arena) Root() string { return a.root }

// Hash returns the hex SHA-256 of body.
func Hash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Put stores body under its content hash with doc as metadata. Hash, Size
// and Path are filled in. Storing a hash that already exists writes nothing
// but the URI index entry; the returned record points at the stored payload
// while keeping the caller's URI, fund and dates.
func (a *Arena) Put(doc model.RawDocument, body []byte) (model.RawDocument, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc.Hash = Hash(body)
	doc.Size = int64(len(body))

	if existing, err := a.get(doc.Hash); err == nil {
		if err := a.indexURI(doc.URI, doc.Hash); err != nil {
			return model.RawDocument{}, false, err
		}
		doc.Path = existing.Path
		if doc.DocumentType == "" {
			doc.DocumentType = existing.DocumentType
		}
		return doc, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return model.RawDocument{}, false, err
	}

	date := "undated"
	if !doc.DocumentDate.IsZero() {
		date = doc.DocumentDate.Format("2006-01-02")
	}
	rel := filepath.Join(
		safe(string(doc.Jurisdiction)), safe(string(doc.Source)),
		"fund_id="+safe(doc.FundID), date, doc.Hash,
	)
	dir := filepath.Join(a.root, rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.RawDocument{}, false, eris.Wrap(err, "raw: create document dir")
	}

	doc.Path = filepath.ToSlash(filepath.Join(rel, "document."+doc.DocumentType.Extension()))
	if err := writeFileAtomic(filepath.Join(a.root, doc.Path), body); err != nil {
		return model.RawDocument{}, false, eris.Wrap(err, "raw: write payload")
	}
	if err := writeJSON(filepath.Join(dir, metaFile), doc); err != nil {
		return model.RawDocument{}, false, eris.Wrap(err, "raw: write metadata")
	}
	if err := writeJSON(a.indexPath(indexDir, doc.Hash), hashRef{Hash: doc.Hash, Path: filepath.ToSlash(rel)}); err != nil {
		return model.RawDocument{}, false, eris.Wrap(err, "raw: write hash index")
	}
	if err := a.indexURI(doc.URI, doc.Hash); err != nil {
		return model.RawDocument{}, false, err
	}
	return doc, true, nil
}

// Get returns the metadata stored for hash.
func (a *Arena) Get(hash string) (model.RawDocument, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.get(hash)
}

func (a *Arena) get(hash string) (model.RawDocument, error) {
	var ref hashRef
	if err := readJSON(a.indexPath(indexDir, hash), &ref); err != nil {
		return model.RawDocument{}, err
	}
	var doc model.RawDocument
	if err := readJSON(filepath.Join(a.root, filepath.FromSlash(ref.Path), metaFile), &doc); err != nil {
		return model.RawDocument{}, eris.Wrapf(err, "raw: metadata for %s", hash)
	}
	return doc, nil
}

// Read returns the payload bytes of a stored document.
func (a *Arena) Read(doc model.RawDocument) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(a.root, filepath.FromSlash(doc.Path)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "raw: read %s", doc.Hash)
	}
	return data, nil
}

// LookupURI returns the document previously stored for uri.
func (a *Arena) LookupURI(uri string) (model.RawDocument, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var ref urlRef
	if err := readJSON(a.indexPath(urlsDir, Hash([]byte(uri))), &ref); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.RawDocument{}, false, nil
		}
		return model.RawDocument{}, false, err
	}
	doc, err := a.get(ref.Hash)
	if errors.Is(err, ErrNotFound) {
		return model.RawDocument{}, false, nil
	}
	if err != nil {
		return model.RawDocument{}, false, err
	}
	return doc, true, nil
}

// RecordFailure persists the last failed fetch of a URI. A later failure of
// the same URI replaces the record; stored documents are never touched.
func (a *Arena) RecordFailure(f model.FetchFailure) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := writeJSON(a.indexPath(failuresDir, Hash([]byte(f.URI))), f); err != nil {
		return eris.Wrap(err, "raw: write failure record")
	}
	return nil
}

// Failure returns the recorded fetch failure for uri, if any.
func (a *Arena) Failure(uri string) (model.FetchFailure, bool, error) {
	var f model.FetchFailure
	if err := readJSON(a.indexPath(failuresDir, Hash([]byte(uri))), &f); err != nil {
		if errors.Is(err, ErrNotFound) {
			return f, false, nil
		}
		return f, false, err
	}
	return f, true, nil
}

func (a *Arena) indexURI(uri, hash string) error {
	if uri == "" {
		return nil
	}
	if err := writeJSON(a.indexPath(urlsDir, Hash([]byte(uri))), urlRef{URI: uri, Hash: hash}); err != nil {
		return eris.Wrap(err, "raw: write url index")
	}
	return nil
}

func (a *Arena) indexPath(kind, key string) string {
	return filepath.Join(a.root, kind, key+".json")
}

func safe(s string) string {
	if s == "" {
		return "unknown"
	}
	s = filepath.Base(filepath.Clean("/" + s))
	if s == "/" || s == "." {
		return "unknown"
	}
	return s
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return eris.Wrapf(err, "raw: read %s", filepath.Base(path))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "raw: decode %s", filepath.Base(path))
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode json")
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes via a temp file and rename so readers never see a
// partial file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "create dir")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return eris.Wrap(err, "create temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return eris.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return eris.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return eris.Wrap(err, "rename temp file")
	}
	return nil
}
