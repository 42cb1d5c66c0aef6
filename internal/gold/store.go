// Package gold is the append-only snapshot store. Every write allocates a
// new version for its (fund, as-of) pair; nothing is overwritten. Silver
// extracts and QA reports live in sibling trees under the same data dir.
package gold

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/model"
)

const (
	holdingsFile = "holdings.csv"
	manifestFile = "manifest.json"
	reportFile   = "qa_report.json"
	dateLayout   = "2006-01-02"
)

// ErrNotFound is returned by Read when the requested snapshot does not exist.
var ErrNotFound = errors.New("gold: snapshot not found")

// Manifest describes one stored snapshot without its rows.
type Manifest struct {
	FundID       string           `json:"fund_id"`
	AsOf         string           `json:"as_of"`
	Version      int              `json:"version"`
	Source       model.SourceKind `json:"source"`
	Status       model.QAStatus   `json:"status"`
	FailedChecks []string         `json:"failed_checks,omitempty"`
	RowCount     int              `json:"row_count"`
	WeightSum    float64          `json:"weight_sum"`
	Holdings     string           `json:"holdings"`
	QAReport     string           `json:"qa_report"`
	Lineage      model.Lineage    `json:"lineage"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Store keeps gold snapshots under <dir>/gold, QA reports under <dir>/qa,
// and silver extracts under <dir>/silver.
type Store struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a store rooted at the data directory.
func New(dir string) *Store {
	return &Store{dir: dir, now: time.Now, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) lock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func partition(fundID string, asOf time.Time) string {
	return filepath.Join("fund_id="+fundID, "as_of="+asOf.Format(dateLayout))
}

// Write persists snap under the next free version for its (fund, as-of)
// and returns that version. snap.Version, snap.Report.Version and
// snap.CreatedAt are set. Failing snapshots are stored too; only passing
// ones are ever returned by ReadLatest.
func (s *Store) Write(snap *model.Snapshot) (int, error) {
	if snap.FundID == "" || snap.AsOf.IsZero() {
		return 0, eris.New("gold: snapshot needs a fund id and as-of date")
	}
	part := partition(snap.FundID, snap.AsOf)
	l := s.lock(part)
	l.Lock()
	defer l.Unlock()

	version, dir, err := s.allocate(filepath.Join(s.dir, "gold", part))
	if err != nil {
		return 0, err
	}
	snap.Version = version
	snap.Report.Version = version
	snap.CreatedAt = s.now().UTC()

	var buf bytes.Buffer
	records := make([][]string, 0, len(snap.Rows))
	for _, r := range snap.Rows {
		records = append(records, goldRecord(r))
	}
	if err := writeCSV(&buf, goldHeader, records); err != nil {
		return 0, err
	}
	if err := writeFileAtomic(filepath.Join(dir, holdingsFile), buf.Bytes()); err != nil {
		return 0, eris.Wrap(err, "gold: write holdings")
	}

	versionPart := filepath.Join(part, "version="+strconv.Itoa(version))
	reportRel := filepath.ToSlash(filepath.Join("qa", versionPart, reportFile))
	if err := writeJSON(filepath.Join(s.dir, filepath.FromSlash(reportRel)), snap.Report); err != nil {
		return 0, eris.Wrap(err, "gold: write qa report")
	}

	m := Manifest{
		FundID:       snap.FundID,
		AsOf:         snap.AsOf.Format(dateLayout),
		Version:      version,
		Source:       snap.Source,
		Status:       snap.Report.Status,
		FailedChecks: snap.Report.FailedChecks(),
		RowCount:     len(snap.Rows),
		WeightSum:    snap.Report.WeightSum,
		Holdings:     filepath.ToSlash(filepath.Join("gold", versionPart, holdingsFile)),
		QAReport:     reportRel,
		Lineage:      snap.Lineage,
		CreatedAt:    snap.CreatedAt,
	}
	// The manifest goes last: a version directory without one is an
	// interrupted write and is ignored by readers.
	if err := writeJSON(filepath.Join(dir, manifestFile), m); err != nil {
		return 0, eris.Wrap(err, "gold: write manifest")
	}

	zap.L().Info("gold snapshot written",
		zap.String("component", "gold"),
		zap.String("fund_id", snap.FundID),
		zap.String("as_of", m.AsOf),
		zap.Int("version", version),
		zap.String("status", string(m.Status)),
		zap.Int("rows", m.RowCount),
	)
	return version, nil
}

// allocate claims the next version directory. The in-process lock orders
// writers of one partition; exclusive Mkdir guards against other processes.
func (s *Store) allocate(partDir string) (int, string, error) {
	if err := os.MkdirAll(partDir, 0o755); err != nil {
		return 0, "", eris.Wrap(err, "gold: create partition")
	}
	versions, err := listVersions(partDir)
	if err != nil {
		return 0, "", err
	}
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}
	for {
		dir := filepath.Join(partDir, "version="+strconv.Itoa(next))
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return next, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return 0, "", eris.Wrap(err, "gold: create version dir")
		}
		next++
	}
}

// listVersions returns the version numbers present in a partition, ascending.
func listVersions(partDir string) ([]int, error) {
	entries, err := os.ReadDir(partDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "gold: list versions")
	}
	var out []int
	for _, e := range entries {
		if v, ok := strings.CutPrefix(e.Name(), "version="); ok && e.IsDir() {
			if n, err := strconv.Atoi(v); err == nil {
				out = append(out, n)
			}
		}
	}
	sort.Ints(out)
	return out, nil
}

// List returns the manifests of every complete snapshot of a fund, oldest
// (as-of, version) first.
func (s *Store) List(fundID string) ([]Manifest, error) {
	fundDir := filepath.Join(s.dir, "gold", "fund_id="+fundID)
	parts, err := os.ReadDir(fundDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "gold: list partitions")
	}

	var out []Manifest
	for _, p := range parts {
		if !p.IsDir() || !strings.HasPrefix(p.Name(), "as_of=") {
			continue
		}
		partDir := filepath.Join(fundDir, p.Name())
		versions, err := listVersions(partDir)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			var m Manifest
			err := readJSON(filepath.Join(partDir, "version="+strconv.Itoa(v), manifestFile), &m)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AsOf != out[j].AsOf {
			return out[i].AsOf < out[j].AsOf
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// Latest returns the manifest of the passing snapshot with the greatest
// (as-of, version), or nil when the fund has none.
func (s *Store) Latest(fundID string) (*Manifest, error) {
	all, err := s.List(fundID)
	if err != nil {
		return nil, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Status == model.QAStatusPass {
			return &all[i], nil
		}
	}
	return nil, nil
}

// ReadLatest loads the most recent passing snapshot, or returns nil when
// the fund has none.
func (s *Store) ReadLatest(fundID string) (*model.Snapshot, error) {
	m, err := s.Latest(fundID)
	if err != nil || m == nil {
		return nil, err
	}
	return s.load(*m)
}

// Read loads one exact snapshot.
func (s *Store) Read(fundID string, asOf time.Time, version int) (*model.Snapshot, error) {
	var m Manifest
	path := filepath.Join(s.dir, "gold", partition(fundID, asOf), "version="+strconv.Itoa(version), manifestFile)
	if err := readJSON(path, &m); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.load(m)
}

func (s *Store) load(m Manifest) (*model.Snapshot, error) {
	asOf, err := time.Parse(dateLayout, m.AsOf)
	if err != nil {
		return nil, eris.Wrapf(err, "gold: manifest as_of %q", m.AsOf)
	}
	f, err := os.Open(filepath.Join(s.dir, filepath.FromSlash(m.Holdings)))
	if err != nil {
		return nil, eris.Wrapf(err, "gold: open holdings for %s v%d", m.FundID, m.Version)
	}
	defer f.Close() //nolint:errcheck

	rows, err := readGoldCSV(f)
	if err != nil {
		return nil, err
	}
	snap := &model.Snapshot{
		FundID:    m.FundID,
		AsOf:      asOf,
		Version:   m.Version,
		Source:    m.Source,
		Rows:      rows,
		Lineage:   m.Lineage,
		CreatedAt: m.CreatedAt,
	}
	if err := readJSON(filepath.Join(s.dir, filepath.FromSlash(m.QAReport)), &snap.Report); err != nil {
		return nil, eris.Wrapf(err, "gold: qa report for %s v%d", m.FundID, m.Version)
	}
	return snap, nil
}

// WriteSilver stores the parsed rows of one document and returns the path
// relative to the data dir. Silver files are keyed by document hash, so
// re-parsing the same document replaces its extract.
func (s *Store) WriteSilver(fundID string, asOf time.Time, hash string, rows []model.SilverRow) (string, error) {
	rel := filepath.Join("silver", partition(fundID, asOf), hash+".csv")
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, silverRecord(r))
	}
	var buf bytes.Buffer
	if err := writeCSV(&buf, silverHeader, records); err != nil {
		return "", err
	}
	if err := writeFileAtomic(filepath.Join(s.dir, rel), buf.Bytes()); err != nil {
		return "", eris.Wrap(err, "gold: write silver")
	}
	return filepath.ToSlash(rel), nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "gold: decode %s", filepath.Base(path))
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

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
