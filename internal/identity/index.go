package identity

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/coder/hnsw"
)

// Method selects how the index searches for the nearest row.
type Method string

const (
	// Exact scans every row.
	Exact Method = "exact"
	// HNSW asks an approximate graph for candidates and re-ranks them exactly.
	HNSW Method = "hnsw"
)

// ParseMethod validates a configured index method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case Exact, HNSW:
		return m, nil
	default:
		return "", fmt.Errorf("unknown index method %q", s)
	}
}

// HNSW graph parameters for 512-dim face embeddings.
const (
	hnswMaxNeighbors = 16
	hnswEfSearch     = 100
	hnswCandidates   = 10
)

const indexMetadataVersion = 1

// Metadata describes a fitted index and is persisted next to it.
type Metadata struct {
	Count       int       `json:"count"`
	Dim         int       `json:"dim"`
	Method      Method    `json:"method"`
	Fingerprint string    `json:"dataset_fingerprint,omitempty"`
	BuildTime   time.Time `json:"build_time"`
	Version     int       `json:"version"`
}

// Neighbor is the nearest fitted row for one query.
type Neighbor struct {
	Row      int
	Code     int
	Distance float64
}

// Index is a 1-nearest-neighbour classifier over embeddings.
type Index struct {
	method Method
	dim    int
	rows   [][]float32
	codes  []int
	graph  *hnsw.Graph[int64]
	meta   Metadata
}

// NewIndex creates an unfitted index for dim-dimensional embeddings.
func NewIndex(method Method, dim int) (*Index, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	return &Index{method: method, dim: dim}, nil
}

// Fitted reports whether Fit or LoadIndex populated the index.
func (ix *Index) Fitted() bool {
	return len(ix.rows) > 0
}

// Len returns the number of fitted rows.
func (ix *Index) Len() int {
	return len(ix.rows)
}

// Metadata returns the description of the fitted index.
func (ix *Index) Metadata() Metadata {
	return ix.meta
}

// SetFingerprint records the fingerprint of the dataset listing the rows were taken
// from, so a matcher can later detect a dataset that changed since fitting.
func (ix *Index) SetFingerprint(fp uint64) {
	ix.meta.Fingerprint = formatFingerprint(fp)
}

func formatFingerprint(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}

func (ix *Index) checkVectors(embeddings [][]float32) error {
	if len(embeddings) == 0 {
		return fmt.Errorf("%w: no embeddings", ErrContractViolation)
	}
	for i, e := range embeddings {
		if len(e) != ix.dim {
			return fmt.Errorf("%w: embedding %d has %d dimensions, want %d", ErrContractViolation, i, len(e), ix.dim)
		}
	}
	return nil
}

// Fit replaces the index contents with one row per embedding, labeled with the code
// at the same position.
func (ix *Index) Fit(embeddings [][]float32, codes []int) error {
	if err := ix.checkVectors(embeddings); err != nil {
		return err
	}
	if len(embeddings) != len(codes) {
		return fmt.Errorf("%w: %d embeddings but %d codes", ErrContractViolation, len(embeddings), len(codes))
	}

	ix.rows = make([][]float32, len(embeddings))
	for i, e := range embeddings {
		ix.rows[i] = append([]float32(nil), e...)
	}
	ix.codes = append([]int(nil), codes...)

	ix.graph = nil
	if ix.method == HNSW {
		ix.graph = ix.buildGraph()
	}

	fp := ix.meta.Fingerprint
	ix.meta = Metadata{
		Count:       len(ix.rows),
		Dim:         ix.dim,
		Method:      ix.method,
		Fingerprint: fp,
		BuildTime:   time.Now().UTC(),
		Version:     indexMetadataVersion,
	}
	return nil
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.EfSearch = hnswEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

func (ix *Index) buildGraph() *hnsw.Graph[int64] {
	g := newGraph()
	for i, row := range ix.rows {
		g.Add(hnsw.MakeNode(int64(i), row))
	}
	return g
}

// Query returns the nearest fitted row for every embedding, in input order.
// Equidistant rows resolve to the lowest row number.
func (ix *Index) Query(embeddings [][]float32) ([]Neighbor, error) {
	if !ix.Fitted() {
		return nil, fmt.Errorf("%w: index is not fitted", ErrContractViolation)
	}
	if err := ix.checkVectors(embeddings); err != nil {
		return nil, err
	}

	out := make([]Neighbor, len(embeddings))
	for i, q := range embeddings {
		out[i] = ix.nearest(q)
	}
	return out, nil
}

func (ix *Index) nearest(q []float32) Neighbor {
	if ix.graph != nil {
		k := min(hnswCandidates, len(ix.rows))
		candidates := ix.graph.Search(q, k)
		if len(candidates) > 0 {
			rows := make([]int, 0, len(candidates))
			for _, c := range candidates {
				if c.Key >= 0 && int(c.Key) < len(ix.rows) {
					rows = append(rows, int(c.Key))
				}
			}
			if len(rows) > 0 {
				return ix.best(q, rows)
			}
		}
	}
	return ix.best(q, nil)
}

// best re-ranks the given rows, or every row when rows is nil.
func (ix *Index) best(q []float32, rows []int) Neighbor {
	n := Neighbor{Row: -1}
	consider := func(row int) {
		d := EuclideanDistance(q, ix.rows[row])
		if n.Row < 0 || d < n.Distance || (d == n.Distance && row < n.Row) {
			n = Neighbor{Row: row, Code: ix.codes[row], Distance: d}
		}
	}
	if rows == nil {
		for row := range ix.rows {
			consider(row)
		}
	} else {
		for _, row := range rows {
			consider(row)
		}
	}
	return n
}

type savedRows struct {
	Rows  [][]float32
	Codes []int
}

// Save writes the index as up to three files: the HNSW graph at path (hnsw method
// only), the fitted rows at path.rows and the metadata at path.meta.
func (ix *Index) Save(path string) error {
	if !ix.Fitted() {
		return fmt.Errorf("%w: cannot save an unfitted index", ErrContractViolation)
	}

	if ix.graph != nil {
		if err := exportGraph(ix.graph, path); err != nil {
			return err
		}
	} else if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale graph %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(savedRows{Rows: ix.rows, Codes: ix.codes}); err != nil {
		return fmt.Errorf("failed to encode index rows: %w", err)
	}
	if err := os.WriteFile(path+".rows", buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write index rows: %w", err)
	}

	metaData, err := json.MarshalIndent(ix.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0o600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

func exportGraph(g *hnsw.Graph[int64], path string) error {
	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := g.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW index file: %w", err)
	}
	return nil
}

// LoadMetadata reads the metadata written next to an index.
func LoadMetadata(path string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return meta, nil
}

// LoadIndex restores an index written by Save.
func LoadIndex(path string) (*Index, error) {
	meta, err := LoadMetadata(path)
	if err != nil {
		return nil, err
	}
	ix, err := NewIndex(meta.Method, meta.Dim)
	if err != nil {
		return nil, fmt.Errorf("invalid index metadata: %w", err)
	}

	data, err := os.ReadFile(path + ".rows") //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to read index rows: %w", err)
	}
	var saved savedRows
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&saved); err != nil {
		return nil, fmt.Errorf("failed to decode index rows: %w", err)
	}
	if len(saved.Rows) != meta.Count || len(saved.Codes) != meta.Count {
		return nil, fmt.Errorf("%w: metadata lists %d rows, found %d", ErrContractViolation, meta.Count, len(saved.Rows))
	}
	ix.rows = saved.Rows
	ix.codes = saved.Codes
	ix.meta = meta

	if meta.Method == HNSW {
		g, err := hnsw.LoadSavedGraph[int64](path)
		if err != nil {
			return nil, fmt.Errorf("failed to load HNSW index: %w", err)
		}
		g.Distance = hnsw.EuclideanDistance
		ix.graph = g.Graph
	}
	return ix, nil
}
