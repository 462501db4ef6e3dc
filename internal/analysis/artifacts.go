package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// ArtifactSchemaVersion is bumped whenever the feature schema or the artifact
// layout changes. Artifacts with another version are refused on load.
const ArtifactSchemaVersion = 1

const (
	scalerFile      = "scaler.json"
	forestFile      = "isolation_forest.json"
	currentPointer  = "CURRENT"
	tmpSuffix       = ".tmp"
	defaultKeepRuns = 3

	// a reader racing several publishes may see its run pruned more than once
	maxLoadAttempts = 5
)

var (
	ErrNoArtifacts    = errors.New("no published model artifacts")
	ErrSchemaMismatch = errors.New("model artifact schema mismatch")
)

// ArtifactRef identifies one published model pair
type ArtifactRef struct {
	ModelID string `json:"model_id"`
	Dir     string `json:"dir"`
}

// ArtifactInfo describes the files behind an ArtifactRef
type ArtifactInfo struct {
	ScalerSize     int64     `json:"scaler_file_size"`
	ScalerModified time.Time `json:"scaler_last_modified"`
	ForestSize     int64     `json:"model_file_size"`
	ForestModified time.Time `json:"model_last_modified"`
	SchemaVersion  int       `json:"schema_version"`
}

// ArtifactStore persists fitted models. Save must publish the scaler and the
// forest together so a reader never sees one without the other.
type ArtifactStore interface {
	Save(ctx context.Context, m *Model) (ArtifactRef, error)
	Current() (ArtifactRef, error)
	Load(ctx context.Context, ref ArtifactRef) (*Model, error)
	Stat(ref ArtifactRef) (ArtifactInfo, error)
}

// ArtifactHeader is written at the top of both artifact files
type ArtifactHeader struct {
	SchemaVersion int       `json:"schema_version"`
	Kind          string    `json:"kind"`
	ModelID       string    `json:"model_id"`
	FeatureNames  []string  `json:"feature_names"`
	CreatedAt     time.Time `json:"created_at"`
}

type scalerArtifact struct {
	ArtifactHeader
	Scaler *StandardScaler `json:"scaler"`
}

type forestArtifact struct {
	ArtifactHeader
	Forest *IsolationForest `json:"isolation_forest"`
}

// FileArtifactStore keeps one directory per model under dataDir and a CURRENT
// file naming the published one:
//
//	models/
//	  CURRENT                 -> "<model_id>"
//	  <model_id>/scaler.json
//	  <model_id>/isolation_forest.json
//
// A model directory is assembled under "<model_id>.tmp" and renamed into place
// before CURRENT is swapped, so both files always change together.
type FileArtifactStore struct {
	dataDir string
	keep    int

	publishMu sync.Mutex
}

// NewFileArtifactStore creates a store rooted at dataDir keeping the last
// keep model directories (3 when keep <= 0).
func NewFileArtifactStore(dataDir string, keep int) *FileArtifactStore {
	if keep <= 0 {
		keep = defaultKeepRuns
	}
	return &FileArtifactStore{dataDir: dataDir, keep: keep}
}

// Dir returns the models directory
func (s *FileArtifactStore) Dir() string {
	return s.dataDir
}

// Save writes both artifacts and publishes them atomically.
func (s *FileArtifactStore) Save(ctx context.Context, m *Model) (ArtifactRef, error) {
	if !m.Fitted() {
		return ArtifactRef{}, ErrModelNotFitted
	}
	if err := validModelID(m.ID); err != nil {
		return ArtifactRef{}, err
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return ArtifactRef{}, fmt.Errorf("failed to create models directory: %w", err)
	}

	finalDir := filepath.Join(s.dataDir, m.ID)
	tmpDir := finalDir + tmpSuffix
	if err := os.RemoveAll(tmpDir); err != nil {
		return ArtifactRef{}, fmt.Errorf("failed to clear staging directory: %w", err)
	}
	if err := os.Mkdir(tmpDir, 0755); err != nil {
		return ArtifactRef{}, fmt.Errorf("failed to create staging directory: %w", err)
	}

	header := ArtifactHeader{
		SchemaVersion: ArtifactSchemaVersion,
		ModelID:       m.ID,
		FeatureNames:  m.FeatureNames,
		CreatedAt:     m.CreatedAt,
	}

	sh := header
	sh.Kind = "scaler"
	if err := writeJSONFile(filepath.Join(tmpDir, scalerFile), scalerArtifact{ArtifactHeader: sh, Scaler: m.Scaler}); err != nil {
		os.RemoveAll(tmpDir)
		return ArtifactRef{}, err
	}

	if err := ctx.Err(); err != nil {
		os.RemoveAll(tmpDir)
		return ArtifactRef{}, err
	}

	fh := header
	fh.Kind = "isolation_forest"
	if err := writeJSONFile(filepath.Join(tmpDir, forestFile), forestArtifact{ArtifactHeader: fh, Forest: m.Forest}); err != nil {
		os.RemoveAll(tmpDir)
		return ArtifactRef{}, err
	}

	// publish, swap and prune as one step so a concurrent Save never prunes
	// a run that is about to become current
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if err := os.Rename(tmpDir, finalDir); err != nil {
		os.RemoveAll(tmpDir)
		return ArtifactRef{}, fmt.Errorf("failed to publish model directory: %w", err)
	}

	if err := s.swapPointer(m.ID); err != nil {
		return ArtifactRef{}, err
	}

	s.prune(m.ID)

	return ArtifactRef{ModelID: m.ID, Dir: finalDir}, nil
}

// Current resolves the CURRENT pointer.
func (s *FileArtifactStore) Current() (ArtifactRef, error) {
	raw, err := os.ReadFile(filepath.Join(s.dataDir, currentPointer))
	if err != nil {
		if os.IsNotExist(err) {
			return ArtifactRef{}, ErrNoArtifacts
		}
		return ArtifactRef{}, fmt.Errorf("failed to read model pointer: %w", err)
	}

	id := strings.TrimSpace(string(raw))
	if err := validModelID(id); err != nil {
		return ArtifactRef{}, err
	}
	return ArtifactRef{ModelID: id, Dir: filepath.Join(s.dataDir, id)}, nil
}

// Load reads both artifacts of ref and checks they belong together and match
// the current feature schema. When ref was pruned by a newer publish while
// being read, Load follows CURRENT to the newer run.
func (s *FileArtifactStore) Load(ctx context.Context, ref ArtifactRef) (*Model, error) {
	for attempt := 1; ; attempt++ {
		m, err := s.loadRef(ctx, ref)
		if err == nil || !errors.Is(err, os.ErrNotExist) || attempt == maxLoadAttempts {
			return m, err
		}

		next, curErr := s.Current()
		if curErr != nil || next.ModelID == ref.ModelID {
			return nil, err
		}
		slog.Debug("Model directory pruned during load, following CURRENT",
			"model_id", ref.ModelID, "current", next.ModelID)
		ref = next
	}
}

func (s *FileArtifactStore) loadRef(ctx context.Context, ref ArtifactRef) (*Model, error) {
	var sa scalerArtifact
	if err := readJSONFile(filepath.Join(ref.Dir, scalerFile), &sa); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var fa forestArtifact
	if err := readJSONFile(filepath.Join(ref.Dir, forestFile), &fa); err != nil {
		return nil, err
	}

	for _, h := range []ArtifactHeader{sa.ArtifactHeader, fa.ArtifactHeader} {
		if h.SchemaVersion != ArtifactSchemaVersion {
			return nil, fmt.Errorf("%w: %s has schema version %d, expected %d", ErrSchemaMismatch, h.Kind, h.SchemaVersion, ArtifactSchemaVersion)
		}
		if !slices.Equal(h.FeatureNames, FeatureNames) {
			return nil, fmt.Errorf("%w: %s was trained on features %v", ErrSchemaMismatch, h.Kind, h.FeatureNames)
		}
		if h.ModelID != ref.ModelID {
			return nil, fmt.Errorf("%w: %s belongs to model %q, expected %q", ErrSchemaMismatch, h.Kind, h.ModelID, ref.ModelID)
		}
	}

	m := &Model{
		ID:           ref.ModelID,
		CreatedAt:    sa.CreatedAt,
		FeatureNames: sa.FeatureNames,
		Scaler:       sa.Scaler,
		Forest:       fa.Forest,
	}
	if !m.Fitted() {
		return nil, fmt.Errorf("%w: artifacts of model %q are incomplete", ErrSchemaMismatch, ref.ModelID)
	}
	if m.Scaler.NFeatures != len(FeatureNames) || m.Forest.NFeatures != len(FeatureNames) {
		return nil, fmt.Errorf("%w: scaler has %d features, forest has %d", ErrSchemaMismatch, m.Scaler.NFeatures, m.Forest.NFeatures)
	}
	return m, nil
}

// Stat reports file sizes and modification times for ref.
func (s *FileArtifactStore) Stat(ref ArtifactRef) (ArtifactInfo, error) {
	si, err := os.Stat(filepath.Join(ref.Dir, scalerFile))
	if err != nil {
		return ArtifactInfo{}, fmt.Errorf("failed to stat scaler artifact: %w", err)
	}
	fi, err := os.Stat(filepath.Join(ref.Dir, forestFile))
	if err != nil {
		return ArtifactInfo{}, fmt.Errorf("failed to stat forest artifact: %w", err)
	}
	return ArtifactInfo{
		ScalerSize:     si.Size(),
		ScalerModified: si.ModTime().UTC(),
		ForestSize:     fi.Size(),
		ForestModified: fi.ModTime().UTC(),
		SchemaVersion:  ArtifactSchemaVersion,
	}, nil
}

func (s *FileArtifactStore) swapPointer(id string) error {
	tmp, err := os.CreateTemp(s.dataDir, "."+currentPointer+"-*")
	if err != nil {
		return fmt.Errorf("failed to create model pointer: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(id + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write model pointer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync model pointer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close model pointer: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(s.dataDir, currentPointer)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to swap model pointer: %w", err)
	}

	syncDir(s.dataDir)
	return nil
}

// prune removes model directories beyond the newest s.keep, never touching
// the one just published.
func (s *FileArtifactStore) prune(current string) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		slog.Warn("Failed to list model directories", "dir", s.dataDir, "error", err)
		return
	}

	// another process may have swapped CURRENT since this publish
	pointed := current
	if ref, err := s.Current(); err == nil {
		pointed = ref.ModelID
	}

	type run struct {
		name    string
		modTime time.Time
	}
	var runs []run
	for _, e := range entries {
		if !e.IsDir() || strings.HasSuffix(e.Name(), tmpSuffix) || e.Name() == current || e.Name() == pointed {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		runs = append(runs, run{name: e.Name(), modTime: info.ModTime()})
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].modTime.Equal(runs[j].modTime) {
			return runs[i].name > runs[j].name
		}
		return runs[i].modTime.After(runs[j].modTime)
	})

	for i := s.keep - 1; i < len(runs); i++ {
		if err := os.RemoveAll(filepath.Join(s.dataDir, runs[i].name)); err != nil {
			slog.Warn("Failed to prune model directory", "model_id", runs[i].name, "error", err)
		}
	}
}

func validModelID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasSuffix(id, tmpSuffix) {
		return fmt.Errorf("invalid model id %q", id)
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create artifact file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync artifact file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close artifact file: %w", err)
	}
	return nil
}

func readJSONFile(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open artifact file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("failed to decode artifact %s: %w", filepath.Base(path), err)
	}
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
