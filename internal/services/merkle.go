// Package services - MerkleService provides Merkle tree operations
// for tamper-evident settlement history.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aawaaz/citizen-report-server/internal/database"
	"github.com/aawaaz/citizen-report-server/internal/models"
	"go.uber.org/zap"
)

// MerkleService manages the Merkle tree over the settlement ledger
type MerkleService struct {
	mu            sync.RWMutex
	leaves        []string
	leafIDs       []string
	layers        [][]string
	root          string
	lastBuildTime time.Time
	logger        *zap.SugaredLogger
}

// NewMerkleService creates a new Merkle service
func NewMerkleService(logger *zap.SugaredLogger) *MerkleService {
	return &MerkleService{
		leaves: make([]string, 0),
		layers: make([][]string, 0),
		logger: logger,
	}
}

// LeafHash is the hash of one ledger entry. Every settled field takes part,
// so editing a row in place changes the root.
func LeafHash(t models.SettlementTransaction) string {
	related := ""
	if t.RelatedReportID != nil {
		related = *t.RelatedReportID
	}
	fields := []string{
		t.ID,
		t.UserID,
		strconv.FormatInt(t.Amount, 10),
		string(t.Type),
		string(t.Source),
		related,
		string(t.Status),
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}

// BuildFromTransactions rebuilds the tree from ledger rows and remembers
// which row each leaf came from.
func (m *MerkleService) BuildFromTransactions(txs []models.SettlementTransaction) {
	hashes := make([]string, len(txs))
	ids := make([]string, len(txs))
	for i, t := range txs {
		hashes[i] = LeafHash(t)
		ids[i] = t.ID
	}
	m.build(hashes, ids)
}

// BuildFromHashes rebuilds the tree from a list of leaf hashes
func (m *MerkleService) BuildFromHashes(hashes []string) {
	m.build(hashes, nil)
}

func (m *MerkleService) build(hashes, ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.leaves = hashes
	m.leafIDs = ids
	m.buildTree()
	m.lastBuildTime = time.Now()

	m.logger.Infow("Merkle tree rebuilt",
		"leaves", len(m.leaves),
		"root", m.root,
	)
}

// GetRoot returns the current Merkle root
func (m *MerkleService) GetRoot() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root
}

// GetLeafCount returns the number of leaves
func (m *MerkleService) GetLeafCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.leaves)
}

// snapshot reads the published root, leaf row IDs and build time under one
// lock so a concurrent rebuild cannot mix two builds.
func (m *MerkleService) snapshot() (string, []string, int, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root, append([]string(nil), m.leafIDs...), len(m.leaves), m.lastBuildTime
}

// GetLastBuildTime returns when the tree was last rebuilt
func (m *MerkleService) GetLastBuildTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastBuildTime
}

// GetProof generates a Merkle proof for the given leaf index
func (m *MerkleService) GetProof(index int) (*models.MerkleProof, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if index < 0 || index >= len(m.leaves) {
		return nil, validationf("index %d out of range (0-%d)", index, len(m.leaves)-1)
	}

	proof := &models.MerkleProof{
		LeafHash: m.leaves[index],
		Root:     m.root,
		Index:    index,
		Proof:    make([]models.ProofStep, 0),
	}

	currentIndex := index
	for i := 0; i < len(m.layers)-1; i++ {
		layer := m.layers[i]
		isRight := currentIndex%2 == 1
		siblingIndex := currentIndex + 1
		if isRight {
			siblingIndex = currentIndex - 1
		}
		// the last node of an odd layer is paired with itself
		if siblingIndex >= len(layer) {
			siblingIndex = currentIndex
		}

		position := "right"
		if isRight {
			position = "left"
		}
		proof.Proof = append(proof.Proof, models.ProofStep{
			Hash:     layer[siblingIndex],
			Position: position,
		})

		currentIndex /= 2
	}

	proof.Verified = VerifyProof(proof.LeafHash, proof.Proof, proof.Root)
	return proof, nil
}

// VerifyProof folds a proof path from leaf up and compares it with root.
func VerifyProof(leaf string, steps []models.ProofStep, root string) bool {
	if leaf == "" || root == "" {
		return false
	}
	current := leaf
	for _, step := range steps {
		switch step.Position {
		case "left":
			current = hashPair(step.Hash, current)
		case "right":
			current = hashPair(current, step.Hash)
		default:
			return false
		}
	}
	return current == root
}

// buildTree constructs the Merkle tree from leaves (internal, must hold write lock)
func (m *MerkleService) buildTree() {
	if len(m.leaves) == 0 {
		m.root = ""
		m.layers = nil
		return
	}

	currentLayer := make([]string, len(m.leaves))
	copy(currentLayer, m.leaves)
	m.layers = [][]string{currentLayer}

	for len(currentLayer) > 1 {
		nextLayer := make([]string, 0, (len(currentLayer)+1)/2)
		for i := 0; i < len(currentLayer); i += 2 {
			left := currentLayer[i]
			right := left
			if i+1 < len(currentLayer) {
				right = currentLayer[i+1]
			}
			nextLayer = append(nextLayer, hashPair(left, right))
		}
		m.layers = append(m.layers, nextLayer)
		currentLayer = nextLayer
	}

	m.root = currentLayer[0]
}

// hashPair combines and hashes two nodes
func hashPair(left, right string) string {
	h := sha256.New()
	h.Write([]byte(left + right))
	return hex.EncodeToString(h.Sum(nil))
}

// LedgerCheck compares the published root with one recomputed from storage.
type LedgerCheck struct {
	PublishedRoot string    `json:"publishedRoot"`
	CurrentRoot   string    `json:"currentRoot"`
	PublishedSize int       `json:"publishedSize"`
	CurrentSize   int       `json:"currentSize"`
	Consistent    bool      `json:"consistent"`
	BuiltAt       time.Time `json:"builtAt"`
}

// IntegrityWorker periodically rebuilds the Merkle tree from the ledger
type IntegrityWorker struct {
	merkleSvc *MerkleService
	db        *database.DB
	logger    *zap.SugaredLogger
}

// NewIntegrityWorker creates a new background integrity worker
func NewIntegrityWorker(ms *MerkleService, db *database.DB, logger *zap.SugaredLogger) *IntegrityWorker {
	return &IntegrityWorker{merkleSvc: ms, db: db, logger: logger}
}

// Start begins the periodic Merkle tree rebuild loop
func (w *IntegrityWorker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial build
	if err := w.Rebuild(ctx); err != nil {
		w.logger.Errorw("Merkle tree rebuild failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Integrity worker stopped")
			return
		case <-ticker.C:
			if err := w.Rebuild(ctx); err != nil {
				w.logger.Errorw("Merkle tree rebuild failed", "error", err)
			}
		}
	}
}

// Rebuild publishes a new root over the whole ledger.
func (w *IntegrityWorker) Rebuild(ctx context.Context) error {
	w.logger.Debug("Rebuilding Merkle tree...")

	txs, err := w.db.AllTransactions(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	w.merkleSvc.BuildFromTransactions(txs)
	return nil
}

// Check recomputes the root from storage without publishing it. The
// published rows are looked up by ID and rehashed in their published order,
// so rows committed after the build never land inside the published set,
// whatever their timestamps. An edited or missing published row makes the
// roots differ.
func (w *IntegrityWorker) Check(ctx context.Context) (*LedgerCheck, error) {
	txs, err := w.db.AllTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	root, published, size, builtAt := w.merkleSvc.snapshot()
	check := &LedgerCheck{
		PublishedRoot: root,
		PublishedSize: size,
		CurrentSize:   len(txs),
		BuiltAt:       builtAt,
	}

	byID := make(map[string]models.SettlementTransaction, len(txs))
	for _, t := range txs {
		byID[t.ID] = t
	}
	prefix := make([]models.SettlementTransaction, 0, len(published))
	for _, id := range published {
		t, ok := byID[id]
		if !ok {
			break
		}
		prefix = append(prefix, t)
	}

	if len(prefix) == check.PublishedSize {
		shadow := NewMerkleService(zap.NewNop().Sugar())
		shadow.BuildFromTransactions(prefix)
		check.Consistent = shadow.GetRoot() == check.PublishedRoot
	}

	full := NewMerkleService(zap.NewNop().Sugar())
	full.BuildFromTransactions(txs)
	check.CurrentRoot = full.GetRoot()

	if !check.Consistent {
		w.logger.Warnw("Ledger diverged from published root",
			"published_root", check.PublishedRoot,
			"current_root", check.CurrentRoot,
		)
	}
	return check, nil
}
