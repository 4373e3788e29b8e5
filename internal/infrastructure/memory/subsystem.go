// Package memory implements the optional §4.N MemorySubsystem: three
// capacity-bounded stores (Working/Episodic/Semantic) layered over the
// domain/memory VectorStore/EmbeddingProvider primitives.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
	domainmemory "github.com/ngoclaw/goosecore/internal/domain/memory"
)

// factIndicators are the keyword heuristics §4.N uses to decide an
// assistant/user exchange is worth promoting to the Semantic tier on turn
// exit.
var factIndicators = []string{
	"prefer", "always", "never", "remember", "my name", "project",
}

// privacyVetoTerms block a candidate fact from ever being extracted,
// regardless of matching an indicator.
var privacyVetoTerms = []string{
	"password", "secret", "token", "key", "credential",
}

// Subsystem implements MemorySubsystem: store/recall/save_to_disk/
// load_from_disk/stats over three bounded VectorStore-backed tiers sharing
// one EmbeddingProvider.
type Subsystem struct {
	embedder domainmemory.EmbeddingProvider
	tiers    map[entity.MemoryTier]*domainmemory.BoundedVectorStore

	logger *zap.Logger

	totalStores  int64
	totalRecalls int64

	mu sync.Mutex
}

// NewSubsystem builds a Subsystem with the default per-tier capacities
// (entity.MemoryTier.DefaultCapacity). embedder is typically an
// infrastructure/embedding.OllamaEmbedder in production and a
// domainmemory.SimpleEmbedder in tests or offline mode.
func NewSubsystem(embedder domainmemory.EmbeddingProvider, logger *zap.Logger) *Subsystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	tiers := make(map[entity.MemoryTier]*domainmemory.BoundedVectorStore)
	for _, t := range []entity.MemoryTier{entity.MemoryWorking, entity.MemoryEpisodic, entity.MemorySemantic} {
		tiers[t] = domainmemory.NewBoundedVectorStore(domainmemory.NewInMemoryVectorStore(), t.DefaultCapacity())
	}
	return &Subsystem{embedder: embedder, tiers: tiers, logger: logger}
}

// WithTierStore overrides the store backing a tier (e.g. a LanceDB-backed
// store for MemorySemantic in production), still capacity-bounded.
func (s *Subsystem) WithTierStore(tier entity.MemoryTier, store domainmemory.VectorStore, capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[tier] = domainmemory.NewBoundedVectorStore(store, capacity)
}

// Store embeds entry.Content and inserts it into its tier's bounded store.
func (s *Subsystem) Store(ctx context.Context, entry entity.MemoryEntry) error {
	tierStore, ok := s.tiers[entry.Tier]
	if !ok {
		return fmt.Errorf("memory subsystem: unknown tier %q", entry.Tier)
	}
	embedding, err := s.embedder.Embed(ctx, entry.Content)
	if err != nil {
		return fmt.Errorf("memory subsystem: embed: %w", err)
	}
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("%s-%d", entry.Tier, time.Now().UnixNano())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	record := &domainmemory.MemoryEntry{
		ID:        entry.ID,
		Content:   entry.Content,
		Embedding: embedding,
		Metadata:  entry.Metadata,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.CreatedAt,
		SessionID: entry.SessionID,
	}
	if record.Metadata == nil {
		record.Metadata = make(map[string]interface{})
	}
	record.Metadata["importance"] = entry.Importance
	record.Metadata["tier"] = string(entry.Tier)

	if err := tierStore.Insert(ctx, record); err != nil {
		return fmt.Errorf("memory subsystem: insert into %s: %w", entry.Tier, err)
	}
	atomic.AddInt64(&s.totalStores, 1)
	return nil
}

// Recall searches every tier, keeps results at or above rc.MinRelevance,
// sorts by relevance descending, and truncates to rc.Limit (0 means no
// limit).
func (s *Subsystem) Recall(ctx context.Context, query string, rc entity.RecallContext) ([]entity.MemoryEntry, error) {
	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory subsystem: embed query: %w", err)
	}

	filter := &domainmemory.SearchFilter{SessionID: rc.SessionID, MinScore: float32(rc.MinRelevance)}
	topK := rc.Limit
	if topK <= 0 {
		topK = 20
	}

	var merged []entity.MemoryEntry
	for tier, store := range s.tiers {
		results, err := store.Search(ctx, queryEmbedding, topK, filter)
		if err != nil {
			return nil, fmt.Errorf("memory subsystem: search %s: %w", tier, err)
		}
		for _, r := range results {
			importance, _ := r.Metadata["importance"].(float64)
			merged = append(merged, entity.MemoryEntry{
				ID:         r.ID,
				Content:    r.Content,
				Tier:       tier,
				Importance: importance,
				SessionID:  r.SessionID,
				Metadata:   r.Metadata,
				Relevance:  float64(r.Score),
				CreatedAt:  r.CreatedAt,
			})
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Relevance > merged[j].Relevance })
	if rc.Limit > 0 && len(merged) > rc.Limit {
		merged = merged[:rc.Limit]
	}
	atomic.AddInt64(&s.totalRecalls, 1)
	return merged, nil
}

// RecallText adapts Recall to domain/service.MemoryRecaller's string-slice
// contract, for injection as the ReplyDriver's recalled-memories block.
func (s *Subsystem) RecallText(ctx context.Context, query string, limit int) ([]string, error) {
	entries, err := s.Recall(ctx, query, entity.RecallContext{MinRelevance: 0.2, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Content
	}
	return out, nil
}

// RecordTurn implements the §4.N store policy at turn exit: the user
// message and assistant response are stored as Working memory, then the
// exchange is scanned for fact-indicator keywords (skipping anything
// matching a privacy veto term) and promoted to Semantic.
func (s *Subsystem) RecordTurn(ctx context.Context, sessionID, userMessage, assistantMessage string) error {
	if err := s.Store(ctx, entity.MemoryEntry{
		Content: userMessage, Tier: entity.MemoryWorking, Importance: 0.6, SessionID: sessionID,
	}); err != nil {
		return err
	}
	if assistantMessage != "" {
		if err := s.Store(ctx, entity.MemoryEntry{
			Content: assistantMessage, Tier: entity.MemoryWorking, Importance: 0.5, SessionID: sessionID,
		}); err != nil {
			return err
		}
	}

	for _, fact := range extractFacts(userMessage, assistantMessage) {
		if err := s.Store(ctx, entity.MemoryEntry{
			Content: fact, Tier: entity.MemorySemantic, Importance: 0.8, SessionID: sessionID,
		}); err != nil {
			s.logger.Warn("memory subsystem: failed to store extracted fact", zap.Error(err))
		}
	}
	return nil
}

// extractFacts applies the keyword-indicator/privacy-veto heuristic to each
// sentence of the turn's text, per §4.N.
func extractFacts(texts ...string) []string {
	var facts []string
	for _, text := range texts {
		for _, sentence := range splitSentences(text) {
			lower := strings.ToLower(sentence)
			if containsAny(lower, privacyVetoTerms) {
				continue
			}
			if containsAny(lower, factIndicators) {
				facts = append(facts, strings.TrimSpace(sentence))
			}
		}
	}
	return facts
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '\n' || r == '!' || r == '?'
	})
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Stats reports the current per-tier counts and lifetime store/recall totals.
func (s *Subsystem) Stats(ctx context.Context) entity.MemoryStats {
	return entity.MemoryStats{
		WorkingCount:  s.tiers[entity.MemoryWorking].Count(),
		EpisodicCount: s.tiers[entity.MemoryEpisodic].Count(),
		SemanticCount: s.tiers[entity.MemorySemantic].Count(),
		TotalStores:   atomic.LoadInt64(&s.totalStores),
		TotalRecalls:  atomic.LoadInt64(&s.totalRecalls),
	}
}

// diskSnapshot is the on-disk JSON shape SaveToDisk/LoadFromDisk round-trip.
type diskSnapshot struct {
	Tiers map[entity.MemoryTier][]entity.MemoryEntry `json:"tiers"`
}

// SaveToDisk serializes every tier's current entries to path as JSON. A
// tier backed by a store that does not implement domainmemory.Snapshotter
// (e.g. a production LanceDB store) contributes no rows.
func (s *Subsystem) SaveToDisk(ctx context.Context, path string) error {
	snapshot := diskSnapshot{Tiers: make(map[entity.MemoryTier][]entity.MemoryEntry)}
	for tier, store := range s.tiers {
		entries, err := store.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("memory subsystem: list %s for save: %w", tier, err)
		}
		rows := make([]entity.MemoryEntry, 0, len(entries))
		for _, e := range entries {
			importance, _ := e.Metadata["importance"].(float64)
			rows = append(rows, entity.MemoryEntry{
				ID: e.ID, Content: e.Content, Tier: tier, Importance: importance,
				SessionID: e.SessionID, Metadata: e.Metadata, CreatedAt: e.CreatedAt,
			})
		}
		snapshot.Tiers[tier] = rows
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("memory subsystem: marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("memory subsystem: mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("memory subsystem: write snapshot: %w", err)
	}
	return nil
}

// LoadFromDisk restores every tier from a prior SaveToDisk snapshot,
// returning the total number of entries reloaded.
func (s *Subsystem) LoadFromDisk(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("memory subsystem: read snapshot: %w", err)
	}
	var snapshot diskSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return 0, fmt.Errorf("memory subsystem: unmarshal snapshot: %w", err)
	}

	count := 0
	for tier, rows := range snapshot.Tiers {
		for _, row := range rows {
			row.Tier = tier
			if err := s.Store(ctx, row); err != nil {
				return count, fmt.Errorf("memory subsystem: restore entry into %s: %w", tier, err)
			}
			count++
		}
	}
	return count, nil
}
