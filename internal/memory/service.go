// Package memory implements the memory operations on top of an embedder, a
// vector index and the project resolver.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dogkeeper886/mem0/internal/apperr"
	"github.com/dogkeeper886/mem0/internal/embedding"
	"github.com/dogkeeper886/mem0/internal/models"
	"github.com/dogkeeper886/mem0/internal/privacy"
	"github.com/dogkeeper886/mem0/internal/project"
	"github.com/dogkeeper886/mem0/internal/vectorstore"
)

const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 50
	ListPageSize       = 100
)

// State is the lazy initialization state of a Service.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Options configures a Service.
type Options struct {
	Collection string
	Dimension  int
	Metrics    *Metrics
	Logger     *slog.Logger
}

// Service is the main facade for all memory operations.
type Service struct {
	embedder   embedding.Embedder
	index      vectorstore.Index
	resolver   *project.Resolver
	collection string
	dimension  int
	metrics    *Metrics
	logger     *slog.Logger

	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	state State
	init  singleflight.Group
}

// NewService creates a memory service. The backends are not contacted until
// the first operation.
func NewService(embedder embedding.Embedder, index vectorstore.Index, resolver *project.Resolver, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dim := opts.Dimension
	if dim <= 0 {
		dim = embedder.Dimension()
	}
	return &Service{
		embedder:   embedder,
		index:      index,
		resolver:   resolver,
		collection: opts.Collection,
		dimension:  dim,
		metrics:    opts.Metrics,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// State returns the current initialization state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// ensureReady runs initialization once for all concurrent callers. A failure
// is not remembered; the next call tries again.
func (s *Service) ensureReady(ctx context.Context) error {
	if s.State() == StateReady {
		return nil
	}

	// Detach from the first caller's cancellation so one aborted request
	// does not fail every caller sharing this flight.
	initCtx := context.WithoutCancel(ctx)
	_, err, _ := s.init.Do("init", func() (any, error) {
		if s.State() == StateReady {
			return nil, nil
		}
		s.setState(StateInitializing)
		if err := s.initialize(initCtx); err != nil {
			s.setState(StateUninitialized)
			return nil, err
		}
		s.setState(StateReady)
		return nil, nil
	})
	if err != nil {
		return apperr.Wrap(apperr.ServiceUnavailable, err, "memory service initialization failed")
	}
	return nil
}

func (s *Service) initialize(ctx context.Context) error {
	s.logger.Info("initializing memory service", "collection", s.collection, "dimension", s.dimension)
	if err := s.embedder.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding backend: %w", err)
	}
	if err := s.index.HealthCheck(ctx); err != nil {
		return fmt.Errorf("vector index: %w", err)
	}
	if err := s.index.EnsureCollection(ctx, s.collection, s.dimension); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	s.logger.Info("memory service ready", "collection", s.collection)
	return nil
}

// Add stores each text as a separate memory stamped with the resolved project
// context. Every text is embedded before anything is written, and all points
// go to the index in one upsert, so the call either stores everything or
// nothing.
func (s *Service) Add(ctx context.Context, env project.Env, req *models.AddRequest) (out []models.Memory, err error) {
	defer s.metrics.observe("add", time.Now(), &err)

	texts, err := cleanTexts(req.AllTexts())
	if err != nil {
		return nil, err
	}
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	userID := normalizeUser(req.UserID)
	pc := s.resolver.Resolve(ctx, env)
	meta := stampMetadata(req.Metadata, pc)

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		vectors[i] = vec
	}

	createdAt := models.Timestamp(s.now())
	memories := make([]models.Memory, len(texts))
	points := make([]vectorstore.Point, len(texts))
	for i, text := range texts {
		memories[i] = models.Memory{
			ID:        s.newID(),
			Content:   text,
			UserID:    userID,
			CreatedAt: createdAt,
			Metadata:  meta,
			Vector:    vectors[i],
		}
		points[i] = vectorstore.Point{
			ID:      memories[i].ID,
			Vector:  vectors[i],
			Payload: memories[i].Payload(),
		}
	}

	if err := s.index.Upsert(ctx, s.collection, points); err != nil {
		return nil, fmt.Errorf("store memories: %w", err)
	}

	s.logger.Info("memories added", "count", len(memories), "user_id", userID, "project_id", pc.ProjectID)
	return memories, nil
}

// Search returns the memories most similar to the query within the requested
// scope. An empty query lists matching memories without ranking.
func (s *Service) Search(ctx context.Context, env project.Env, req *models.SearchRequest) (out []models.SearchResult, err error) {
	defer s.metrics.observe("search", time.Now(), &err)

	scope, err := resolveScope(req.Scope, req.ProjectID)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(req.Limit)
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	filter := s.scopeFilter(ctx, env, normalizeUser(req.UserID), scope, req.ProjectID)

	var hits []vectorstore.SearchResult
	if strings.TrimSpace(req.Query) == "" {
		hits, err = s.index.Scroll(ctx, s.collection, filter, limit)
	} else {
		s.logger.Debug("searching memories", "query", req.Query, "scope", scope)
		var vec []float32
		vec, err = s.embedder.Embed(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		hits, err = s.index.Search(ctx, s.collection, vec, filter, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}

	results := make([]models.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, models.SearchResult{
			Memory: models.MemoryFromPayload(h.ID, h.Payload),
			Score:  h.Score,
		})
	}
	return results, nil
}

// ListAll returns up to ListPageSize memories for userID across every
// project. Further pages are not fetched.
func (s *Service) ListAll(ctx context.Context, userID string) (out []models.Memory, err error) {
	defer s.metrics.observe("list", time.Now(), &err)

	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	hits, err := s.index.Scroll(ctx, s.collection, vectorstore.Match(models.KeyUserID, normalizeUser(userID)), ListPageSize)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	memories := make([]models.Memory, 0, len(hits))
	for _, h := range hits {
		memories = append(memories, models.MemoryFromPayload(h.ID, h.Payload))
	}
	return memories, nil
}

// DeleteOne removes a memory by id. Unknown ids are not an error.
func (s *Service) DeleteOne(ctx context.Context, id string) (err error) {
	defer s.metrics.observe("delete", time.Now(), &err)

	id = strings.TrimSpace(id)
	if id == "" {
		return apperr.Invalid("memory_id", "is required")
	}
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	if err := s.index.DeleteByID(ctx, s.collection, []string{id}); err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	s.logger.Info("memory deleted", "memory_id", id)
	return nil
}

// Reset removes every memory owned by userID, in all projects.
func (s *Service) Reset(ctx context.Context, userID string) (err error) {
	defer s.metrics.observe("reset", time.Now(), &err)

	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	userID = normalizeUser(userID)
	if err := s.index.DeleteByFilter(ctx, s.collection, vectorstore.Match(models.KeyUserID, userID)); err != nil {
		return fmt.Errorf("reset memories for %s: %w", userID, err)
	}
	s.logger.Info("memories reset", "user_id", userID)
	return nil
}

// Project describes the project context env resolves to. It does not touch
// the index.
func (s *Service) Project(ctx context.Context, env project.Env) project.Context {
	return s.resolver.Resolve(ctx, env)
}

// Health probes both backends without changing the service state.
func (s *Service) Health(ctx context.Context) models.HealthResponse {
	resp := models.HealthResponse{
		Status:   "healthy",
		Services: make(map[string]models.ServiceCheck, 2),
	}
	check := func(name string, err error) {
		if err != nil {
			resp.Status = "degraded"
			resp.Services[name] = models.ServiceCheck{Status: "unhealthy", Message: err.Error()}
			return
		}
		resp.Services[name] = models.ServiceCheck{Status: "healthy"}
	}
	check("embedding", s.embedder.HealthCheck(ctx))
	check("vector_index", s.index.HealthCheck(ctx))
	return resp
}

// scopeFilter builds the search filter. user_id is always constrained;
// project_id is constrained for current and explicit project scope only.
func (s *Service) scopeFilter(ctx context.Context, env project.Env, userID string, scope models.Scope, projectID string) vectorstore.Filter {
	filter := vectorstore.Match(models.KeyUserID, userID)
	switch scope {
	case models.ScopeCurrent:
		return filter.And(models.KeyProjectID, s.resolver.Resolve(ctx, env).ProjectID)
	case models.ScopeProject:
		return filter.And(models.KeyProjectID, projectID)
	default:
		return filter
	}
}

func resolveScope(scope models.Scope, projectID string) (models.Scope, error) {
	projectID = strings.TrimSpace(projectID)
	if scope == "" {
		if projectID != "" {
			return models.ScopeProject, nil
		}
		return models.ScopeCurrent, nil
	}
	if !scope.IsValid() {
		return "", apperr.Invalid("scope", "must be one of current, project, global; got %q", scope)
	}
	if scope == models.ScopeProject && projectID == "" {
		return "", apperr.Invalid("project_id", "is required for project scope")
	}
	return scope, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return min(limit, MaxSearchLimit)
}

func normalizeUser(userID string) string {
	if userID = strings.TrimSpace(userID); userID == "" {
		return models.DefaultUserID
	}
	return userID
}

// cleanTexts strips private blocks and rejects texts with nothing left to
// store.
func cleanTexts(texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, apperr.Invalid("texts", "at least one text is required")
	}
	out := make([]string, len(texts))
	for i, text := range texts {
		if privacy.OnlyPrivate(text) {
			return nil, apperr.Invalid(fmt.Sprintf("texts[%d]", i), "contains only private content")
		}
		text = privacy.Strip(text)
		if strings.TrimSpace(text) == "" {
			return nil, apperr.Invalid(fmt.Sprintf("texts[%d]", i), "is empty")
		}
		out[i] = text
	}
	return out, nil
}

// stampMetadata merges caller metadata with the resolved context. Reserved
// keys never come from the caller, so project scope cannot be forged.
func stampMetadata(caller map[string]any, pc project.Context) models.Metadata {
	var extra map[string]any
	for k, v := range caller {
		if models.IsReservedKey(k) {
			continue
		}
		if extra == nil {
			extra = make(map[string]any, len(caller))
		}
		extra[k] = v
	}
	return models.Metadata{
		ProjectID:   pc.ProjectID,
		ProjectName: pc.ProjectName,
		ProjectPath: pc.ProjectPath,
		GitRepo:     pc.GitRepo,
		GitBranch:   pc.GitBranch,
		SessionID:   pc.SessionID,
		Extra:       extra,
	}
}
