// Package catalog caches the list of hosted models for the lifetime of the
// process. The cache never expires on its own; ForceReload is the only way
// to refresh it.
package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/singleflight"

	"github.com/comigor/groq-extension-go/internal/logger"
)

var ErrModelNotFound = errors.New("model not found in catalog")

// Catalog resolves model names to descriptors.
type Catalog interface {
	List(ctx context.Context) ([]Model, error)
	Get(ctx context.Context, nameOrID string) (Model, error)
	Schema(ctx context.Context, nameOrID string) (ModelSchema, error)
	ForceReload(ctx context.Context) ([]Model, error)
}

// Source lists models upstream. *openai.Client satisfies it.
type Source interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// Cache is the in-memory Catalog.
type Cache struct {
	source  Source
	overlay map[string]Model

	mu     sync.RWMutex
	models []Model
	loaded bool

	group singleflight.Group
}

var _ Catalog = (*Cache)(nil)

func NewCache(source Source, overlay []Model) *Cache {
	byName := make(map[string]Model, len(overlay))
	for _, m := range overlay {
		byName[m.Name] = m
	}
	return &Cache{source: source, overlay: byName}
}

// List returns the catalog, fetching it on first use. The result is ordered
// by display name.
func (c *Cache) List(ctx context.Context) ([]Model, error) {
	c.mu.RLock()
	if c.loaded {
		out := slices.Clone(c.models)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()
	return c.load(ctx)
}

// ForceReload refetches the catalog regardless of the cache state.
func (c *Cache) ForceReload(ctx context.Context) ([]Model, error) {
	return c.load(ctx)
}

func (c *Cache) load(ctx context.Context) ([]Model, error) {
	// the fetch is shared by every waiter, so one caller going away must
	// not cancel it for the others
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do("models", func() (any, error) {
		list, err := c.source.ListModels(fetchCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch models from the model catalog: %w", err)
		}
		models := make([]Model, 0, len(list.Models))
		for _, upstream := range list.Models {
			models = append(models, c.describe(upstream))
		}
		slices.SortStableFunc(models, func(a, b Model) int {
			return cmp.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName))
		})

		c.mu.Lock()
		c.models = models
		c.loaded = true
		c.mu.Unlock()

		logger.L.Info("model catalog loaded", "models", len(models))
		return models, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]Model)), nil
}

// Get resolves a model by name or display name. A miss triggers one forced
// reload before failing with ErrModelNotFound.
func (c *Cache) Get(ctx context.Context, nameOrID string) (Model, error) {
	models, err := c.List(ctx)
	if err != nil {
		return Model{}, err
	}
	if m, ok := find(models, nameOrID); ok {
		return m, nil
	}

	models, err = c.ForceReload(ctx)
	if err != nil {
		return Model{}, err
	}
	if m, ok := find(models, nameOrID); ok {
		return m, nil
	}
	return Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, nameOrID)
}

// Schema returns the model's published schema, or DefaultSchema.
func (c *Cache) Schema(ctx context.Context, nameOrID string) (ModelSchema, error) {
	m, err := c.Get(ctx, nameOrID)
	if err != nil {
		return ModelSchema{}, err
	}
	if m.Schema != nil {
		return *m.Schema, nil
	}
	return DefaultSchema(), nil
}

func find(models []Model, nameOrID string) (Model, bool) {
	for _, m := range models {
		if m.Name == nameOrID {
			return m, true
		}
	}
	for _, m := range models {
		if strings.EqualFold(m.Name, nameOrID) || strings.EqualFold(m.DisplayName, nameOrID) {
			return m, true
		}
	}
	return Model{}, false
}

func (c *Cache) describe(upstream openai.Model) Model {
	m := Model{
		Name:           upstream.ID,
		DisplayName:    upstream.ID,
		Version:        "latest",
		Publisher:      upstream.OwnedBy,
		RegistryName:   "groq",
		InferenceTasks: []string{inferTask(upstream.ID)},
	}
	o, ok := c.overlay[upstream.ID]
	if !ok {
		return m
	}
	if o.DisplayName != "" {
		m.DisplayName = o.DisplayName
	}
	if o.Version != "" {
		m.Version = o.Version
	}
	if o.Publisher != "" {
		m.Publisher = o.Publisher
	}
	if o.RegistryName != "" {
		m.RegistryName = o.RegistryName
	}
	if len(o.InferenceTasks) > 0 {
		m.InferenceTasks = slices.Clone(o.InferenceTasks)
	}
	m.License = o.License
	m.Summary = o.Summary
	m.Schema = o.Schema
	return m
}

func inferTask(id string) string {
	switch {
	case strings.Contains(id, "whisper"):
		return TaskSpeechToText
	case strings.Contains(id, "tts"):
		return TaskTextToSpeech
	default:
		return TaskChatCompletion
	}
}
