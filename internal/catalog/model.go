package catalog

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/comigor/groq-extension-go/internal/config"
)

// Model is the catalog descriptor of a hosted model.
type Model struct {
	Name           string       `json:"name"`
	DisplayName    string       `json:"displayName"`
	Version        string       `json:"version"`
	Publisher      string       `json:"publisher"`
	RegistryName   string       `json:"registryName"`
	License        string       `json:"license"`
	InferenceTasks []string     `json:"inferenceTasks"`
	Summary        string       `json:"summary"`
	Schema         *ModelSchema `json:"schema,omitempty"`
}

// Supports reports whether the model lists task among its inference tasks.
func (m Model) Supports(task string) bool {
	return slices.Contains(m.InferenceTasks, task)
}

// ModelSchema describes the request parameters a model accepts.
type ModelSchema struct {
	Parameters   []SchemaParameter `json:"parameters"`
	Capabilities map[string]bool   `json:"capabilities"`
}

type SchemaParameter struct {
	Key          string   `json:"key"`
	Type         string   `json:"type"`
	PayloadPath  string   `json:"payloadPath"`
	Default      any      `json:"default,omitempty"`
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Required     bool     `json:"required"`
	Description  string   `json:"description,omitempty"`
	FriendlyName string   `json:"friendlyName,omitempty"`
}

const (
	TaskChatCompletion = "chat-completion"
	TaskSpeechToText   = "automatic-speech-recognition"
	TaskTextToSpeech   = "text-to-speech"
)

func ptr(f float64) *float64 { return &f }

// DefaultSchema is served for models without a published schema.
func DefaultSchema() ModelSchema {
	return ModelSchema{
		Parameters: []SchemaParameter{
			{Key: "temperature", Type: "number", PayloadPath: "temperature", Default: 1.0, Min: ptr(0), Max: ptr(2), FriendlyName: "Temperature"},
			{Key: "max_tokens", Type: "integer", PayloadPath: "max_tokens", Min: ptr(1), FriendlyName: "Max tokens"},
			{Key: "top_p", Type: "number", PayloadPath: "top_p", Default: 1.0, Min: ptr(0), Max: ptr(1), FriendlyName: "Top P"},
			{Key: "messages", Type: "array", PayloadPath: "messages", Required: true, Description: "Conversation so far, oldest first."},
		},
		Capabilities: map[string]bool{"streaming": true},
	}
}

// OverlayFromConfig converts configured catalog metadata.
func OverlayFromConfig(models []config.ModelConfig) ([]Model, error) {
	out := make([]Model, 0, len(models))
	for _, mc := range models {
		if mc.Name == "" {
			return nil, fmt.Errorf("catalog overlay entry without a name")
		}
		m := Model{
			Name:           mc.Name,
			DisplayName:    mc.DisplayName,
			Version:        mc.Version,
			Publisher:      mc.Publisher,
			RegistryName:   mc.RegistryName,
			License:        mc.License,
			InferenceTasks: slices.Clone(mc.InferenceTasks),
			Summary:        mc.Summary,
		}
		if len(mc.Schema) > 0 {
			raw, err := json.Marshal(mc.Schema)
			if err != nil {
				return nil, fmt.Errorf("encode schema of %s: %w", mc.Name, err)
			}
			var schema ModelSchema
			if err := json.Unmarshal(raw, &schema); err != nil {
				return nil, fmt.Errorf("decode schema of %s: %w", mc.Name, err)
			}
			m.Schema = &schema
		}
		out = append(out, m)
	}
	return out, nil
}
