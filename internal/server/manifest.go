package server

import (
	"encoding/json"
	"net/http"

	"github.com/comigor/groq-extension-go/pkg/tools"
)

const (
	extensionName        = "Groq Extension"
	extensionDescription = "Interact with Groq's Models."
)

type manifest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Version     string     `json:"version"`
	Functions   []function `json:"functions"`
}

type function struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

func newManifest(registry *tools.Registry, version string) manifest {
	m := manifest{Name: extensionName, Description: extensionDescription, Version: version}
	for _, t := range registry.List() {
		d := t.Descriptor()
		m.Functions = append(m.Functions, function{ID: d.ID, Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return m
}

// manifestHandler describes the extension and every function it serves.
func manifestHandler(registry *tools.Registry, version string) http.HandlerFunc {
	m := newManifest(registry, version)
	return func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, m)
	}
}
