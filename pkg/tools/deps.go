package tools

import (
	"context"

	"github.com/google/uuid"

	"github.com/comigor/groq-extension-go/internal/catalog"
	"github.com/comigor/groq-extension-go/internal/session"
)

// Completer runs a single-shot chat completion.
type Completer interface {
	Complete(ctx context.Context, model string, msgs []session.ChatMessage) (string, error)
}

// Deps are the collaborators shared by the built-in tools.
type Deps struct {
	Catalog      catalog.Catalog
	Sessions     *session.Store
	Completer    Completer
	DefaultModel string
	// NewSessionID defaults to "sess_" followed by a random UUID.
	NewSessionID func() string
}

func (d Deps) sessionID() string {
	if d.NewSessionID != nil {
		return d.NewSessionID()
	}
	return "sess_" + uuid.NewString()
}

// Builtin returns every tool the extension serves.
func Builtin(d Deps) []Tool {
	return []Tool{
		&ListModels{deps: d},
		&DescribeModel{deps: d},
		&ExecuteModel{deps: d},
		&RecommendModel{deps: d},
		&StartSession{deps: d},
		&SendMessage{deps: d},
		&ResetSession{deps: d},
		&EndSession{deps: d},
	}
}

// NewDefaultRegistry builds the registry of built-in tools.
func NewDefaultRegistry(d Deps) (*Registry, error) {
	return NewRegistry(Builtin(d)...)
}
