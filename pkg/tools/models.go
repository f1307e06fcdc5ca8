package tools

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/comigor/groq-extension-go/internal/catalog"
	"github.com/comigor/groq-extension-go/internal/logger"
	"github.com/comigor/groq-extension-go/internal/session"
)

// ListModels lists the models available in the catalog.
type ListModels struct{ deps Deps }

func (t *ListModels) Descriptor() Descriptor {
	return Descriptor{
		ID:          "listModels",
		Name:        "list_models",
		Description: "This function lists the AI models available in Groq Cloud Models.",
		Parameters:  schema(`{"type":"object","properties":{},"description":"This function does not require any input parameters. It simply returns a list of models."}`),
		FollowUp:    true,
	}
}

func (t *ListModels) Run(ctx context.Context, req Request) (RunnerResponse, error) {
	models, err := t.deps.Catalog.List(ctx)
	if err != nil {
		logger.L.Warn("list_models: catalog unavailable", "error", err)
		return RunnerResponse{ModelUsed: t.deps.DefaultModel, Messages: []Message{Text(err.Error())}}, nil
	}

	type entry struct {
		Name        string `json:"name"`
		Publisher   string `json:"publisher"`
		Description string `json:"description"`
	}
	entries := make([]entry, 0, len(models))
	for _, m := range models {
		entries = append(entries, entry{Name: m.DisplayName, Publisher: m.Publisher, Description: m.Summary})
	}
	listed, err := json.Marshal(entries)
	if err != nil {
		return RunnerResponse{}, err
	}

	system := strings.Join([]string{
		"The user is asking for a list of available models.",
		"Respond with a concise and readable list of the models, with a short description for each one.",
		"Use markdown formatting to make each description more readable.",
		"Begin each model's description with a header consisting of the model's name",
		"That list of models is as follows:",
		string(listed),
	}, "\n")

	return RunnerResponse{
		ModelUsed: t.deps.DefaultModel,
		Messages:  append([]Message{Chat(session.RoleSystem, system)}, history(req.Messages)...),
	}, nil
}

// DescribeModel describes one catalog entry and its request schema.
type DescribeModel struct{ deps Deps }

func (t *DescribeModel) Descriptor() Descriptor {
	return Descriptor{
		ID:          "describeModel",
		Name:        "describe_model",
		Description: "Describes a specific model.",
		Parameters: schema(`{"type":"object","properties":{"model":{"type":"string","description":` +
			`"The model to describe. Looks like \"model-name\". For example, ` + "`llama-4-maverick-17b-128e-instruct` or `gemma2-9b-it`." + `"}},"required":["model"]}`),
		FollowUp: true,
	}
}

func (t *DescribeModel) Run(ctx context.Context, req Request) (RunnerResponse, error) {
	var args struct {
		Model string `json:"model"`
	}
	if err := decodeArgs(req.Arguments, &args); err != nil {
		return RunnerResponse{ModelUsed: t.deps.DefaultModel, Messages: []Message{Text(err.Error())}}, nil
	}
	if args.Model == "" {
		return RunnerResponse{ModelUsed: t.deps.DefaultModel, Messages: []Message{Text("model is required")}}, nil
	}

	m, err := t.deps.Catalog.Get(ctx, args.Model)
	if err != nil {
		return RunnerResponse{ModelUsed: t.deps.DefaultModel, Messages: []Message{
			Text(fmt.Sprintf("Failed to fetch %s from the model catalog: %v", args.Model, err)),
		}}, nil
	}
	modelSchema, err := t.deps.Catalog.Schema(ctx, m.Name)
	if err != nil {
		return RunnerResponse{ModelUsed: t.deps.DefaultModel, Messages: []Message{
			Text(fmt.Sprintf("Failed to fetch %s schema from the model catalog: %v", args.Model, err)),
		}}, nil
	}
	schemaJSON, err := json.MarshalIndent(modelSchema, "", "  ")
	if err != nil {
		return RunnerResponse{}, err
	}

	system := strings.Join([]string{
		"The user is asking about the AI model with the following details:",
		"\tModel Name: " + m.Name,
		"\tModel Version: " + m.Version,
		"\tPublisher: " + m.Publisher,
		"\tModel Registry: " + m.RegistryName,
		"\tLicense: " + m.License,
		"\tTask: " + strings.Join(m.InferenceTasks, ", "),
		"\tSummary: " + m.Summary,
		"",
		"API requests for this model use the following schema:",
		"",
		"```json",
		string(schemaJSON),
		"```",
	}, "\n")

	return RunnerResponse{
		ModelUsed: t.deps.DefaultModel,
		Messages:  append([]Message{Chat(session.RoleSystem, system)}, history(req.Messages)...),
	}, nil
}

// chat models that accept an assistant-role context message
var assistantContextModels = []string{"gemma2-9b-it", "llama-4-maverick-17b-128e-instruct"}

// ExecuteModel prepares an instruction for a user-chosen model.
type ExecuteModel struct{ deps Deps }

func (t *ExecuteModel) Descriptor() Descriptor {
	return Descriptor{
		ID:   "executeModel",
		Name: "execute_model",
		Description: "This function sends the user's message prompt to the specified model. " +
			"Example Queries: - using gemma2-9b-it: what is 1+1? - using llama-4-maverick-17b-128e-instruct: explain this code.",
		Parameters: schema(`{"type":"object","properties":{` +
			`"modelUsed":{"type":"string","description":"The name of the model to execute. It is ONLY the name of the model, not the publisher or registry. For example: gemma2-9b-it, or llama-4-maverick-17b-128e-instruct."},` +
			`"instruction":{"type":"string","description":"The instruction to execute."}},` +
			`"required":["modelUsed","instruction"]}`),
		FollowUp: true,
	}
}

func (t *ExecuteModel) Run(ctx context.Context, req Request) (RunnerResponse, error) {
	var args struct {
		ModelUsed   string `json:"modelUsed"`
		Instruction string `json:"instruction"`
	}
	if err := decodeArgs(req.Arguments, &args); err != nil {
		return RunnerResponse{ModelUsed: t.deps.DefaultModel, Messages: []Message{Text(err.Error())}}, nil
	}
	if args.ModelUsed == "" || args.Instruction == "" {
		return RunnerResponse{ModelUsed: t.deps.DefaultModel, Messages: []Message{Text("modelUsed and instruction are required")}}, nil
	}

	model := args.ModelUsed
	if m, err := t.deps.Catalog.Get(ctx, args.ModelUsed); err == nil {
		model = m.Name
	} else if errors.Is(err, catalog.ErrModelNotFound) {
		return RunnerResponse{ModelUsed: args.ModelUsed, Messages: []Message{
			Text(fmt.Sprintf("Model %s is not available in the model catalog.", args.ModelUsed)),
		}}, nil
	} else {
		logger.L.Warn("execute_model: catalog unavailable, using model name as given", "model", args.ModelUsed, "error", err)
	}

	content := []string{fmt.Sprintf("The user has chosen to use the model named %s.", model)}
	if refs := importantReferences(req); len(refs) > 0 {
		content = append(content, "The user included the following context - you may find information in this context useful for your response:")
		for _, ref := range refs {
			content = append(content, fmt.Sprintf("- Reference Type: %s\n  Reference ID: %s\n  Metadata: %s", ref.Type, ref.ID, string(ref.Metadata)))
		}
	}
	content = append(content, "Instruction: "+args.Instruction)

	role := session.RoleSystem
	if slices.Contains(assistantContextModels, model) {
		role = session.RoleAssistant
	}

	return RunnerResponse{
		ModelUsed: model,
		Messages: []Message{
			Chat(role, strings.Join(content, "\n")),
			Chat(session.RoleUser, args.Instruction),
		},
	}, nil
}

func importantReferences(req Request) []referenceView {
	if len(req.Messages) == 0 {
		return nil
	}
	var out []referenceView
	for _, ref := range req.Messages[len(req.Messages)-1].References {
		if ref.Type == "client.selection" || ref.Type == "client.file" {
			out = append(out, referenceView{Type: ref.Type, ID: ref.ID, Metadata: ref.Metadata})
		}
	}
	return out
}

type referenceView struct {
	Type     string
	ID       string
	Metadata json.RawMessage
}

// RecommendModel picks a model for the user's use case.
type RecommendModel struct{ deps Deps }

func (t *RecommendModel) Descriptor() Descriptor {
	return Descriptor{
		ID:          "recommendModel",
		Name:        "recommend_model",
		Description: "Determines and recommends the most appropriate machine learning model based on the provided use-case.",
		Parameters:  schema(`{"type":"object","properties":{"useCase":{"type":"string","description":"Optional description of what the model will be used for."}}}`),
		FollowUp:    true,
	}
}

func (t *RecommendModel) Run(ctx context.Context, req Request) (RunnerResponse, error) {
	var args struct {
		UseCase string `json:"useCase"`
	}
	if err := decodeArgs(req.Arguments, &args); err != nil {
		return RunnerResponse{ModelUsed: t.deps.DefaultModel, Messages: []Message{Text(err.Error())}}, nil
	}

	models, err := t.deps.Catalog.List(ctx)
	if err != nil {
		return RunnerResponse{ModelUsed: t.deps.DefaultModel, Messages: []Message{Text(err.Error())}}, nil
	}
	chosen, ok := Recommend(models, t.deps.DefaultModel)
	if !ok {
		return RunnerResponse{ModelUsed: t.deps.DefaultModel, Messages: []Message{Text("No models are available in the model catalog.")}}, nil
	}

	lines := []string{
		"The user is asking for you to recommend the right model for their use-case.",
		"Explain your reasoning and why you recommend the chosen model.",
		"Provide a summary of the model's capabilities and limitations.",
		"Use the available models to make your recommendation.",
	}
	if args.UseCase != "" {
		lines = append(lines, "The use-case is: "+args.UseCase)
	}
	lines = append(lines, "The list of available models is as follows:")
	for _, m := range models {
		lines = append(lines, fmt.Sprintf("\t- Model Name: %s\n\t\tModel Version: %s\n\t\tPublisher: %s\n\t\tModel Registry: %s\n\t\tLicense: %s\n\t\tTask: %s\n\t\tSummary: %s",
			m.Name, orUnknown(m.Version), orUnknown(m.Publisher), orUnknown(m.RegistryName), orUnknown(m.License),
			strings.Join(m.InferenceTasks, ", "), cmp.Or(m.Summary, "No summary available.")))
	}
	lines = append(lines, "The recommended model is: "+chosen.Name)

	return RunnerResponse{
		ModelUsed: chosen.Name,
		Messages:  append([]Message{Chat(session.RoleSystem, strings.Join(lines, "\n"))}, history(req.Messages)...),
	}, nil
}

// Recommend returns the first chat-completion model in catalog order. When
// none qualifies it returns the model named fallback if the catalog has it,
// then the first model. It fails only on an empty catalog.
func Recommend(models []catalog.Model, fallback string) (catalog.Model, bool) {
	if len(models) == 0 {
		return catalog.Model{}, false
	}
	for _, m := range models {
		if m.Supports(catalog.TaskChatCompletion) {
			return m, true
		}
	}
	if i := slices.IndexFunc(models, func(m catalog.Model) bool { return m.Name == fallback }); i >= 0 {
		return models[i], true
	}
	return models[0], true
}

func orUnknown(s string) string {
	return cmp.Or(s, "Unknown")
}
