// Package assist translates natural-language prompts into workbench SQL
// through an OpenAI-compatible chat endpoint.
package assist

import "context"

// TableContext describes one registered view the model may query.
type TableContext struct {
	TableName string   `json:"table_name"`
	Path      string   `json:"path"`
	Columns   []string `json:"columns,omitempty"`
}

type Request struct {
	Prompt string         `json:"prompt"`
	Tables []TableContext `json:"tables"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
