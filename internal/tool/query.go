package tool

import (
	"context"

	"toolpilot/internal/database"
	"toolpilot/internal/domain"
)

// SQLExecutor runs one SQL string in whichever mode its statement class calls for.
type SQLExecutor interface {
	Execute(ctx context.Context, sqlText string) (*database.Result, error)
}

// QueryTool is the generic SQL capability over the shared store.
type QueryTool struct {
	store SQLExecutor
}

func NewQueryTool(store SQLExecutor) *QueryTool {
	return &QueryTool{store: store}
}

func (t *QueryTool) Descriptor() domain.CapabilityDescriptor {
	return domain.CapabilityDescriptor{
		Name: "query_database",
		Description: "Run SQL against the SQLite database. SELECT/WITH/PRAGMA/EXPLAIN return rows; " +
			"other single statements return changed_rows and inserted_id; several statements separated " +
			"by ';' run as a script and return only success.",
		InputSchema: Schema(map[string]Param{
			"sql": {Type: "string", Description: "SQL to execute"},
		}, "sql"),
	}
}

func (t *QueryTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	sqlText, err := requireString(args, "sql")
	if err != nil {
		return nil, err
	}
	res, err := t.store.Execute(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	return res.Value(), nil
}

var _ Capability = (*QueryTool)(nil)
