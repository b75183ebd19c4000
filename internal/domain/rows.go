package domain

import "context"

// RowStore is the engine's only window onto the business-data store:
// parameterized single-row reads and writes against a resolved table. The
// identifier column is always "id".
type RowStore interface {
	ReadRow(ctx context.Context, table, id string) (map[string]any, error)
	InsertRow(ctx context.Context, table string, values map[string]any) (map[string]any, error)
	UpdateRow(ctx context.Context, table, id string, values map[string]any) error
	DeleteRow(ctx context.Context, table, id string) error
}

// CollectionResolver maps a collection code to a physical table name. The
// mapping itself is owned by an external collaborator.
type CollectionResolver interface {
	TableFor(collection string) (string, error)
}
