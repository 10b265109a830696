// Package sink stores extracted rows.
package sink

import (
	"context"
	"fmt"

	"github.com/dvloznov/perfmatters/internal/schema"
)

// Inserter writes a row to the named table.
type Inserter interface {
	Insert(ctx context.Context, table string, row schema.Record) error
}

// Saved is a row that went through Save, keyed by its table.
type Saved struct {
	Table  string
	Record schema.Record
}

// Save inserts rec with ins and returns it. A nil ins performs no I/O, which
// lets a run extract rows without a configured dataset. Insert errors are
// returned wrapped and are not retried.
func Save(ctx context.Context, ins Inserter, rec schema.Record) (Saved, error) {
	saved := Saved{Table: rec.Table(), Record: rec}
	if ins == nil {
		return saved, nil
	}

	if err := ins.Insert(ctx, saved.Table, rec); err != nil {
		return Saved{}, fmt.Errorf("Save: inserting into %s: %w", saved.Table, err)
	}
	return saved, nil
}
