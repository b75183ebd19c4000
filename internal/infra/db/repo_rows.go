package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

// RowRepository is the generic single-row access path onto business-data
// tables. Table names come from a CollectionResolver, never from request
// input, and every value travels as a bind parameter.
type RowRepository struct {
	db *gorm.DB
}

func NewRowRepository(db *gorm.DB) *RowRepository {
	return &RowRepository{db: db}
}

func (r *RowRepository) ReadRow(ctx context.Context, table, id string) (map[string]any, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	row := map[string]any{}
	err := r.db.WithContext(ctx).Table(table).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *RowRepository) InsertRow(ctx context.Context, table string, values map[string]any) (map[string]any, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	row := make(map[string]any, len(values)+1)
	for k, v := range values {
		row[k] = v
	}
	if _, ok := row["id"]; !ok {
		id, err := newUUID()
		if err != nil {
			return nil, err
		}
		row["id"] = id
	}
	if err := r.db.WithContext(ctx).Table(table).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *RowRepository) UpdateRow(ctx context.Context, table, id string, values map[string]any) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).Table(table).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("row %s not found in %s", id, table)
	}
	return nil
}

func (r *RowRepository) DeleteRow(ctx context.Context, table, id string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).Exec("DELETE FROM "+table+" WHERE id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("row %s not found in %s", id, table)
	}
	return nil
}

var collectionCodePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// PrefixResolver maps collection codes to physical tables by prefixing.
// Codes are restricted to identifier characters so a table name can never
// be injected through a target path.
type PrefixResolver struct {
	Prefix string
}

func (p PrefixResolver) TableFor(collection string) (string, error) {
	if !collectionCodePattern.MatchString(collection) {
		return "", fmt.Errorf("invalid collection code %q", collection)
	}
	return p.Prefix + collection, nil
}
