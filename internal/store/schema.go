package store

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-version"
	"gorm.io/gorm"
)

// SchemaVersion is the database layout this build writes.
const SchemaVersion = "1.0.0"

const schemaKey = "schema_version"

// ErrSchemaTooNew is returned when the database was written by a newer build.
var ErrSchemaTooNew = errors.New("store: database schema is newer than this build")

// checkSchema refuses databases from newer builds and stamps older or
// unversioned ones with SchemaVersion.
func (s *Store) checkSchema() error {
	current := version.Must(version.NewVersion(SchemaVersion))
	var row Setting
	err := s.db.Where("name = ?", schemaKey).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	default:
		stored, err := version.NewVersion(row.Value)
		if err != nil {
			return fmt.Errorf("parse schema version %q: %w", row.Value, err)
		}
		if stored.GreaterThan(current) {
			return fmt.Errorf("%w: %s > %s", ErrSchemaTooNew, stored, current)
		}
		if stored.Equal(current) {
			return nil
		}
	}
	return s.db.Save(&Setting{Name: schemaKey, Value: current.String()}).Error
}
