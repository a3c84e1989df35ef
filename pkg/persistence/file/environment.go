package file

import (
	"context"
	"path/filepath"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
)

// EnvironmentRepository stores one encrypted environment record per owner.
type EnvironmentRepository struct {
	root string
}

func NewEnvironmentRepository(root string) *EnvironmentRepository {
	return &EnvironmentRepository{root: root}
}

func (er *EnvironmentRepository) path(ownerID string) string {
	return filepath.Join(er.root, "environments", ownerID+".json")
}

func (er *EnvironmentRepository) ByOwner(_ context.Context, ownerID string) (*models.EnvironmentRecord, error) {
	record := &models.EnvironmentRecord{}

	err := readDocument(er.path(ownerID), record, persistence.ErrEnvironmentNotFound)
	if err != nil {
		return nil, &persistence.EnvironmentError{Op: "ByOwner", OwnerID: ownerID, Err: err}
	}

	return record, nil
}

func (er *EnvironmentRepository) Save(_ context.Context, record *models.EnvironmentRecord) error {
	if err := writeDocument(er.path(record.OwnerID), record); err != nil {
		return &persistence.EnvironmentError{Op: "Save", OwnerID: record.OwnerID, Err: err}
	}

	return nil
}
