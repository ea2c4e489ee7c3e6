package repository

import (
	"database/sql"

	"sketchsync/internal/drawing/model"
	"sketchsync/pkg/logger"
)

type DrawingRepository struct {
	DB *sql.DB
}

func NewDrawingRepository(db *sql.DB) *DrawingRepository {
	return &DrawingRepository{DB: db}
}

func (r *DrawingRepository) Create(id, title, ownerID string) error {
	_, err := r.DB.Exec(`INSERT INTO drawings (id, title, state, owner_id, created_at, updated_at) VALUES ($1, $2, '', $3, NOW(), NOW())`,
		id, title, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to create drawing: %v", err)
	}
	return err
}

func (r *DrawingRepository) UpdateTitle(id, title, ownerID string) (int64, error) {
	result, err := r.DB.Exec(`UPDATE drawings SET title = $1, updated_at = NOW() WHERE id = $2 AND owner_id = $3`,
		title, id, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to rename drawing %s: %v", id, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (r *DrawingRepository) Delete(id, ownerID string) (int64, error) {
	result, err := r.DB.Exec(`DELETE FROM drawings WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete drawing %s: %v", id, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (r *DrawingRepository) ListByOwner(ownerID string) ([]model.Drawing, error) {
	rows, err := r.DB.Query(`SELECT id, title, owner_id, created_at, updated_at FROM drawings WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list drawings for user %s: %v", ownerID, err)
		return nil, err
	}
	defer rows.Close()

	var drawings []model.Drawing
	for rows.Next() {
		var d model.Drawing
		if err := rows.Scan(&d.ID, &d.Title, &d.OwnerID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			continue
		}
		drawings = append(drawings, d)
	}
	return drawings, nil
}
