package service

import (
	"errors"

	"sketchsync/internal/drawing/model"
	"sketchsync/internal/drawing/repository"
	"sketchsync/room"

	"github.com/google/uuid"
)

var ErrNotOwner = errors.New("drawing not found or not owned by user")

type DrawingService struct {
	Repo     *repository.DrawingRepository
	Registry *room.Registry
}

func NewDrawingService(repo *repository.DrawingRepository, reg *room.Registry) *DrawingService {
	return &DrawingService{Repo: repo, Registry: reg}
}

func (s *DrawingService) Create(ownerID, title string) (string, error) {
	if title == "" {
		title = "Untitled drawing"
	}
	id := uuid.NewString()
	if err := s.Repo.Create(id, title, ownerID); err != nil {
		return "", err
	}
	return id, nil
}

func (s *DrawingService) Rename(id, ownerID, title string) error {
	rowsAffected, err := s.Repo.UpdateTitle(id, title, ownerID)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotOwner
	}
	return nil
}

func (s *DrawingService) Delete(id, ownerID string) error {
	rowsAffected, err := s.Repo.Delete(id, ownerID)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotOwner
	}
	// Drop the live room so the deleted state isn't auto-saved back.
	s.Registry.Evict(id)
	return nil
}

func (s *DrawingService) List(ownerID string) ([]model.Drawing, error) {
	drawings, err := s.Repo.ListByOwner(ownerID)
	if err != nil {
		return nil, err
	}
	if drawings == nil {
		drawings = []model.Drawing{}
	}
	return drawings, nil
}
