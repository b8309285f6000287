package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Skotchmaster/staff_api/internal/models"
	"github.com/Skotchmaster/staff_api/internal/repo"
	"github.com/Skotchmaster/staff_api/pkg/logging"
)

type PositionStore interface {
	ListPositions(ctx context.Context) ([]models.Position, error)
	GetPosition(ctx context.Context, id uint) (*models.Position, error)
	CreatePosition(ctx context.Context, pos *models.Position) error
	UpdatePosition(ctx context.Context, id uint, patch repo.PositionPatch) (*models.Position, error)
	DeletePosition(ctx context.Context, id uint) error
	SearchPositions(ctx context.Context, q string, offset, limit int) (int64, []models.Position, error)
	PositionsByIDs(ctx context.Context, ids []uint) ([]models.Position, error)
}

// PositionIndex is the optional full-text index. Index writes are
// best-effort; the database row is authoritative.
type PositionIndex interface {
	IndexPosition(ctx context.Context, pos models.Position) error
	DeletePosition(ctx context.Context, id uint) error
	SearchPositions(ctx context.Context, q string, from, size int) (int64, []uint, error)
}

type PositionService struct {
	Repo  PositionStore
	Index PositionIndex
}

type PositionUpdate struct {
	PositionCode *string
	PositionName *string
}

func (s *PositionService) List(ctx context.Context) ([]models.Position, error) {
	items, err := s.Repo.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return items, nil
}

func (s *PositionService) Get(ctx context.Context, id uint) (*models.Position, error) {
	pos, err := s.Repo.GetPosition(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return pos, nil
}

func (s *PositionService) Create(ctx context.Context, ownerID uint, code, name string) (*models.Position, error) {
	code, name = strings.TrimSpace(code), strings.TrimSpace(name)
	if code == "" || name == "" {
		return nil, fmt.Errorf("%w: position_code and position_name are required", ErrValidation)
	}

	pos := &models.Position{PositionCode: code, PositionName: name, UserID: ownerID}
	if err := s.Repo.CreatePosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("create position: %w", err)
	}

	s.index(ctx, *pos)
	return pos, nil
}

func (s *PositionService) Update(ctx context.Context, id uint, upd PositionUpdate) (*models.Position, error) {
	code, err := nonBlank(upd.PositionCode, "position_code")
	if err != nil {
		return nil, err
	}
	name, err := nonBlank(upd.PositionName, "position_name")
	if err != nil {
		return nil, err
	}

	pos, err := s.Repo.UpdatePosition(ctx, id, repo.PositionPatch{PositionCode: code, PositionName: name})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.index(ctx, *pos)
	return pos, nil
}

func (s *PositionService) Delete(ctx context.Context, id uint) error {
	if err := s.Repo.DeletePosition(ctx, id); err != nil {
		return mapStoreError(err)
	}

	if s.Index != nil {
		if err := s.Index.DeletePosition(ctx, id); err != nil {
			logging.FromContext(ctx).Warn("index_delete_failed", "position_id", id, "error", err)
		}
	}
	return nil
}

// Search uses the index when one is configured and falls back to the
// database when there is none or it fails.
func (s *PositionService) Search(ctx context.Context, q string, from, size int) (int64, []models.Position, error) {
	l := logging.FromContext(ctx).With("svc", "positions.search")

	q = strings.TrimSpace(q)
	if q == "" {
		return 0, nil, fmt.Errorf("%w: query must not be empty", ErrValidation)
	}

	if s.Index != nil {
		total, ids, err := s.Index.SearchPositions(ctx, q, from, size)
		if err == nil {
			items, err := s.Repo.PositionsByIDs(ctx, ids)
			if err != nil {
				return 0, nil, fmt.Errorf("load positions: %w", err)
			}
			return total, items, nil
		}
		l.Warn("index_search_failed", "error", err)
	}

	total, items, err := s.Repo.SearchPositions(ctx, q, from, size)
	if err != nil {
		return 0, nil, fmt.Errorf("search positions: %w", err)
	}
	return total, items, nil
}

func (s *PositionService) index(ctx context.Context, pos models.Position) {
	if s.Index == nil {
		return
	}
	if err := s.Index.IndexPosition(ctx, pos); err != nil {
		logging.FromContext(ctx).Warn("index_write_failed", "position_id", pos.PositionID, "error", err)
	}
}

func nonBlank(v *string, field string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %s must not be empty", ErrValidation, field)
	}
	return &trimmed, nil
}
