package repo

import (
	"context"
	"strings"

	"github.com/Skotchmaster/staff_api/internal/models"
)

type PositionPatch struct {
	PositionCode *string
	PositionName *string
}

func (r *GormRepo) ListPositions(ctx context.Context) ([]models.Position, error) {
	var items []models.Position
	if err := r.DB.WithContext(ctx).Order("position_id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) GetPosition(ctx context.Context, id uint) (*models.Position, error) {
	var pos models.Position
	if err := r.DB.WithContext(ctx).Where("position_id = ?", id).First(&pos).Error; err != nil {
		return nil, notFound(err)
	}
	return &pos, nil
}

func (r *GormRepo) CreatePosition(ctx context.Context, pos *models.Position) error {
	return r.DB.WithContext(ctx).Create(pos).Error
}

func (r *GormRepo) UpdatePosition(ctx context.Context, id uint, patch PositionPatch) (*models.Position, error) {
	pos, err := r.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if patch.PositionCode != nil {
		fields["position_code"] = *patch.PositionCode
	}
	if patch.PositionName != nil {
		fields["position_name"] = *patch.PositionName
	}
	if len(fields) == 0 {
		return pos, nil
	}

	if err := r.DB.WithContext(ctx).Model(pos).Updates(fields).Error; err != nil {
		return nil, err
	}
	return r.GetPosition(ctx, id)
}

func (r *GormRepo) DeletePosition(ctx context.Context, id uint) error {
	res := r.DB.WithContext(ctx).Where("position_id = ?", id).Delete(&models.Position{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchPositions is the database fallback for full-text search: a
// case-insensitive substring match on code and name.
func (r *GormRepo) SearchPositions(ctx context.Context, q string, offset, limit int) (int64, []models.Position, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
	where := "LOWER(position_code) LIKE ? OR LOWER(position_name) LIKE ?"

	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Position{}).
		Where(where, pattern, pattern).
		Count(&total).Error; err != nil {
		return 0, nil, err
	}

	items := make([]models.Position, 0, limit)
	if err := r.DB.WithContext(ctx).Model(&models.Position{}).
		Where(where, pattern, pattern).
		Order("position_id ASC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

// PositionsByIDs returns the rows for ids in the order given, skipping ids
// that no longer exist.
func (r *GormRepo) PositionsByIDs(ctx context.Context, ids []uint) ([]models.Position, error) {
	if len(ids) == 0 {
		return []models.Position{}, nil
	}
	var found []models.Position
	if err := r.DB.WithContext(ctx).Where("position_id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}

	byID := make(map[uint]models.Position, len(found))
	for _, p := range found {
		byID[p.PositionID] = p
	}
	out := make([]models.Position, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
