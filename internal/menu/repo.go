package menu

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
)

// Repository wraps menu item persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// List returns menu items in display order. Hidden items are skipped unless
// includeHidden is set.
func (r *Repository) List(ctx context.Context, includeHidden bool) ([]models.MenuItem, error) {
	query := r.db.WithContext(ctx).Model(&models.MenuItem{})
	if !includeHidden {
		query = query.Where("hidden = ?", false)
	}
	var items []models.MenuItem
	if err := query.Order("category ASC").Order("sort_order ASC").Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) FindBySKU(ctx context.Context, sku string) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// Create inserts every column of item.
func (r *Repository) Create(ctx context.Context, item *models.MenuItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Select("*").Create(item).Error
}

// Save writes the mutable columns of an existing item.
func (r *Repository) Save(ctx context.Context, item *models.MenuItem) error {
	return r.db.WithContext(ctx).
		Model(&models.MenuItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"name":       item.Name,
			"category":   item.Category,
			"price":      item.Price,
			"cost":       item.Cost,
			"in_stock":   item.InStock,
			"hidden":     item.Hidden,
			"sort_order": item.SortOrder,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}).Error
}
