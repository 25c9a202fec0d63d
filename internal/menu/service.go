// Package menu owns the catalog: listing, availability toggles, and the
// SKU keyed upsert that the spreadsheet import runs through.
package menu

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
)

const (
	maxSKULength  = 64
	maxNameLength = 120
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes menu operations.
type Service interface {
	List(ctx context.Context, includeHidden bool) ([]MenuItemView, error)
	SetAvailability(ctx context.Context, input AvailabilityInput) (*MenuItemView, error)
	Upsert(ctx context.Context, input UpsertInput, actor *Actor) (*UpsertResult, error)
	UpsertMany(ctx context.Context, inputs []UpsertInput, actor *Actor) ([]UpsertResult, error)
}

type service struct {
	repo   *Repository
	tx     txRunner
	outbox outbox.Emitter
	logg   *logger.Logger
}

// NewService constructs a menu service instance.
func NewService(repo *Repository, tx txRunner, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("menu repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, tx: tx, outbox: emitter, logg: logg}, nil
}

func (s *service) List(ctx context.Context, includeHidden bool) ([]MenuItemView, error) {
	items, err := s.repo.List(ctx, includeHidden)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list menu items")
	}
	out := make([]MenuItemView, 0, len(items))
	for _, item := range items {
		out = append(out, toView(item))
	}
	return out, nil
}

func (s *service) SetAvailability(ctx context.Context, input AvailabilityInput) (*MenuItemView, error) {
	if input.MenuItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item id is required")
	}
	if input.InStock == nil && input.Hidden == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "in_stock or hidden is required")
	}

	var out MenuItemView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		item, err := txRepo.FindByID(ctx, input.MenuItemID)
		if err != nil {
			return lookupErr(err, "menu item not found")
		}
		if input.InStock != nil {
			item.InStock = *input.InStock
		}
		if input.Hidden != nil {
			item.Hidden = *input.Hidden
		}
		if err := txRepo.Save(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update menu item")
		}
		if err := s.emitChanged(ctx, tx, item, input.Actor); err != nil {
			return err
		}
		out = toView(*item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"menu_item_id": out.ID.String(),
			"in_stock":     out.InStock,
			"hidden":       out.Hidden,
		}), "menu availability changed")
	}
	return &out, nil
}

func (s *service) Upsert(ctx context.Context, input UpsertInput, actor *Actor) (*UpsertResult, error) {
	results, err := s.UpsertMany(ctx, []UpsertInput{input}, actor)
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

// UpsertMany writes every input in one transaction. A single invalid input
// rejects the batch.
func (s *service) UpsertMany(ctx context.Context, inputs []UpsertInput, actor *Actor) ([]UpsertResult, error) {
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one menu item is required")
	}
	seen := make(map[string]struct{}, len(inputs))
	normalized := make([]UpsertInput, 0, len(inputs))
	for i, input := range inputs {
		clean, err := normalizeUpsert(input)
		if err != nil {
			return nil, pkgerrors.As(err).WithDetails(map[string]any{"index": i, "sku": input.SKU})
		}
		if _, dup := seen[clean.SKU]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate sku").WithDetails(map[string]any{"index": i, "sku": clean.SKU})
		}
		seen[clean.SKU] = struct{}{}
		normalized = append(normalized, clean)
	}

	results := make([]UpsertResult, 0, len(normalized))
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		for _, input := range normalized {
			item, created, err := upsertOne(ctx, txRepo, input)
			if err != nil {
				return err
			}
			if err := s.emitChanged(ctx, tx, item, actor); err != nil {
				return err
			}
			results = append(results, UpsertResult{Item: toView(*item), Created: created})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func upsertOne(ctx context.Context, repo *Repository, input UpsertInput) (*models.MenuItem, bool, error) {
	existing, err := repo.FindBySKU(ctx, input.SKU)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup menu item")
	}
	if existing == nil {
		item := &models.MenuItem{
			SKU:       input.SKU,
			Name:      input.Name,
			Category:  input.Category,
			Price:     input.Price,
			Cost:      input.Cost,
			InStock:   input.InStock == nil || *input.InStock,
			Hidden:    input.Hidden != nil && *input.Hidden,
			SortOrder: input.SortOrder,
		}
		if err := repo.Create(ctx, item); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create menu item")
		}
		return item, true, nil
	}

	existing.Name = input.Name
	existing.Category = input.Category
	existing.Price = input.Price
	existing.Cost = input.Cost
	existing.SortOrder = input.SortOrder
	if input.InStock != nil {
		existing.InStock = *input.InStock
	}
	if input.Hidden != nil {
		existing.Hidden = *input.Hidden
	}
	if err := repo.Save(ctx, existing); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update menu item")
	}
	return existing, false, nil
}

func normalizeUpsert(input UpsertInput) (UpsertInput, error) {
	input.SKU = strings.ToUpper(strings.TrimSpace(input.SKU))
	input.Name = strings.TrimSpace(input.Name)
	input.Category = strings.TrimSpace(input.Category)
	switch {
	case input.SKU == "":
		return input, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	case len(input.SKU) > maxSKULength:
		return input, pkgerrors.New(pkgerrors.CodeValidation, "sku is too long")
	case input.Name == "":
		return input, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case len([]rune(input.Name)) > maxNameLength:
		return input, pkgerrors.New(pkgerrors.CodeValidation, "name is too long")
	case input.Price.IsNegative():
		return input, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	case input.Cost.IsNegative():
		return input, pkgerrors.New(pkgerrors.CodeValidation, "cost must not be negative")
	case input.SortOrder < 0:
		return input, pkgerrors.New(pkgerrors.CodeValidation, "sort order must not be negative")
	}
	if input.Category == "" {
		input.Category = "other"
	}
	input.Price = input.Price.Round(0)
	input.Cost = input.Cost.Round(0)
	return input, nil
}

func (s *service) emitChanged(ctx context.Context, tx *gorm.DB, item *models.MenuItem, actor *Actor) error {
	var ref *outbox.ActorRef
	if actor != nil {
		ref = outbox.ActorFor(actor.UserID, actor.Role)
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventMenuItemChanged,
		AggregateType: enums.AggregateMenuItem,
		AggregateID:   item.ID,
		Actor:         ref,
		Data: payloads.MenuItemChangedEvent{
			MenuItemID: item.ID,
			SKU:        item.SKU,
			InStock:    item.InStock,
			Hidden:     item.Hidden,
			Price:      item.Price,
		},
	})
}

func lookupErr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup menu item")
}
