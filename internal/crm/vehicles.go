package crm

import (
	"context"
	"fmt"
)

// ListVehicles returns the full catalog ordered by model and price.
func (s *Store) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	var out []Vehicle
	if err := s.db.WithContext(ctx).Order("model, price_ex_showroom").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("crm: list vehicles: %w", err)
	}
	return out, nil
}

// SearchVehicles matches query against model, variant and fuel type,
// case-insensitively.
func (s *Store) SearchVehicles(ctx context.Context, query string) ([]Vehicle, error) {
	p := likePattern(query)
	var out []Vehicle
	err := s.db.WithContext(ctx).
		Where("LOWER(model) LIKE ? OR LOWER(variant) LIKE ? OR LOWER(fuel_type) LIKE ?", p, p, p).
		Order("model, price_ex_showroom").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("crm: search vehicles: %w", err)
	}
	return out, nil
}

// CurrentOffers returns model-specific offers plus the general offers. An
// empty model returns offers for every model that has one.
func (s *Store) CurrentOffers(ctx context.Context, model string) (*Offers, error) {
	q := s.db.WithContext(ctx).Where("current_offer <> ''")
	if model != "" {
		q = q.Where("LOWER(model) LIKE ?", likePattern(model))
	}
	var vehicles []Vehicle
	if err := q.Order("model").Find(&vehicles).Error; err != nil {
		return nil, fmt.Errorf("crm: offers: %w", err)
	}

	offers := &Offers{
		Model:         model,
		VehicleOffers: make(map[string]string, len(vehicles)),
		GeneralOffers: append([]string(nil), GeneralOffers...),
	}
	for _, v := range vehicles {
		if _, ok := offers.VehicleOffers[v.Model]; !ok {
			offers.VehicleOffers[v.Model] = v.CurrentOffer
		}
	}
	return offers, nil
}
