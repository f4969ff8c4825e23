package orders

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// QUERIES
// =============================================================================

// SearchType selects which order attribute a search text is matched against.
type SearchType string

const (
	SearchAll        SearchType = "all"
	SearchCaregiver  SearchType = "caregiver"
	SearchClient     SearchType = "client"
	SearchDispatcher SearchType = "dispatcher"
	SearchDate       SearchType = "date"
)

// SearchQuery narrows Search. An empty Text lists every order.
type SearchQuery struct {
	Text   string
	Type   SearchType
	Status staffing.OrderStatus
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id string) (*staffing.Order, error) {
	o, err := loadOrder(ctx, s.store, id)
	if err != nil {
		return nil, s.fail("get_order", err)
	}
	return o, nil
}

// Search lists orders newest first.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]staffing.Order, error) {
	base := staffing.OrderFilter{}
	if q.Status != "" {
		if !q.Status.Valid() {
			verrs := staffing.ValidationErrors{}
			verrs.Add("status", "unknown order status")
			return nil, s.fail("search_orders", verrs)
		}
		base.Statuses = []staffing.OrderStatus{q.Status}
	}

	text := strings.TrimSpace(q.Text)
	if text == "" {
		result, err := s.store.ListOrders(ctx, base)
		if err != nil {
			return nil, s.fail("search_orders", err)
		}
		return result, nil
	}

	var filters []staffing.OrderFilter
	switch q.Type {
	case SearchCaregiver:
		f, ok, err := s.caregiverFilter(ctx, base, text)
		if err != nil {
			return nil, s.fail("search_orders", err)
		}
		if ok {
			filters = append(filters, f)
		}
	case SearchClient:
		f := base
		f.ClientQuery = text
		filters = append(filters, f)
	case SearchDispatcher:
		f := base
		f.DispatcherQuery = text
		filters = append(filters, f)
	case SearchDate:
		day, err := staffing.ParseDay(text)
		if err != nil {
			verrs := staffing.ValidationErrors{}
			verrs.Add("search", "must be a date (YYYY-MM-DD)")
			return nil, s.fail("search_orders", verrs)
		}
		f := base
		f.Overlapping = &staffing.Period{Start: day, End: day}
		filters = append(filters, f)
	case SearchAll, "":
		if f, ok, err := s.caregiverFilter(ctx, base, text); err != nil {
			return nil, s.fail("search_orders", err)
		} else if ok {
			filters = append(filters, f)
		}
		client, dispatcher := base, base
		client.ClientQuery = text
		dispatcher.DispatcherQuery = text
		filters = append(filters, client, dispatcher)
		if day, err := staffing.ParseDay(text); err == nil {
			f := base
			f.Overlapping = &staffing.Period{Start: day, End: day}
			filters = append(filters, f)
		}
	default:
		verrs := staffing.ValidationErrors{}
		verrs.Add("type", "must be one of all, caregiver, client, dispatcher, date")
		return nil, s.fail("search_orders", verrs)
	}

	seen := make(map[string]bool)
	var result []staffing.Order
	for _, f := range filters {
		found, err := s.store.ListOrders(ctx, f)
		if err != nil {
			return nil, s.fail("search_orders", err)
		}
		for _, o := range found {
			if !seen[o.ID] {
				seen[o.ID] = true
				result = append(result, o)
			}
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// caregiverFilter turns caregiver search text into a CaregiverIDs filter.
// ok is false when no caregiver matches.
func (s *Service) caregiverFilter(ctx context.Context, base staffing.OrderFilter, text string) (staffing.OrderFilter, bool, error) {
	caregivers, err := s.store.SearchCaregivers(ctx, staffing.CaregiverFilter{Query: text})
	if err != nil {
		return base, false, err
	}
	if len(caregivers) == 0 {
		return base, false, nil
	}
	f := base
	for _, c := range caregivers {
		f.CaregiverIDs = append(f.CaregiverIDs, c.ID)
	}
	return f, true, nil
}

// TimelineEntry is one booking on a caregiver's schedule.
type TimelineEntry struct {
	OrderID     string
	OrderNo     string
	ClientName  string
	Period      staffing.Period
	Status      staffing.OrderStatus
	TotalAmount decimal.Decimal
}

// Timeline returns a caregiver's non-cancelled orders by start date.
func (s *Service) Timeline(ctx context.Context, caregiverID string) ([]TimelineEntry, error) {
	caregiver, err := s.store.GetCaregiver(ctx, caregiverID)
	if err != nil {
		return nil, s.fail("caregiver_timeline", err)
	}
	if caregiver == nil {
		return nil, s.fail("caregiver_timeline", caregiverNotFound(caregiverID))
	}
	list, err := s.store.ListOrders(ctx, staffing.OrderFilter{
		CaregiverIDs:    []string{caregiver.ID},
		ExcludeStatuses: []staffing.OrderStatus{staffing.OrderCancelled},
	})
	if err != nil {
		return nil, s.fail("caregiver_timeline", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Period.Start.Before(list[j].Period.Start)
	})

	entries := make([]TimelineEntry, 0, len(list))
	for _, o := range list {
		entries = append(entries, TimelineEntry{
			OrderID:     o.ID,
			OrderNo:     o.OrderNo,
			ClientName:  o.ClientName,
			Period:      o.Period,
			Status:      o.Status,
			TotalAmount: o.TotalAmount,
		})
	}
	return entries, nil
}
