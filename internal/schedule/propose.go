package schedule

import (
	"context"

	"github.com/ariel-montero/clinicsched/internal/timeutil"
)

// ProposeSlot finds the earliest slot satisfying the request without
// persisting anything. ErrNoSlotAvailable when the search bounds are
// exhausted; ErrSlotConflict when an exact-only request does not fit.
func (e *Engine) ProposeSlot(ctx context.Context, req SlotRequest) (*Proposal, error) {
	req.normalize()
	if !req.Therapy.Valid() {
		return nil, ErrInvalidRequest
	}
	_, preferred, err := e.resolvePatient(ctx, req.Criteria)
	if err != nil {
		return nil, err
	}
	return e.planSlot(ctx, req, preferred)
}

// planSlot runs the three search modes of the proposer: exact slot,
// same-day forward scan, then the multi-day scan.
func (e *Engine) planSlot(ctx context.Context, req SlotRequest, preferredID string) (*Proposal, error) {
	duration, err := e.resolveDuration(ctx, req.Criteria)
	if err != nil {
		return nil, err
	}

	// Explicit date and time: test the exact slot, then slide forward in
	// 15-minute steps until the daily closing bound.
	if !req.Date.IsZero() && req.StartMin >= 0 {
		date := timeutil.Day(req.Date)
		prop, err := e.evaluateSlot(ctx, req.Criteria, date, req.StartMin, duration, preferredID)
		if err != nil {
			return nil, err
		}
		if prop != nil {
			return prop, nil
		}
		if req.ExactOnly {
			return nil, ErrSlotConflict
		}
		for t := req.StartMin + sameDayStepMin; t+duration <= req.DayEndMin; t += sameDayStepMin {
			prop, err := e.evaluateSlot(ctx, req.Criteria, date, t, duration, preferredID)
			if err != nil {
				return nil, err
			}
			if prop != nil {
				prop.Adjusted = true
				return prop, nil
			}
		}
		return nil, ErrNoSlotAvailable
	}

	// Date or time omitted: scan day by day inside the preferred window,
	// bounded by the calendar horizon.
	anchor := timeutil.Day(e.now())
	if !req.Date.IsZero() {
		anchor = timeutil.Day(req.Date)
	}
	for d := 0; d < searchHorizonDays; d++ {
		date := anchor.AddDate(0, 0, d)
		if req.StartMin >= 0 {
			// Fixed time, flexible date.
			prop, err := e.evaluateSlot(ctx, req.Criteria, date, req.StartMin, duration, preferredID)
			if err != nil {
				return nil, err
			}
			if prop != nil {
				return prop, nil
			}
			continue
		}
		for t := req.DayStartMin; t+duration <= req.DayEndMin; t += daySearchStepMin {
			prop, err := e.evaluateSlot(ctx, req.Criteria, date, t, duration, preferredID)
			if err != nil {
				return nil, err
			}
			if prop != nil {
				return prop, nil
			}
		}
	}
	return nil, ErrNoSlotAvailable
}
