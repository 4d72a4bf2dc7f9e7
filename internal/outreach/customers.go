package outreach

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/outreach-console/internal/apperrors"
	"github.com/wolfman30/outreach-console/internal/calls"
	"github.com/wolfman30/outreach-console/internal/customers"
)

// rankingFetchLimit bounds how many customers one ranking pass reads.
const rankingFetchLimit = 1000

// RefreshCustomers returns the ranked customers, reloading them when the
// cache is empty, older than the freshness window, or force is set.
// Concurrent reloads share one fetch. A reload re-validates the call target.
func (o *Orchestrator) RefreshCustomers(ctx context.Context, force bool) ([]customers.RankedCustomer, error) {
	if o.deps.Customers == nil {
		return nil, apperrors.Precondition("refresh customers", "no customer source configured")
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if !force && o.freshLocked() {
		out := append([]customers.RankedCustomer{}, o.ranked...)
		o.mu.Unlock()
		return out, nil
	}
	o.mu.Unlock()

	key := "ranking"
	if force {
		key = "ranking:force"
	}
	v, err, _ := o.refresh.Do(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.Timeout)
		defer cancel()
		list, err := o.deps.Customers.List(callCtx, customers.ListFilter{Limit: rankingFetchLimit})
		if err != nil {
			return nil, apperrors.External("customers", "list", err)
		}
		ranked := customers.Rank(list)

		o.mu.Lock()
		o.ranked = ranked
		o.rankedAt = o.cfg.Now()
		o.revalidateTargetLocked()
		o.mu.Unlock()
		return ranked, nil
	})
	if err != nil {
		o.notify(LevelError, "Could not load customers: "+err.Error())
		return nil, err
	}
	return append([]customers.RankedCustomer{}, v.([]customers.RankedCustomer)...), nil
}

func (o *Orchestrator) freshLocked() bool {
	return !o.rankedAt.IsZero() && o.cfg.Now().Sub(o.rankedAt) < o.cfg.RankingFreshness
}

// revalidateTargetLocked keeps the call target consistent with a new
// ranking. An automatic target follows the top callable customer, a chosen
// customer that left the ranking is cleared, and a manual target is kept.
func (o *Orchestrator) revalidateTargetLocked() {
	top := customers.WithPhone(o.ranked)

	switch {
	case o.target == nil || o.target.Auto:
		if len(top) == 0 {
			if o.target != nil {
				o.setTargetLocked(nil)
				o.notifyLocked(LevelWarn, "No ranked customer has a phone number; call target cleared")
			}
			return
		}
		next := targetFrom(top[0].Customer)
		next.Auto = true
		if o.target == nil || o.target.CustomerID != next.CustomerID || o.target.Phone != next.Phone {
			o.setTargetLocked(next)
			o.notifyLocked(LevelInfo, "Call target set to top customer "+next.Name)
		}
	case o.target.Manual:
	default:
		for _, rc := range o.ranked {
			if rc.ID == o.target.CustomerID {
				return
			}
		}
		name := o.target.Name
		o.setTargetLocked(nil)
		o.notifyLocked(LevelWarn, fmt.Sprintf("%s is no longer in the ranking; call target cleared", name))
	}
}

// setTargetLocked replaces the target. A different target discards every
// script variant and invalidates pending script generations.
func (o *Orchestrator) setTargetLocked(t *Target) {
	o.target = t
	o.script = ScriptState{}
	o.targetEpoch++
}

// SelectCustomer makes a ranked customer the call target.
func (o *Orchestrator) SelectCustomer(ctx context.Context, id string) (Target, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Target{}, apperrors.Precondition("select customer", "customer id is required")
	}
	ranked, err := o.RefreshCustomers(ctx, false)
	if err != nil {
		return Target{}, err
	}

	var found *customers.Customer
	for i := range ranked {
		if ranked[i].ID == id {
			found = &ranked[i].Customer
			break
		}
	}
	if found == nil {
		return Target{}, fmt.Errorf("outreach: select %s: %w", id, customers.ErrCustomerNotFound)
	}
	if strings.TrimSpace(found.Phone) == "" {
		return Target{}, apperrors.Precondition("select customer", "customer has no phone number")
	}

	t := targetFrom(*found)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return Target{}, ErrClosed
	}
	o.setTargetLocked(t)
	return *t, nil
}

// SetManualTarget targets a phone number that is not in the ranking.
func (o *Orchestrator) SetManualTarget(name, phone string) (Target, error) {
	if strings.TrimSpace(phone) == "" {
		return Target{}, apperrors.Precondition("set target", "phone number is required")
	}
	formatted := calls.FormatPhone(phone)
	if formatted == "" {
		return Target{}, apperrors.Precondition("set target", "phone number must contain digits")
	}
	t := &Target{Name: strings.TrimSpace(name), Phone: formatted, Manual: true}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return Target{}, ErrClosed
	}
	o.setTargetLocked(t)
	return *t, nil
}

func targetFrom(c customers.Customer) *Target {
	return &Target{
		CustomerID: c.ID,
		Name:       c.Label(),
		Phone:      calls.FormatPhone(c.Phone),
		Email:      c.Email,
	}
}
