package paymentmethod

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// API is the slice of the Invoicing API the provisioner needs.
type API interface {
	ListPaymentMethods(ctx context.Context, entityID string, filter domain.PaymentMethodFilter) ([]domain.PaymentMethodInstance, error)
	CreatePaymentMethod(ctx context.Context, entityID string, spec domain.PaymentMethodSpec) (*domain.PaymentMethodInstance, error)
}

// Provisioner runs selection side effects against the Invoicing API.
type Provisioner struct {
	api    API
	locker Locker
	log    zerolog.Logger
}

// NewProvisioner creates a Provisioner. A nil locker uses an in-process lock.
func NewProvisioner(api API, locker Locker, log zerolog.Logger) *Provisioner {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Provisioner{api: api, locker: locker, log: log}
}

// EnsureOffPlatform returns the entity's off-platform instance, creating it
// when absent. The existing list is re-queried under the lock right before
// creating, and an "already exists" answer is treated as success.
func (p *Provisioner) EnsureOffPlatform(ctx context.Context, entityID string, role domain.PaymentRole) (*domain.PaymentMethodInstance, error) {
	release, err := p.locker.Acquire(ctx, LockKey(entityID))
	switch {
	case errors.Is(err, ErrLockNotAcquired):
		// Another caller is provisioning; its result is what we want.
		p.log.Warn().Str("entity_id", entityID).Msg("Off-platform lock busy, re-querying")
		existing, findErr := p.findOffPlatform(ctx, entityID)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return existing, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeConflict, "off-platform payment method is being provisioned", err)
	case err != nil:
		return nil, apperrors.Internal("failed to lock off-platform provisioning", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			p.log.Warn().Err(err).Str("entity_id", entityID).Msg("Failed to release off-platform lock")
		}
	}()

	existing, err := p.findOffPlatform(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	created, err := p.api.CreatePaymentMethod(ctx, entityID, domain.PaymentMethodSpec{Type: domain.PaymentMethodOffPlatform})
	if err != nil {
		if lostCreateRace(err) {
			existing, findErr := p.findOffPlatform(ctx, entityID)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, apperrors.External("create off-platform payment method", err)
	}

	p.log.Info().
		Str("entity_id", entityID).
		Str("role", string(role)).
		Str("payment_method_id", created.ID).
		Msg("Off-platform payment method created")
	return created, nil
}

// lostCreateRace reports whether a create failed because another writer got
// there first. A bare 409 surfaces as a stale transition or conflict.
func lostCreateRace(err error) bool {
	return apperrors.Is(err, apperrors.ErrCodeAlreadyExists) ||
		apperrors.Is(err, apperrors.ErrCodeStaleTransition) ||
		apperrors.Is(err, apperrors.ErrCodeConflict)
}

func (p *Provisioner) findOffPlatform(ctx context.Context, entityID string) (*domain.PaymentMethodInstance, error) {
	filter := domain.PaymentMethodFilter{Type: domain.PaymentMethodOffPlatform}
	list, err := p.api.ListPaymentMethods(ctx, entityID, filter)
	if err != nil {
		return nil, apperrors.External("list payment methods", err)
	}
	for _, inst := range list {
		if filter.Matches(inst) {
			found := inst
			return &found, nil
		}
	}
	return nil, nil
}

// Resolve runs Select and executes any side effects, returning a final
// selection and the instance list it was computed over.
func (p *Provisioner) Resolve(ctx context.Context, in SelectInput) (Selection, []domain.PaymentMethodInstance, error) {
	sel := Select(in)
	return p.Finalize(ctx, in, sel)
}

// Finalize executes the side effects of sel.
func (p *Provisioner) Finalize(ctx context.Context, in SelectInput, sel Selection) (Selection, []domain.PaymentMethodInstance, error) {
	instances := in.Instances
	for _, fx := range sel.SideEffects {
		if fx.Kind != SideEffectCreateOffPlatform {
			continue
		}
		inst, err := p.EnsureOffPlatform(ctx, fx.EntityID, fx.Role)
		if err != nil {
			return sel, instances, err
		}
		if !containsInstance(instances, inst.ID) {
			instances = append(append([]domain.PaymentMethodInstance(nil), instances...), *inst)
		}
		sel = Provisioned(sel, *inst)
	}
	return sel, instances, nil
}

func containsInstance(list []domain.PaymentMethodInstance, id string) bool {
	for _, inst := range list {
		if inst.ID == id {
			return true
		}
	}
	return false
}
