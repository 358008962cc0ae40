package adapters

import (
	"strings"
	"sync"

	"github.com/smallbiznis/settlement/internal/provider/domain"
)

// Registry resolves adapters by provider name. It is filled at startup.
type Registry struct {
	mu       sync.RWMutex
	payments map[string]domain.PaymentAdapter
	payouts  map[string]domain.PayoutAdapter
}

func NewRegistry() *Registry {
	return &Registry{
		payments: map[string]domain.PaymentAdapter{},
		payouts:  map[string]domain.PayoutAdapter{},
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) RegisterPayment(adapter domain.PaymentAdapter) {
	if adapter == nil || normalize(adapter.Name()) == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[normalize(adapter.Name())] = adapter
}

func (r *Registry) RegisterPayout(adapter domain.PayoutAdapter) {
	if adapter == nil || normalize(adapter.Name()) == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payouts[normalize(adapter.Name())] = adapter
}

func (r *Registry) Payment(name string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.payments[normalize(name)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

func (r *Registry) Payout(name string) (domain.PayoutAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.payouts[normalize(name)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

// CallbackParser returns the webhook parser of the named provider, looking at the
// payment adapter first.
func (r *Registry) CallbackParser(name string) (domain.CallbackParser, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.payments[normalize(name)].(domain.CallbackParser); ok {
		return p, nil
	}
	if p, ok := r.payouts[normalize(name)].(domain.CallbackParser); ok {
		return p, nil
	}
	return nil, domain.ErrProviderNotFound
}
