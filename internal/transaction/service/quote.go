package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/settlement/internal/config"
	"github.com/smallbiznis/settlement/internal/currency"
	"github.com/smallbiznis/settlement/internal/feerule"
	revsharedomain "github.com/smallbiznis/settlement/internal/revenueshare/domain"
	"github.com/smallbiznis/settlement/internal/transaction/domain"
)

func (s *Service) Quote(ctx context.Context, req domain.InitializeRequest) (*domain.Quote, error) {
	q, _, err := s.quote(ctx, s.settlement.Current(), req)
	return q, err
}

// quote validates and prices req against one settlement snapshot. Nothing is
// persisted and no provider is called.
func (s *Service) quote(ctx context.Context, snap *config.Settlement, req domain.InitializeRequest) (*domain.Quote, *revsharedomain.Configuration, error) {
	if req.Amount <= 0 {
		return nil, nil, domain.ErrInvalidAmount
	}
	if strings.TrimSpace(req.PayerID) == "" {
		return nil, nil, domain.ErrInvalidPayer
	}
	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		return nil, nil, domain.ErrInvalidPaymentMethod
	}
	cur := currency.Normalize(req.Currency)
	category, err := feerule.ParseCategory(req.Category)
	if err != nil {
		return nil, nil, err
	}

	amountInBase, err := snap.Rates.ToBase(req.Amount, cur)
	if err != nil {
		return nil, nil, err
	}
	charges, err := snap.Rules.Evaluate(req.Amount, category, feerule.Context{Currency: cur, PaymentMethod: method})
	if err != nil {
		return nil, nil, err
	}
	methodFee, err := snap.Rules.MethodFee(method, cur)
	if err != nil {
		return nil, nil, err
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = methodFee.Provider
	}
	if provider == "" {
		provider = snap.Payment.DefaultProvider
	}
	if _, err := s.providers.Payment(provider); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", err, provider)
	}

	rsConfig, err := s.revshare.GetDefault(ctx)
	if err != nil {
		return nil, nil, err
	}
	sellerBorne := make([]revsharedomain.AdditionalFee, 0)
	for _, line := range charges.SellerBorne() {
		sellerBorne = append(sellerBorne, revsharedomain.AdditionalFee{
			RuleID: line.RuleID,
			Name:   line.Name,
			Type:   string(line.Type),
			Amount: line.Amount,
		})
	}
	var split revsharedomain.Snapshot
	if payee := strings.TrimSpace(req.PayeeID); payee != "" {
		split, err = revsharedomain.Split(req.Amount, revsharedomain.SellerContext{
			SellerID: payee,
			UserType: strings.TrimSpace(req.SellerUserType),
		}, *rsConfig, sellerBorne)
	} else {
		split, err = revsharedomain.PlatformOnly(req.Amount, *rsConfig, sellerBorne)
	}
	if err != nil {
		return nil, nil, err
	}

	totals := charges.Totals()
	q := &domain.Quote{
		Amount:               req.Amount,
		Currency:             cur,
		BaseCurrency:         snap.Rates.Base(),
		AmountInBaseCurrency: amountInBase,
		Category:             category,
		Charges:              charges,
		TaxAmount:            totals.Taxes,
		TotalAmount:          req.Amount + totals.PayerCharges,
		Split:                split,
		Provider:             provider,
		ConfigVersion:        snap.Version,
	}
	for _, line := range charges.Fees {
		if line.Method != "" {
			q.ProviderFee += line.Amount
		} else {
			q.ProcessingFee += line.Amount
		}
	}
	return q, rsConfig, nil
}
