package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/settlement/internal/currency"
	"github.com/smallbiznis/settlement/internal/feerule"
	payoutdomain "github.com/smallbiznis/settlement/internal/payout/domain"
	revsharedomain "github.com/smallbiznis/settlement/internal/revenueshare/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SettlementFile is the on-disk shape of settlement.yml. Decimal values are strings
// so that rates never pass through float64.
type SettlementFile struct {
	BaseCurrency   string           `mapstructure:"baseCurrency"`
	BaseMinorUnits int32            `mapstructure:"baseMinorUnits"`
	Currencies     []CurrencyFile   `mapstructure:"currencies"`
	Rules          []RuleFile       `mapstructure:"rules"`
	PaymentMethods []MethodFeeFile  `mapstructure:"paymentMethods"`
	Payment        PaymentFile      `mapstructure:"payment"`
	Payout         PayoutFile       `mapstructure:"payout"`
	RevenueShare   RevenueShareFile `mapstructure:"revenueShare"`
}

type CurrencyFile struct {
	Code       string `mapstructure:"code"`
	RateToBase string `mapstructure:"rateToBase"`
	MinorUnits *int32 `mapstructure:"minorUnits"`
}

type RuleFile struct {
	ID        string     `mapstructure:"id"`
	Name      string     `mapstructure:"name"`
	Type      string     `mapstructure:"type"`
	Kind      string     `mapstructure:"kind"`
	Rate      string     `mapstructure:"rate"`
	Threshold *int64     `mapstructure:"threshold"`
	AppliesTo []string   `mapstructure:"appliesTo"`
	Priority  int        `mapstructure:"priority"`
	Bands     []BandFile `mapstructure:"bands"`
	Bearer    string     `mapstructure:"bearer"`
}

type BandFile struct {
	UpTo *int64 `mapstructure:"upTo"`
	Rate string `mapstructure:"rate"`
	Flat int64  `mapstructure:"flat"`
}

type MethodFeeFile struct {
	Method     string `mapstructure:"method"`
	Currency   string `mapstructure:"currency"`
	Provider   string `mapstructure:"provider"`
	Percentage string `mapstructure:"percentage"`
	Fixed      int64  `mapstructure:"fixed"`
	MinFee     *int64 `mapstructure:"minFee"`
	MaxFee     *int64 `mapstructure:"maxFee"`
}

type PaymentFile struct {
	Expiry              time.Duration `mapstructure:"expiry"`
	MaxProviderAttempts int           `mapstructure:"maxProviderAttempts"`
	RetryBackoff        time.Duration `mapstructure:"retryBackoff"`
	CallTimeout         time.Duration `mapstructure:"callTimeout"`
	ReconcileAfter      time.Duration `mapstructure:"reconcileAfter"`
	DefaultProvider     string        `mapstructure:"defaultProvider"`
}

type PayoutFile struct {
	Methods         []MethodFeeFile `mapstructure:"methods"`
	Policy          PolicyFile      `mapstructure:"policy"`
	MaxRetries      int             `mapstructure:"maxRetries"`
	RetryBackoff    time.Duration   `mapstructure:"retryBackoff"`
	MaxBackoff      time.Duration   `mapstructure:"maxBackoff"`
	CallTimeout     time.Duration   `mapstructure:"callTimeout"`
	ReconcileAfter  time.Duration   `mapstructure:"reconcileAfter"`
	DefaultProvider string          `mapstructure:"defaultProvider"`
}

type PolicyFile struct {
	AutoPayoutEnabled bool   `mapstructure:"autoPayoutEnabled"`
	Frequency         string `mapstructure:"frequency"`
	MinimumAmount     int64  `mapstructure:"minimumAmount"`
	MaximumAmount     int64  `mapstructure:"maximumAmount"`
	HoldingPeriodDays int    `mapstructure:"holdingPeriodDays"`
}

type RevenueShareFile struct {
	Name                         string                      `mapstructure:"name"`
	PlatformCommissionPercentage string                      `mapstructure:"platformCommissionPercentage"`
	PlatformCommissionFixed      int64                       `mapstructure:"platformCommissionFixed"`
	MinimumCommission            int64                       `mapstructure:"minimumCommission"`
	UserTypeRates                map[string]UserTypeRateFile `mapstructure:"userTypeRates"`
}

type UserTypeRateFile struct {
	Percentage        string `mapstructure:"percentage"`
	Fixed             int64  `mapstructure:"fixed"`
	MinimumCommission int64  `mapstructure:"minimumCommission"`
}

type PaymentSettings struct {
	Expiry              time.Duration
	MaxProviderAttempts int
	RetryBackoff        time.Duration
	CallTimeout         time.Duration
	ReconcileAfter      time.Duration
	DefaultProvider     string
}

type PayoutSettings struct {
	Fees            payoutdomain.FeeTable
	Policy          payoutdomain.SchedulePolicy
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxBackoff      time.Duration
	CallTimeout     time.Duration
	ReconcileAfter  time.Duration
	DefaultProvider string
}

// Settlement is one immutable, validated version of the settlement rules. Callers
// resolve it once per operation and keep using that value to the end.
type Settlement struct {
	Version      int64
	LoadedAt     time.Time
	Rates        *currency.RateTable
	Rules        *feerule.Engine
	Payment      PaymentSettings
	Payout       PayoutSettings
	RevenueShare revsharedomain.CreateRequest
}

func int64Ptr(v int64) *int64 { return &v }

// DefaultSettlementFile is the example rule set: Nigerian VAT at 7.5% plus a service
// levy, card and transfer fees, and a 2.5% platform commission.
func DefaultSettlementFile() SettlementFile {
	return SettlementFile{
		BaseCurrency:   "NGN",
		BaseMinorUnits: 2,
		Currencies: []CurrencyFile{
			{Code: "NGN", RateToBase: "1"},
			{Code: "USD", RateToBase: "1550"},
			{Code: "GHS", RateToBase: "105"},
		},
		Rules: []RuleFile{
			{Name: "VAT", Type: "tax", Kind: "percentage", Rate: "7.5", Priority: 10,
				AppliesTo: []string{"goods", "services", "food", "property", "jobs", "delivery", "digital"}},
			{Name: "ServiceTax", Type: "tax", Kind: "percentage", Rate: "5", Priority: 20,
				Threshold: int64Ptr(25_000), AppliesTo: []string{"services", "jobs"}},
		},
		PaymentMethods: []MethodFeeFile{
			{Method: "card", Currency: "NGN", Provider: "fake", Percentage: "1.5", Fixed: 100, MaxFee: int64Ptr(2_000)},
			{Method: "bank_transfer", Currency: "NGN", Provider: "fake", Percentage: "0", Fixed: 50},
			{Method: "card", Currency: "USD", Provider: "fake", Percentage: "3.9", Fixed: 30},
		},
		Payment: PaymentFile{
			Expiry:              30 * time.Minute,
			MaxProviderAttempts: 3,
			RetryBackoff:        200 * time.Millisecond,
			CallTimeout:         10 * time.Second,
			ReconcileAfter:      5 * time.Minute,
			DefaultProvider:     "fake",
		},
		Payout: PayoutFile{
			Methods: []MethodFeeFile{
				{Method: "bank_transfer", Percentage: "0", Fixed: 1_000},
				{Method: "mobile_money", Percentage: "1", Fixed: 0, MinFee: int64Ptr(500), MaxFee: int64Ptr(5_000)},
			},
			Policy: PolicyFile{
				AutoPayoutEnabled: true,
				Frequency:         "weekly",
				MinimumAmount:     500_000,
				MaximumAmount:     0,
				HoldingPeriodDays: 7,
			},
			MaxRetries:      5,
			RetryBackoff:    time.Minute,
			MaxBackoff:      6 * time.Hour,
			CallTimeout:     15 * time.Second,
			ReconcileAfter:  30 * time.Minute,
			DefaultProvider: "fake",
		},
		RevenueShare: RevenueShareFile{
			Name:                         "default",
			PlatformCommissionPercentage: "2.5",
		},
	}
}

// Build validates f and turns it into a Settlement.
func (f SettlementFile) Build(version int64, loadedAt time.Time) (*Settlement, error) {
	var errs []error

	currencies := make([]currency.Currency, 0, len(f.Currencies))
	for _, c := range f.Currencies {
		rate, err := parseDecimal("currency "+c.Code+" rateToBase", c.RateToBase)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		minor := int32(2)
		if c.MinorUnits != nil {
			minor = *c.MinorUnits
		}
		currencies = append(currencies, currency.Currency{Code: c.Code, RateToBase: rate, MinorUnits: minor})
	}
	baseMinor := f.BaseMinorUnits
	if baseMinor == 0 {
		baseMinor = 2
	}
	rates, err := currency.NewRateTable(f.BaseCurrency, currencies, baseMinor)
	if err != nil {
		errs = append(errs, err)
	}

	rules := make([]feerule.Rule, 0, len(f.Rules))
	for _, r := range f.Rules {
		rule, err := r.toRule()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, rule)
	}
	methodFees := make([]feerule.MethodFee, 0, len(f.PaymentMethods))
	for _, m := range f.PaymentMethods {
		pct, err := parseDecimal("payment method "+m.Method+" percentage", m.Percentage)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rates != nil && !rates.Supports(m.Currency) {
			errs = append(errs, fmt.Errorf("payment method %s: %w: %s", m.Method, currency.ErrUnsupportedCurrency, m.Currency))
			continue
		}
		methodFees = append(methodFees, feerule.MethodFee{
			Method:     m.Method,
			Currency:   m.Currency,
			Provider:   strings.ToLower(strings.TrimSpace(m.Provider)),
			Percentage: pct,
			Fixed:      m.Fixed,
			MinFee:     m.MinFee,
			MaxFee:     m.MaxFee,
		})
	}
	engine, err := feerule.NewEngine(rules, methodFees)
	if err != nil {
		errs = append(errs, err)
	}

	payout, err := f.Payout.toSettings()
	if err != nil {
		errs = append(errs, err)
	}
	seed, err := f.RevenueShare.toRequest()
	if err != nil {
		errs = append(errs, err)
	}

	payment := f.Payment.withDefaults()
	if payment.MaxProviderAttempts < 1 {
		errs = append(errs, errors.New("payment.maxProviderAttempts must be at least 1"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Settlement{
		Version:      version,
		LoadedAt:     loadedAt.UTC(),
		Rates:        rates,
		Rules:        engine,
		Payment:      payment,
		Payout:       payout,
		RevenueShare: seed,
	}, nil
}

func (r RuleFile) toRule() (feerule.Rule, error) {
	rate := decimal.Zero
	if strings.TrimSpace(r.Rate) != "" {
		parsed, err := parseDecimal("rule "+r.Name+" rate", r.Rate)
		if err != nil {
			return feerule.Rule{}, err
		}
		rate = parsed
	}
	categories := make([]feerule.Category, 0, len(r.AppliesTo))
	for _, c := range r.AppliesTo {
		parsed, err := feerule.ParseCategory(c)
		if err != nil {
			return feerule.Rule{}, fmt.Errorf("rule %s: %w", r.Name, err)
		}
		categories = append(categories, parsed)
	}
	bands := make([]feerule.Band, 0, len(r.Bands))
	for i, b := range r.Bands {
		bandRate, err := parseDecimal(fmt.Sprintf("rule %s band %d rate", r.Name, i), b.Rate)
		if err != nil {
			return feerule.Rule{}, err
		}
		bands = append(bands, feerule.Band{UpTo: b.UpTo, Rate: bandRate, Flat: b.Flat})
	}
	return feerule.Rule{
		ID:        r.ID,
		Name:      r.Name,
		Type:      feerule.RuleType(strings.ToLower(strings.TrimSpace(r.Type))),
		Kind:      feerule.Kind(strings.ToLower(strings.TrimSpace(r.Kind))),
		Rate:      rate,
		Threshold: r.Threshold,
		AppliesTo: categories,
		Priority:  r.Priority,
		Bands:     bands,
		Bearer:    feerule.Bearer(strings.ToLower(strings.TrimSpace(r.Bearer))),
	}, nil
}

func (p PaymentFile) withDefaults() PaymentSettings {
	out := PaymentSettings{
		Expiry:              p.Expiry,
		MaxProviderAttempts: p.MaxProviderAttempts,
		RetryBackoff:        p.RetryBackoff,
		CallTimeout:         p.CallTimeout,
		ReconcileAfter:      p.ReconcileAfter,
		DefaultProvider:     strings.ToLower(strings.TrimSpace(p.DefaultProvider)),
	}
	if out.Expiry <= 0 {
		out.Expiry = 30 * time.Minute
	}
	if out.MaxProviderAttempts == 0 {
		out.MaxProviderAttempts = 3
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = 10 * time.Second
	}
	if out.ReconcileAfter <= 0 {
		out.ReconcileAfter = 5 * time.Minute
	}
	return out
}

func (p PayoutFile) toSettings() (PayoutSettings, error) {
	fees := make([]payoutdomain.MethodFee, 0, len(p.Methods))
	for _, m := range p.Methods {
		pct, err := parseDecimal("payout method "+m.Method+" percentage", m.Percentage)
		if err != nil {
			return PayoutSettings{}, err
		}
		fees = append(fees, payoutdomain.MethodFee{
			Method:     m.Method,
			Percentage: pct,
			Fixed:      m.Fixed,
			MinFee:     m.MinFee,
			MaxFee:     m.MaxFee,
		})
	}
	table, err := payoutdomain.NewFeeTable(fees)
	if err != nil {
		return PayoutSettings{}, err
	}
	freq, err := payoutdomain.ParseFrequency(p.Policy.Frequency)
	if err != nil {
		return PayoutSettings{}, err
	}
	policy := payoutdomain.SchedulePolicy{
		AutoPayoutEnabled: p.Policy.AutoPayoutEnabled,
		Frequency:         freq,
		MinimumAmount:     p.Policy.MinimumAmount,
		MaximumAmount:     p.Policy.MaximumAmount,
		HoldingPeriodDays: p.Policy.HoldingPeriodDays,
	}
	if err := policy.Validate(); err != nil {
		return PayoutSettings{}, err
	}
	if p.MaxRetries < 0 {
		return PayoutSettings{}, errors.New("payout.maxRetries cannot be negative")
	}

	out := PayoutSettings{
		Fees:            table,
		Policy:          policy,
		MaxRetries:      p.MaxRetries,
		RetryBackoff:    p.RetryBackoff,
		MaxBackoff:      p.MaxBackoff,
		CallTimeout:     p.CallTimeout,
		ReconcileAfter:  p.ReconcileAfter,
		DefaultProvider: strings.ToLower(strings.TrimSpace(p.DefaultProvider)),
	}
	if out.MaxRetries == 0 {
		out.MaxRetries = 5
	}
	if out.RetryBackoff <= 0 {
		out.RetryBackoff = time.Minute
	}
	if out.MaxBackoff < out.RetryBackoff {
		out.MaxBackoff = out.RetryBackoff
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = 15 * time.Second
	}
	if out.ReconcileAfter <= 0 {
		out.ReconcileAfter = 30 * time.Minute
	}
	return out, nil
}

func (r RevenueShareFile) toRequest() (revsharedomain.CreateRequest, error) {
	pct, err := parseDecimal("revenueShare.platformCommissionPercentage", r.PlatformCommissionPercentage)
	if err != nil {
		return revsharedomain.CreateRequest{}, err
	}
	rates := make(revsharedomain.UserTypeRates, len(r.UserTypeRates))
	for role, rate := range r.UserTypeRates {
		ratePct, err := parseDecimal("revenueShare.userTypeRates."+role, rate.Percentage)
		if err != nil {
			return revsharedomain.CreateRequest{}, err
		}
		rates[role] = revsharedomain.UserTypeRate{
			Percentage:        ratePct,
			Fixed:             rate.Fixed,
			MinimumCommission: rate.MinimumCommission,
		}
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = "default"
	}
	req := revsharedomain.CreateRequest{
		Name:                         name,
		PlatformCommissionPercentage: pct,
		PlatformCommissionFixed:      r.PlatformCommissionFixed,
		MinimumCommission:            r.MinimumCommission,
		UserTypeRates:                rates,
	}
	return req, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q", field, raw)
	}
	return d, nil
}

// SettlementHolder serves the current Settlement and swaps it on file changes.
type SettlementHolder struct {
	current atomic.Pointer[Settlement]
	version atomic.Int64
	log     *zap.Logger
}

// NewStaticSettlementHolder serves a fixed file; it never reloads.
func NewStaticSettlementHolder(f SettlementFile) (*SettlementHolder, error) {
	h := &SettlementHolder{log: zap.NewNop()}
	if err := h.apply(f); err != nil {
		return nil, err
	}
	return h, nil
}

// NewSettlementHolder reads settlement.yml from path (or the default search paths
// when path is empty) and watches it for changes. Without a file the built-in
// default rule set is used.
func NewSettlementHolder(path string, log *zap.Logger) (*SettlementHolder, error) {
	h := &SettlementHolder{log: log.Named("settlement.config")}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("settlement")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/settlement")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		h.log.Info("settlement config file not found, using defaults")
		if err := h.apply(DefaultSettlementFile()); err != nil {
			return nil, err
		}
		return h, nil
	}

	f, err := decodeSettlement(v)
	if err != nil {
		return nil, err
	}
	if err := h.apply(f); err != nil {
		return nil, err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSettlement(v)
		if err != nil {
			h.log.Warn("settlement config reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := h.apply(updated); err != nil {
			h.log.Warn("invalid settlement config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		h.log.Info("settlement config reloaded",
			zap.String("file", e.Name),
			zap.Int64("version", h.Current().Version),
		)
	})

	return h, nil
}

func decodeSettlement(v *viper.Viper) (SettlementFile, error) {
	f := DefaultSettlementFile()
	if v.IsSet("settlement") {
		f = SettlementFile{}
		if err := v.UnmarshalKey("settlement", &f); err != nil {
			return SettlementFile{}, err
		}
	}
	return f, nil
}

func (h *SettlementHolder) apply(f SettlementFile) error {
	s, err := f.Build(h.version.Load()+1, time.Now())
	if err != nil {
		return err
	}
	h.version.Store(s.Version)
	h.current.Store(s)
	return nil
}

// Current returns the settlement rules in force.
func (h *SettlementHolder) Current() *Settlement {
	return h.current.Load()
}
