package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlement/internal/clock"
	"github.com/smallbiznis/settlement/internal/revenueshare/domain"
	"github.com/smallbiznis/settlement/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("revenueshare.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Configuration, error) {
	now := s.clock.Now()
	cfg := &domain.Configuration{
		ID:                           s.genID.Generate(),
		Name:                         strings.TrimSpace(req.Name),
		Version:                      1,
		PlatformCommissionPercentage: req.PlatformCommissionPercentage,
		PlatformCommissionFixed:      req.PlatformCommissionFixed,
		MinimumCommission:            req.MinimumCommission,
		UserTypeRates:                datatypes.NewJSONType(copyRates(req.UserTypeRates)),
		IsDefault:                    req.IsDefault,
		IsActive:                     true,
		CreatedAt:                    now,
		UpdatedAt:                    now,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cfg.IsDefault {
			if err := s.repo.ClearDefault(ctx, tx); err != nil {
				return err
			}
		}
		return s.repo.Insert(ctx, tx, cfg)
	})
	if db.IsDuplicateKeyErr(err) {
		return nil, domain.ErrConfigurationExists
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("revenue share configuration created",
		zap.String("configuration_id", cfg.ID.String()),
		zap.String("name", cfg.Name),
		zap.Bool("is_default", cfg.IsDefault),
	)
	return cfg, nil
}

// Revise creates the next version of a configuration. The previous version keeps its
// values so snapshots that reference it stay explainable.
func (s *Service) Revise(ctx context.Context, id snowflake.ID, req domain.ReviseRequest) (*domain.Configuration, error) {
	var revised *domain.Configuration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrConfigurationNotFound
		}
		if !current.IsActive {
			return domain.ErrConfigurationInactive
		}

		now := s.clock.Now()
		// The copy keeps IsDefault, so revising the default keeps a default in place.
		next := *current
		next.ID = s.genID.Generate()
		next.Version = current.Version + 1
		next.IsActive = true
		next.SupersededBy = nil
		next.CreatedAt = now
		next.UpdatedAt = now
		if req.PlatformCommissionPercentage != nil {
			next.PlatformCommissionPercentage = *req.PlatformCommissionPercentage
		}
		if req.PlatformCommissionFixed != nil {
			next.PlatformCommissionFixed = *req.PlatformCommissionFixed
		}
		if req.MinimumCommission != nil {
			next.MinimumCommission = *req.MinimumCommission
		}
		if req.UserTypeRates != nil {
			next.UserTypeRates = datatypes.NewJSONType(copyRates(req.UserTypeRates))
		} else {
			next.UserTypeRates = datatypes.NewJSONType(copyRates(current.Rates()))
		}
		if err := next.Validate(); err != nil {
			return err
		}

		if err := s.repo.Insert(ctx, tx, &next); err != nil {
			return err
		}
		ok, err := s.repo.Supersede(ctx, tx, current.ID, next.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConfigurationInactive
		}
		revised = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("revenue share configuration revised",
		zap.String("configuration_id", revised.ID.String()),
		zap.String("superseded", id.String()),
		zap.Int("version", revised.Version),
	)
	return revised, nil
}

func (s *Service) SetDefault(ctx context.Context, id snowflake.ID) (*domain.Configuration, error) {
	var cfg *domain.Configuration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrConfigurationNotFound
		}
		if !current.IsActive {
			return domain.ErrConfigurationInactive
		}
		if err := s.repo.ClearDefault(ctx, tx); err != nil {
			return err
		}
		ok, err := s.repo.MarkDefault(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConfigurationInactive
		}
		current.IsDefault = true
		cfg = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Configuration, error) {
	cfg, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, domain.ErrConfigurationNotFound
	}
	return cfg, nil
}

func (s *Service) GetDefault(ctx context.Context) (*domain.Configuration, error) {
	cfg, err := s.repo.FindDefault(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, domain.ErrNoDefaultConfiguration
	}
	return cfg, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Configuration, error) {
	return s.repo.List(ctx, s.db)
}

// EnsureDefault seeds the first configuration on an empty store.
func (s *Service) EnsureDefault(ctx context.Context, seed domain.CreateRequest) (*domain.Configuration, error) {
	count, err := s.repo.Count(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		cfg, err := s.GetDefault(ctx)
		if errors.Is(err, domain.ErrNoDefaultConfiguration) {
			s.log.Warn("revenue share configurations exist but none is default")
		}
		return cfg, err
	}
	seed.IsDefault = true
	return s.Create(ctx, seed)
}

func copyRates(in domain.UserTypeRates) domain.UserTypeRates {
	out := make(domain.UserTypeRates, len(in))
	for k, v := range in {
		out[strings.TrimSpace(k)] = v
	}
	return out
}
