package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectRevenueShare = "revenue_share"
	ObjectPayout       = "payout"
	ObjectAnalytics    = "analytics"
	ObjectAudit        = "audit"
)

const (
	ActionRevenueShareView    = "revenue_share.view"
	ActionRevenueShareCreate  = "revenue_share.create"
	ActionRevenueShareRevise  = "revenue_share.revise"
	ActionRevenueShareDefault = "revenue_share.default"

	ActionPayoutCancel = "payout.cancel"

	ActionAnalyticsView = "analytics.view"

	ActionAuditView = "audit.view"
)

const (
	RoleAdmin   = "admin"
	RoleFinance = "finance"
	RoleSystem  = "system"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor, role, object, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := "actor:" + actor
	if err := s.ensureGrouping(subject, roleName(role)); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("actor", actor),
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	if shouldLogGrant(action) {
		s.log.Info("authorization granted",
			zap.String("actor", actor),
			zap.String("role", role),
			zap.String("action", action),
		)
	}
	return nil
}

func roleName(role string) string {
	return fmt.Sprintf("role:%s", role)
}

// ensureGrouping keeps exactly one role link per subject; the gateway may change
// an actor's role between requests.
func (s *ServiceImpl) ensureGrouping(subject, role string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == role {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, role)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, role)
	return err
}

func shouldLogGrant(action string) bool {
	switch action {
	case ActionRevenueShareRevise, ActionRevenueShareDefault, ActionRevenueShareCreate:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{roleName(RoleAdmin), ObjectRevenueShare, ActionRevenueShareView},
		{roleName(RoleAdmin), ObjectRevenueShare, ActionRevenueShareCreate},
		{roleName(RoleAdmin), ObjectRevenueShare, ActionRevenueShareRevise},
		{roleName(RoleAdmin), ObjectRevenueShare, ActionRevenueShareDefault},
		{roleName(RoleAdmin), ObjectPayout, ActionPayoutCancel},
		{roleName(RoleAdmin), ObjectAnalytics, ActionAnalyticsView},
		{roleName(RoleAdmin), ObjectAudit, ActionAuditView},

		// Finance reads configuration and reports but cannot change splits.
		{roleName(RoleFinance), ObjectRevenueShare, ActionRevenueShareView},
		{roleName(RoleFinance), ObjectAnalytics, ActionAnalyticsView},
		{roleName(RoleFinance), ObjectPayout, ActionPayoutCancel},
		{roleName(RoleFinance), ObjectAudit, ActionAuditView},

		{roleName(RoleSystem), ObjectRevenueShare, ActionRevenueShareView},
		{roleName(RoleSystem), ObjectAnalytics, ActionAnalyticsView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
