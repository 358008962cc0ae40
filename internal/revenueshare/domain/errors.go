package domain

import "errors"

var (
	ErrInvalidSplitConfiguration = errors.New("invalid_split_configuration")
	ErrInvalidConfiguration      = errors.New("invalid_revenue_share_configuration")
	ErrConfigurationNotFound     = errors.New("revenue_share_configuration_not_found")
	ErrNoDefaultConfiguration    = errors.New("no_default_revenue_share_configuration")
	ErrConfigurationInactive     = errors.New("revenue_share_configuration_inactive")
	ErrInvalidAmount             = errors.New("invalid_amount")
	ErrConfigurationExists       = errors.New("revenue_share_configuration_exists")
)
