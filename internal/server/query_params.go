package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const dateOnlyLayout = "2006-01-02"

var (
	errInvalidSnowflakeID = errors.New("invalid_snowflake_id")
	errInvalidTime        = errors.New("invalid_time")
)

// parseOptional returns nil for a blank query value.
func parseOptional[T any](value string, parse func(string) (T, error)) (*T, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	v, err := parse(trimmed)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseOptionalBool(value string) (*bool, error) {
	return parseOptional(value, strconv.ParseBool)
}

func parseOptionalInt64(value string) (*int64, error) {
	return parseOptional(value, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	return parseOptional(value, func(s string) (snowflake.ID, error) {
		id, err := snowflake.ParseString(s)
		if err != nil || id == 0 {
			return 0, errInvalidSnowflakeID
		}
		return id, nil
	})
}

// parseOptionalTime accepts RFC 3339 or a bare UTC date. A bare end date covers
// the whole day.
func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	return parseOptional(value, func(s string) (time.Time, error) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, nil
		}
		day, err := time.Parse(dateOnlyLayout, s)
		if err != nil {
			return time.Time{}, errInvalidTime
		}
		if endOfDay {
			return day.Add(24*time.Hour - time.Nanosecond), nil
		}
		return day, nil
	})
}
