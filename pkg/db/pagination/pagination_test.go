package pagination

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
)

func TestPageBuildsNextToken(t *testing.T) {
	rows := []snowflake.ID{50, 40, 30}
	page, info := Page(rows, 2, func(id snowflake.ID) snowflake.ID { return id })
	require.Equal(t, []snowflake.ID{50, 40}, page)
	require.True(t, info.HasMore)

	before, err := Pagination{PageToken: info.NextPageToken}.BeforeID()
	require.NoError(t, err)
	require.Equal(t, snowflake.ID(40), before)
}

func TestPageLastPageHasNoToken(t *testing.T) {
	page, info := Page([]snowflake.ID{1}, 2, func(id snowflake.ID) snowflake.ID { return id })
	require.Len(t, page, 1)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextPageToken)
}

func TestLimitBounds(t *testing.T) {
	require.Equal(t, DefaultPageSize, Pagination{}.Limit())
	require.Equal(t, MaxPageSize, Pagination{PageSize: 10000}.Limit())
	require.Equal(t, 7, Pagination{PageSize: 7}.Limit())
}

func TestBeforeIDRejectsGarbage(t *testing.T) {
	_, err := Pagination{PageToken: "!!!"}.BeforeID()
	require.ErrorIs(t, err, ErrInvalidPageToken)
}
