package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderErrorClassification(t *testing.T) {
	rejected := fmt.Errorf("initialize: %w", Rejected("gateway", "card declined"))
	assert.ErrorIs(t, rejected, ErrProviderRejected)
	assert.False(t, IsTransient(rejected))
	assert.Equal(t, "card declined", Reason(rejected))

	unavailable := Unavailable("gateway", "")
	assert.True(t, IsTransient(unavailable))
	assert.Equal(t, "gateway: provider_unavailable", unavailable.Error())
	assert.Equal(t, "boom", Reason(errors.New("boom")))
	assert.Empty(t, Reason(nil))
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, ParseStatus("Succeeded"))
	assert.Equal(t, StatusFailed, ParseStatus("declined"))
	assert.Equal(t, StatusPending, ParseStatus("queued"))
	assert.Equal(t, StatusPending, ParseStatus(""))
}
