package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsAccountData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/v1/payouts"),
		attribute.String("account_number", "0123456789"),
		attribute.String("payer_id", "p_1"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorKeepsOutermostMessage(t *testing.T) {
	err := fmt.Errorf("insufficient_balance: seller s_1 has 5000: %w", errors.New("inner"))
	assert.EqualError(t, SafeError(err), "insufficient_balance")
	assert.Nil(t, SafeError(nil))
}
