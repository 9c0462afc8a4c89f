package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentStatusCanTransition(t *testing.T) {
	assert.True(t, PaymentInitiated.CanTransition(PaymentAuthorized))
	assert.True(t, PaymentInitiated.CanTransition(PaymentCaptured))
	assert.True(t, PaymentAuthorized.CanTransition(PaymentCaptured))
	assert.True(t, PaymentAuthorized.CanTransition(PaymentFailed))
	assert.True(t, PaymentCaptured.CanTransition(PaymentRefunded))

	// Terminal states at the same rank never cross over.
	assert.False(t, PaymentCaptured.CanTransition(PaymentAuthorized))
	assert.False(t, PaymentCaptured.CanTransition(PaymentFailed))
	assert.False(t, PaymentFailed.CanTransition(PaymentCaptured))

	// Refunds require funds to have moved.
	assert.False(t, PaymentAuthorized.CanTransition(PaymentRefunded))
	assert.False(t, PaymentFailed.CanTransition(PaymentRefunded))
	assert.False(t, PaymentRefunded.CanTransition(PaymentCaptured))
}
