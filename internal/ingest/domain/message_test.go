package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	orderDomain "github.com/davicafu/logistrack/internal/order/domain"
)

func TestIsPoison(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"decode", &DecodeError{MessageID: "1-0", Reason: "missing eventType"}, true},
		{"wrapped validation", fmt.Errorf("apply: %w", &orderDomain.ValidationError{Missing: []string{"dispatchDate"}}), true},
		{"unsupported", fmt.Errorf("%w: %q", ErrUnsupportedEvent, "user.created"), true},
		{"transport", &TransportError{Op: "read", Err: errors.New("connection refused")}, false},
		{"store", errors.New("database is locked"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPoison(tt.err))
		})
	}
}

func TestDecodeError_Unwrap(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := &DecodeError{MessageID: "1-0", Reason: "invalid body", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "1-0")
}
