package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
		code int
	}{
		{"validation", Validation("items required"), KindValidation, http.StatusBadRequest},
		{"not found", NotFound("order not found"), KindNotFound, http.StatusNotFound},
		{"conflict", Conflict("insufficient stock"), KindConflict, http.StatusBadRequest},
		{"trust", Trust("signature invalid"), KindTrust, http.StatusBadRequest},
		{"upstream", Upstream("payment attempt failed", errors.New("timeout")), KindUpstream, http.StatusBadGateway},
		{"wrapped", fmt.Errorf("create order: %w", Conflict("insufficient stock")), KindConflict, http.StatusBadRequest},
		{"plain", errors.New("boom"), KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
			assert.Equal(t, tc.code, KindOf(tc.err).Code())
		})
	}
}

func TestMessageHidesInternalDetails(t *testing.T) {
	assert.Equal(t, "internal server error", Message(errors.New("dial tcp 10.0.0.1:3306: refused")))
	assert.Equal(t, "order not found", Message(fmt.Errorf("ship: %w", NotFound("order not found"))))
	assert.Equal(t, "payment attempt failed", Message(Upstream("payment attempt failed", errors.New("i/o timeout"))))
}

func TestErrorsIsMatchesKindAndMessage(t *testing.T) {
	errStock := Conflict("insufficient stock")
	wrapped := fmt.Errorf("item 2: %w", Conflict("insufficient stock"))

	assert.True(t, errors.Is(wrapped, errStock))
	assert.False(t, errors.Is(wrapped, Validation("insufficient stock")))
}
