package store

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"fleet_tracker/internal/apperrors"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique violation", &pq.Error{Code: "23505", Constraint: "idx_vehicles_number"}, apperrors.ErrConflict},
		{"deadlock", &pq.Error{Code: "40P01"}, apperrors.ErrConflict},
		{"serialization failure", &pq.Error{Code: "40001"}, apperrors.ErrConflict},
		{"wrapped deadlock", fmt.Errorf("commit: %w", &pq.Error{Code: "40P01"}), apperrors.ErrConflict},
		{"connection failure", &pq.Error{Code: "08006"}, apperrors.ErrUpstreamUnavailable},
		{"bad conn", driver.ErrBadConn, apperrors.ErrUpstreamUnavailable},
		{"network", &net.DNSError{Err: "no such host", Name: "db"}, apperrors.ErrUpstreamUnavailable},
		{"record not found", gorm.ErrRecordNotFound, apperrors.ErrNotFound},
		{"tagged conflict", fmt.Errorf("%w: vehicle is busy", apperrors.ErrConflict), apperrors.ErrConflict},
		{"tagged forbidden", fmt.Errorf("%w: not your shipment", apperrors.ErrForbidden), apperrors.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err, "vehicle")
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestTranslateKeepsTaggedErrorsAsIs(t *testing.T) {
	tagged := fmt.Errorf("%w: shipment SHP001 cannot move from DELIVERED to PENDING", apperrors.ErrConflict)
	assert.Same(t, tagged, translate(tagged, "shipment"))
}

func TestTranslateOtherErrors(t *testing.T) {
	assert.NoError(t, translate(nil, "shipment"))

	check := &pq.Error{Code: "23514", Message: "capacity must be positive"}
	got := translate(check, "vehicle")
	var pgErr *pq.Error
	assert.True(t, errors.As(got, &pgErr))
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(got))
	assert.Contains(t, got.Error(), "vehicle")
}
