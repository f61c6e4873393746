package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubSource struct {
	reservations []models.Reservation
	err          error
}

func (s *stubSource) ConfirmedReservations(ctx context.Context, from, to time.Time) ([]models.Reservation, error) {
	return s.reservations, s.err
}

type stubCatalog struct{}

func (stubCatalog) Slot(id string) (models.Slot, error) {
	if id == "MON-S9" {
		return models.Slot{ID: id, Title: "9 AM - 10 AM"}, nil
	}
	return models.Slot{}, fmt.Errorf("slot %s not found", id)
}

func TestWriteConfirmed(t *testing.T) {
	source := &stubSource{reservations: []models.Reservation{
		{
			Token:            "tok123",
			Mobile:           "919900112233",
			Date:             "22 Jan 2024",
			SlotIDs:          []string{"MON-S9"},
			Amount:           1200,
			State:            models.StateConfirmed,
			CreatedAt:        time.Date(2024, 1, 20, 10, 30, 0, 0, time.UTC),
			PaymentReference: "tok123",
		},
	}}
	logger := zerolog.New(io.Discard)
	r := New(source, stubCatalog{}, &logger)

	var buf bytes.Buffer
	err := r.WriteConfirmed(context.Background(),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		&buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Booked At", rows[0][0])
	assert.Equal(t, "22 Jan 2024", rows[1][1])
	assert.Equal(t, "9 AM - 10 AM", rows[1][2])
	assert.Equal(t, "919900112233", rows[1][3])
	assert.Equal(t, "1200", rows[1][4])
}

func TestWriteConfirmedEmpty(t *testing.T) {
	logger := zerolog.New(io.Discard)
	r := New(&stubSource{}, stubCatalog{}, &logger)

	var buf bytes.Buffer
	err := r.WriteConfirmed(context.Background(), time.Now().Add(-time.Hour), time.Now(), &buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	assert.Len(t, rows, 1) // header only
}

func TestWriteConfirmedUnknownSlotFallsBackToID(t *testing.T) {
	source := &stubSource{reservations: []models.Reservation{
		{Token: "t", Mobile: "9", Date: "22 Jan 2024", SlotIDs: []string{"GONE-S1"},
			Amount: 100, CreatedAt: time.Now()},
	}}
	logger := zerolog.New(io.Discard)
	r := New(source, stubCatalog{}, &logger)

	var buf bytes.Buffer
	require.NoError(t, r.WriteConfirmed(context.Background(), time.Now().Add(-time.Hour), time.Now(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	assert.Equal(t, "GONE-S1", rows[1][2])
}
