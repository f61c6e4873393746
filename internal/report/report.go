// Package report exports confirmed reservations as an xlsx workbook for
// the ground operators.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// ReservationSource provides the rows to export.
type ReservationSource interface {
	ConfirmedReservations(ctx context.Context, from, to time.Time) ([]models.Reservation, error)
}

// Catalog resolves slot ids to display titles.
type Catalog interface {
	Slot(id string) (models.Slot, error)
}

// Reporter builds booking reports.
type Reporter struct {
	source  ReservationSource
	catalog Catalog
	logger  *zerolog.Logger
}

func New(source ReservationSource, catalog Catalog, logger *zerolog.Logger) *Reporter {
	return &Reporter{source: source, catalog: catalog, logger: logger}
}

var columns = []string{"Booked At", "Date", "Slots", "Mobile", "Amount (₹)", "Payment Ref", "Token"}

// WriteConfirmed writes the confirmed bookings created in [from, to) as a
// single-sheet workbook.
func (r *Reporter) WriteConfirmed(ctx context.Context, from, to time.Time, w io.Writer) error {
	reservations, err := r.source.ConfirmedReservations(ctx, from, to)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Bookings"
	f.SetSheetName("Sheet1", sheet)

	if err := writeRow(f, sheet, 1, toCells(columns)); err != nil {
		return err
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		end, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = f.SetCellStyle(sheet, "A1", end, style)
	}

	for i, res := range reservations {
		row := []interface{}{
			res.CreatedAt.Format("2006-01-02 15:04"),
			res.Date,
			r.slotTitles(res.SlotIDs),
			res.Mobile,
			res.Amount,
			res.PaymentReference,
			res.Token,
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}

	r.logger.Info().Int("rows", len(reservations)).
		Time("from", from).Time("to", to).Msg("booking report generated")
	return f.Write(w)
}

func (r *Reporter) slotTitles(slotIDs []string) string {
	titles := make([]string, 0, len(slotIDs))
	for _, id := range slotIDs {
		sl, err := r.catalog.Slot(id)
		if err != nil {
			titles = append(titles, id)
			continue
		}
		titles = append(titles, sl.Title)
	}
	return strings.Join(titles, ", ")
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("write cell %s: %w", cell, err)
		}
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
