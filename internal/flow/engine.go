package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/availability"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"

	"github.com/rs/zerolog"
)

// Screen names, in booking order.
const (
	ScreenDateSelection       = "DATE_SELECTION"
	ScreenSlotSelection       = "SLOT_SELECTION"
	ScreenBookingConfirmation = "BOOKING_CONFIRMATION"
	ScreenSuccess             = "SUCCESS"
)

// Request is a decrypted data-exchange request from the flow runtime.
type Request struct {
	Version   string                 `json:"version"`
	Action    string                 `json:"action"`
	Screen    string                 `json:"screen"`
	Data      map[string]interface{} `json:"data"`
	FlowToken string                 `json:"flow_token"`
}

// Response is the next screen and its data.
type Response struct {
	Version string                 `json:"version,omitempty"`
	Screen  string                 `json:"screen"`
	Data    map[string]interface{} `json:"data"`
}

// Availability answers the date screen.
type Availability interface {
	AvailableSlots(ctx context.Context, date time.Time) ([]availability.SlotAvailability, error)
}

// Catalog resolves slots for the confirmation summary.
type Catalog interface {
	Slot(id string) (models.Slot, error)
	Amount(slotIDs []string) (int64, error)
}

// Engine advances the booking flow screen by screen. It only renders; the
// reservation itself is created when the completed flow arrives on the
// message webhook.
type Engine struct {
	availability Availability
	catalog      Catalog
	loc          *time.Location
	logger       *zerolog.Logger
}

func NewEngine(avail Availability, catalog Catalog, loc *time.Location, logger *zerolog.Logger) *Engine {
	return &Engine{availability: avail, catalog: catalog, loc: loc, logger: logger}
}

// Process handles one data-exchange round trip.
func (e *Engine) Process(ctx context.Context, req *Request) (*Response, error) {
	if req.Action == "ping" {
		return &Response{Data: map[string]interface{}{"status": "active"}}, nil
	}

	switch req.Screen {
	case ScreenDateSelection:
		return e.dateScreen(ctx, req)
	case ScreenSlotSelection:
		return e.slotScreen(req)
	case ScreenBookingConfirmation:
		return e.confirmationScreen(req), nil
	default:
		return nil, fmt.Errorf("unknown flow screen %q", req.Screen)
	}
}

// dateScreen resolves the picked date to its slot list. The date picker
// submits epoch milliseconds.
func (e *Engine) dateScreen(ctx context.Context, req *Request) (*Response, error) {
	raw, _ := req.Data["selected_date"].(string)
	if raw == "" {
		return errorResponse(ScreenDateSelection, "Please select date"), nil
	}
	millis, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return errorResponse(ScreenDateSelection, "Please select date"), nil
	}
	date := time.UnixMilli(int64(millis)).In(e.loc)

	slots, err := e.availability.AvailableSlots(ctx, date)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]interface{}, 0, len(slots))
	for _, sa := range slots {
		rows = append(rows, map[string]interface{}{
			"id":          sa.Slot.ID,
			"title":       sa.Slot.Title,
			"description": sa.Slot.PriceLabel(),
			"enabled":     sa.Available,
		})
	}
	return &Response{
		Screen: ScreenSlotSelection,
		Data: map[string]interface{}{
			"selected_date": models.FormatDate(date),
			"slots":         rows,
		},
	}, nil
}

// slotScreen validates the selection and builds the confirmation summary.
func (e *Engine) slotScreen(req *Request) (*Response, error) {
	selected := stringSlice(req.Data["slots"])
	if len(selected) == 0 {
		return errorResponse(ScreenSlotSelection, "Please select at least 1 slot"), nil
	}

	titles := make([]string, 0, len(selected))
	for _, id := range selected {
		sl, err := e.catalog.Slot(id)
		if err != nil {
			e.logger.Warn().Str("slot", id).Msg("flow submitted unknown slot id")
			return errorResponse(ScreenSlotSelection, "Please select at least 1 slot"), nil
		}
		titles = append(titles, sl.Title)
	}
	amount, err := e.catalog.Amount(selected)
	if err != nil {
		return nil, err
	}

	return &Response{
		Screen: ScreenBookingConfirmation,
		Data: map[string]interface{}{
			"selected_date": req.Data["selected_date"],
			"slots_title":   strings.Join(titles, ", "),
			"slots":         strings.Join(selected, ","),
			"amount":        fmt.Sprintf("₹ %d/-", amount),
			"token":         req.FlowToken,
		},
	}, nil
}

// confirmationScreen echoes the summary into the terminal screen. The
// submitted payload comes back on the message webhook as an nfm_reply.
func (e *Engine) confirmationScreen(req *Request) *Response {
	return &Response{
		Screen: ScreenSuccess,
		Data: map[string]interface{}{
			"selected_date": req.Data["selected_date"],
			"slots":         req.Data["slots"],
			"amount":        req.Data["amount"],
			"token":         req.FlowToken,
		},
	}
}

func errorResponse(screen, message string) *Response {
	return &Response{
		Screen: screen,
		Data:   map[string]interface{}{"error_messages": message},
	}
}

func stringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
