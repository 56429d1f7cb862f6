package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
)

const CodeMalformedMessage = "MALFORMED_MESSAGE"

// ErrMalformed matches every message the discriminator rejects.
var ErrMalformed = &apperror.Error{Kind: apperror.KindProtocol, Code: CodeMalformedMessage}

var requiredFields = map[MessageType][]string{
	TypeAuctionResult:     {"auctionId", "userId", "result", "amount", "paymentDeadline", "propertyName"},
	TypeSecondChanceOffer: {"offerId", "auctionId", "userId", "offeredNights", "amount", "responseDeadline", "propertyName"},
	TypePaymentStatus:     {"paymentId", "userId", "status"},
	TypeBookingConfirmed:  {"bookingId", "userId", "propertyName", "checkIn", "checkOut"},
}

// TypeStats counts outcomes for one message type.
type TypeStats struct {
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// DiscriminatorStats is a snapshot of the discriminator counters.
type DiscriminatorStats struct {
	Total   int                       `json:"total"`
	Valid   int                       `json:"valid"`
	Invalid int                       `json:"invalid"`
	ByType  map[MessageType]TypeStats `json:"byType"`
}

// Discriminator turns raw payloads into typed messages. Nothing it rejects
// ever reaches a subscriber.
type Discriminator struct {
	mu    sync.Mutex
	stats DiscriminatorStats
}

func NewDiscriminator() *Discriminator {
	return &Discriminator{stats: DiscriminatorStats{ByType: make(map[MessageType]TypeStats)}}
}

// Discriminate validates raw against the four message shapes. A rejection is
// a protocol error naming every problem found.
func (d *Discriminator) Discriminate(raw []byte) (Message, error) {
	msg, typ, problems := parse(raw)
	d.record(typ, len(problems) == 0)
	if len(problems) > 0 {
		return nil, &apperror.Error{
			Kind:    apperror.KindProtocol,
			Code:    CodeMalformedMessage,
			Message: strings.Join(problems, "; "),
		}
	}
	return msg, nil
}

func (d *Discriminator) Stats() DiscriminatorStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.stats
	out.ByType = make(map[MessageType]TypeStats, len(d.stats.ByType))
	for k, v := range d.stats.ByType {
		out.ByType[k] = v
	}
	return out
}

func (d *Discriminator) record(typ MessageType, valid bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Total++
	if valid {
		d.stats.Valid++
	} else {
		d.stats.Invalid++
	}
	if _, known := requiredFields[typ]; !known {
		return
	}
	ts := d.stats.ByType[typ]
	if valid {
		ts.Valid++
	} else {
		ts.Invalid++
	}
	d.stats.ByType[typ] = ts
}

func parse(raw []byte) (Message, MessageType, []string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, "", []string{"message must be a JSON object"}
	}

	var typ MessageType
	if err := json.Unmarshal(fields["type"], &typ); err != nil || typ == "" {
		return nil, "", []string{"message must have a string type field"}
	}
	required, known := requiredFields[typ]
	if !known {
		return nil, typ, []string{fmt.Sprintf("unknown message type %q", typ)}
	}

	var missing []string
	for _, f := range required {
		if v, ok := fields[f]; !ok || string(v) == "null" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, typ, []string{"missing required fields: " + strings.Join(missing, ", ")}
	}

	var msg Message
	switch typ {
	case TypeAuctionResult:
		msg = &AuctionResult{}
	case TypeSecondChanceOffer:
		msg = &SecondChanceOffer{}
	case TypePaymentStatus:
		msg = &PaymentStatus{}
	case TypeBookingConfirmed:
		msg = &BookingConfirmed{}
	}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, typ, []string{"malformed field: " + err.Error()}
	}

	var problems []string
	switch m := msg.(type) {
	case *AuctionResult:
		problems = validateAuctionResult(m)
	case *SecondChanceOffer:
		problems = validateOffer(m)
	case *PaymentStatus:
		problems = validatePaymentStatus(m)
	case *BookingConfirmed:
		problems = validateBooking(m)
	}
	if len(problems) > 0 {
		return nil, typ, problems
	}
	return msg, typ, nil
}

func validateAuctionResult(m *AuctionResult) []string {
	var problems []string
	if !slices.Contains([]ResultKind{ResultFullWin, ResultPartialWin, ResultLost}, m.Result) {
		problems = append(problems, fmt.Sprintf("result %q is not one of FULL_WIN, PARTIAL_WIN, LOST", m.Result))
	}
	if m.Amount.IsNegative() {
		problems = append(problems, "amount must not be negative")
	}
	if m.Result == ResultPartialWin && len(m.AwardedNights) == 0 {
		problems = append(problems, "a partial win must list its awarded nights")
	}
	if m.UserID == "" {
		problems = append(problems, "userId must not be empty")
	}
	return problems
}

func validateOffer(m *SecondChanceOffer) []string {
	var problems []string
	if len(m.OfferedNights) == 0 {
		problems = append(problems, "offeredNights must not be empty")
	}
	if m.Amount.IsNegative() {
		problems = append(problems, "amount must not be negative")
	}
	if m.OfferID == "" {
		problems = append(problems, "offerId must not be empty")
	}
	return problems
}

func validatePaymentStatus(m *PaymentStatus) []string {
	var problems []string
	if !slices.Contains([]PaymentState{PaymentInitiated, PaymentProcessing, PaymentCompleted, PaymentFailed}, m.Status) {
		problems = append(problems, fmt.Sprintf("status %q is not one of INITIATED, PROCESSING, COMPLETED, FAILED", m.Status))
	}
	if m.PaymentID == "" {
		problems = append(problems, "paymentId must not be empty")
	}
	return problems
}

func validateBooking(m *BookingConfirmed) []string {
	in, inErr := parseDay(m.CheckIn)
	out, outErr := parseDay(m.CheckOut)
	var problems []string
	if inErr != nil {
		problems = append(problems, fmt.Sprintf("checkIn %q is not a date", m.CheckIn))
	}
	if outErr != nil {
		problems = append(problems, fmt.Sprintf("checkOut %q is not a date", m.CheckOut))
	}
	if inErr == nil && outErr == nil && !in.Before(out) {
		problems = append(problems, "checkIn must be before checkOut")
	}
	return problems
}

func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
