package enums

// TicketStatus is the carrier-reported state of a shipping ticket. The set is
// defined by the carrier and open-ended; only released and canceled carry
// meaning for the reconciliation decision table, the rest are recorded as-is.
type TicketStatus string

const (
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusReleased TicketStatus = "released"
	TicketStatusPosted   TicketStatus = "posted"
	TicketStatusCanceled TicketStatus = "canceled"
)

// String implements fmt.Stringer.
func (t TicketStatus) String() string {
	return string(t)
}
