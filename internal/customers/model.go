package customers

import (
	"errors"
	"strings"
)

var (
	// ErrCustomerNotFound is returned when a customer id is unknown.
	ErrCustomerNotFound = errors.New("customer not found")
)

// Customer is a snapshot of a customer's contact info and engagement counters.
// Missing numeric fields are zero.
type Customer struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Email           string  `json:"email,omitempty"`
	Phone           string  `json:"phone,omitempty"`
	Segment         string  `json:"customer_segment,omitempty"`
	ResponseCount   float64 `json:"response_count"`
	ConversionCount float64 `json:"conversion_count"`
	EmailOpenRate   float64 `json:"email_open_rate"`
	ClickRate       float64 `json:"click_rate"`
	TotalSpent      float64 `json:"total_spent"`
}

// HasContact reports whether an email or phone is present.
func (c Customer) HasContact() bool {
	return strings.TrimSpace(c.Email) != "" || strings.TrimSpace(c.Phone) != ""
}

// FirstName returns the first word of the customer's name.
func (c Customer) FirstName() string {
	fields := strings.Fields(c.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Label returns a display name, falling back to the id.
func (c Customer) Label() string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	return c.ID
}

// ListFilter narrows repository listings.
type ListFilter struct {
	Limit   int
	Offset  int
	Segment string
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Segment = strings.TrimSpace(f.Segment)
	return f
}
