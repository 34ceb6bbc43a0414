package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleClient    Role = "client"
	RoleOrganizer Role = "organizer"
)

type TicketType string

const (
	TicketStandard TicketType = "standard"
	TicketVIP      TicketType = "vip"
)

// Matches reports whether two ticket types name the same class, ignoring case.
func (t TicketType) Matches(other TicketType) bool {
	return strings.EqualFold(string(t), string(other))
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentFulfilled PaymentStatus = "fulfilled"
	PaymentFailed    PaymentStatus = "failed"
)

type User struct {
	ID               string            `json:"id"`
	Email            string            `json:"email"`
	Name             string            `json:"name"`
	Role             Role              `json:"role"`
	PasswordHash     string            `json:"-"`
	OrganizationName string            `json:"organizationName,omitempty"`
	BoughtTickets    []PurchasedTicket `json:"boughtTickets"`
	Version          int64             `json:"version"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

type Location struct {
	Name     string `json:"name,omitempty"`
	Address  string `json:"address,omitempty"`
	City     string `json:"city,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
}

type TicketClass struct {
	Type              TicketType `json:"type"`
	PriceCents        int64      `json:"priceCents"`
	AvailableQuantity int        `json:"availableQuantity"`
}

type Event struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Description      string        `json:"description"`
	Date             time.Time     `json:"date"`
	IsPublic         bool          `json:"isPublic"`
	OrganizationName string        `json:"organizationName"`
	Location         Location      `json:"location"`
	Tickets          []TicketClass `json:"tickets"`
	CreatedBy        string        `json:"createdBy"`
	Version          int64         `json:"version"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// TicketClass returns the index of the class matching typ, or -1.
func (e *Event) TicketClass(typ TicketType) int {
	for i := range e.Tickets {
		if e.Tickets[i].Type.Matches(typ) {
			return i
		}
	}
	return -1
}

type EventRef struct {
	EventID string    `json:"eventId"`
	Name    string    `json:"name"`
	Date    time.Time `json:"date"`
}

type PurchasedTicket struct {
	SessionID   string     `json:"sessionId"`
	Event       EventRef   `json:"event"`
	Type        TicketType `json:"type"`
	Quantity    int        `json:"quantity"`
	PriceCents  int64      `json:"priceCents"`
	PurchasedAt time.Time  `json:"purchasedAt"`
}

// TicketRequest is one line of a checkout: the tuple carried from session
// creation to the payment-completion notification.
type TicketRequest struct {
	EventID        string     `json:"e"`
	Type           TicketType `json:"t"`
	Quantity       int        `json:"q"`
	UnitPriceCents int64      `json:"p"`
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PaymentNotification is a verified payment-completion message from the gateway.
type PaymentNotification struct {
	GatewayEventID string
	SessionID      string
	UserID         string
	Tickets        []TicketRequest
}

type PaymentRecord struct {
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId"`
	Tickets   []TicketRequest `json:"tickets"`
	Status    PaymentStatus   `json:"status"`
	LastError string          `json:"lastError,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Buyer struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Email   string            `json:"email"`
	Tickets []PurchasedTicket `json:"tickets"`
}
