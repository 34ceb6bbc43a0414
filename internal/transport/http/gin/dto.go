package httpgin

import (
	"time"

	"github.com/kirinyoku/tix-events/internal/domain"
	"github.com/kirinyoku/tix-events/internal/service/events"
	"github.com/kirinyoku/tix-events/internal/service/users"
)

type RegisterRequest struct {
	Name             string      `json:"name" binding:"required,min=3"`
	Email            string      `json:"email" binding:"required,email"`
	Password         string      `json:"password" binding:"required,min=6"`
	Role             domain.Role `json:"role" binding:"required,oneof=client organizer"`
	OrganizationName string      `json:"organizationName" binding:"required_if=Role organizer"`
}

func (r RegisterRequest) input() users.RegisterInput {
	return users.RegisterInput{
		Email:            r.Email,
		Password:         r.Password,
		Name:             r.Name,
		Role:             r.Role,
		OrganizationName: r.OrganizationName,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateUserRequest struct {
	Name             *string `json:"name" binding:"omitempty,min=3"`
	Email            *string `json:"email" binding:"omitempty,email"`
	Password         *string `json:"password" binding:"omitempty,min=6"`
	OrganizationName *string `json:"organizationName" binding:"omitempty,notblank"`
}

func (r UpdateUserRequest) input() users.UpdateInput {
	return users.UpdateInput{
		Email:            r.Email,
		Password:         r.Password,
		Name:             r.Name,
		OrganizationName: r.OrganizationName,
	}
}

type LocationRequest struct {
	Name     string `json:"name" binding:"omitempty,notblank"`
	Address  string `json:"address" binding:"omitempty,notblank"`
	City     string `json:"city" binding:"omitempty,notblank"`
	Capacity *int   `json:"capacity" binding:"omitempty,min=1"`
}

type TicketClassRequest struct {
	Type              string `json:"type" binding:"required,tickettype"`
	PriceCents        int64  `json:"priceCents" binding:"required,gt=0"`
	AvailableQuantity *int   `json:"availableQuantity" binding:"required,min=0,max=1000000"`
}

type EventRequest struct {
	Name             string               `json:"name" binding:"required,min=3"`
	Description      string               `json:"description" binding:"required,min=10"`
	Date             time.Time            `json:"date" binding:"required,future"`
	IsPublic         *bool                `json:"isPublic" binding:"required"`
	OrganizationName string               `json:"organizationName" binding:"required"`
	Location         *LocationRequest     `json:"location" binding:"required"`
	Tickets          []TicketClassRequest `json:"tickets" binding:"required,min=1,dive"`
}

func (r EventRequest) input() events.Input {
	in := events.Input{
		Name:             r.Name,
		Description:      r.Description,
		Date:             r.Date,
		IsPublic:         *r.IsPublic,
		OrganizationName: r.OrganizationName,
		Location: domain.Location{
			Name:    r.Location.Name,
			Address: r.Location.Address,
			City:    r.Location.City,
		},
		Tickets: make([]domain.TicketClass, 0, len(r.Tickets)),
	}

	if r.Location.Capacity != nil {
		in.Location.Capacity = *r.Location.Capacity
	}

	for _, t := range r.Tickets {
		in.Tickets = append(in.Tickets, domain.TicketClass{
			Type:              domain.TicketType(normalizeTicketType(t.Type)),
			PriceCents:        t.PriceCents,
			AvailableQuantity: *t.AvailableQuantity,
		})
	}

	return in
}

type CheckoutTicket struct {
	EventID  string `json:"eventId" binding:"required"`
	Type     string `json:"type" binding:"required,tickettype"`
	Quantity int    `json:"quantity" binding:"required,gt=0,max=100"`
}

type CheckoutRequest struct {
	Tickets []CheckoutTicket `json:"tickets" binding:"required,min=1,max=10,dive"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type RegisterResponse struct {
	User *domain.User `json:"user"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

type BoughtTicketsResponse struct {
	Tickets []domain.PurchasedTicket `json:"tickets"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

type ReplayResponse struct {
	SessionID string               `json:"sessionId"`
	Status    domain.PaymentStatus `json:"status"`
}
