package handler

import (
	"errors"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/service"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()-]{8,20}$`)

var errUUIDList = errors.New("must contain valid UUIDs")

func uuidList(value interface{}) error {
	ids, _ := value.([]string)
	for _, s := range ids {
		if _, err := uuid.Parse(s); err != nil {
			return errUUIDList
		}
	}
	return nil
}

var paymentMethods = []interface{}{
	string(domain.MethodMercadoPago),
	string(domain.MethodBankTransfer),
	string(domain.MethodCash),
}

// CreatePurchaseRequest is the body of POST /api/purchases.
type CreatePurchaseRequest struct {
	RaffleID      string `json:"raffle_id"`
	PriceTierID   string `json:"price_tier_id"`
	Quantity      int    `json:"quantity"`
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	PaymentMethod string `json:"payment_method"`
}

func (req *CreatePurchaseRequest) Validate() error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.RaffleID, validation.Required, is.UUID),
		validation.Field(&req.FullName, validation.Required, validation.Length(2, 120)),
		validation.Field(&req.Email, validation.Required, is.Email),
		validation.Field(&req.Phone, validation.Required, validation.Match(phonePattern)),
		validation.Field(&req.PaymentMethod, validation.Required, validation.In(paymentMethods...)),
		validation.Field(&req.Quantity, validation.Min(0)),
	)
	if err != nil {
		return err
	}
	if req.PriceTierID == "" || req.PriceTierID == domain.CustomTier {
		return validation.Errors{"quantity": validation.Validate(req.Quantity, validation.Required, validation.Min(1))}.Filter()
	}
	return validation.Validate(req.PriceTierID, is.UUID)
}

// Input converts the request for PurchaseService.Create.
func (req *CreatePurchaseRequest) Input() service.CreatePurchaseInput {
	raffleID, _ := uuid.Parse(req.RaffleID)
	return service.CreatePurchaseInput{
		RaffleID:      raffleID,
		PriceTierID:   req.PriceTierID,
		Quantity:      req.Quantity,
		FullName:      req.FullName,
		Email:         req.Email,
		Phone:         req.Phone,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	}
}

// StatusRequest is the body of the purchase status endpoints.
type StatusRequest struct {
	Status    string `json:"status"`
	PaymentID string `json:"payment_id"`
}

func (req *StatusRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Status, validation.Required, validation.In(
			string(domain.PurchasePaid), string(domain.PurchaseFailed), string(domain.PurchaseConfirmed),
		)),
	)
}

// ClaimRequest is the body of POST /api/purchases/{id}/tickets.
type ClaimRequest struct {
	TicketIDs []string `json:"ticket_ids"`
}

func (req *ClaimRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.TicketIDs, validation.Required, validation.By(uuidList)),
	)
}

// IDs returns the parsed ticket IDs.
func (req *ClaimRequest) IDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(req.TicketIDs))
	for _, s := range req.TicketIDs {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// ReleaseRequest is the body of the admin release endpoint. An empty list
// releases every ticket of the purchase.
type ReleaseRequest struct {
	TicketIDs []string `json:"ticket_ids"`
}

func (req *ReleaseRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.TicketIDs, validation.By(uuidList)),
	)
}

// IDs returns the parsed ticket IDs.
func (req *ReleaseRequest) IDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(req.TicketIDs))
	for _, s := range req.TicketIDs {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// PreferenceRequest is the body of POST /api/payment/create-preference.
type PreferenceRequest struct {
	PurchaseID string `json:"purchase_id"`
}

func (req *PreferenceRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.PurchaseID, validation.Required, is.UUID),
	)
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req *LoginRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Email, validation.Required, is.Email),
		validation.Field(&req.Password, validation.Required),
	)
}

// RaffleRequest is the admin body for creating a raffle.
type RaffleRequest struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	DrawDate    time.Time            `json:"draw_date"`
	MaxTickets  int                  `json:"max_tickets"`
	Inactive    bool                 `json:"inactive"`
	Prizes      []service.PrizeInput `json:"prizes"`
	Tiers       []service.TierInput  `json:"tiers"`
}

func (req *RaffleRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title, validation.Required, validation.Length(3, 200)),
		validation.Field(&req.DrawDate, validation.Required),
		validation.Field(&req.MaxTickets, validation.Required, validation.Min(1), validation.Max(100000)),
		validation.Field(&req.Tiers, validation.Required),
	)
}

// Input converts the request for RaffleService.Create.
func (req *RaffleRequest) Input() service.CreateRaffleInput {
	return service.CreateRaffleInput{
		Title:       req.Title,
		Description: req.Description,
		DrawDate:    req.DrawDate,
		MaxTickets:  req.MaxTickets,
		Inactive:    req.Inactive,
		Prizes:      req.Prizes,
		Tiers:       req.Tiers,
	}
}

// AccountRequest is the admin body for bank accounts.
type AccountRequest struct {
	service.AccountInput
}

func (req *AccountRequest) Validate() error {
	return validation.ValidateStruct(&req.AccountInput,
		validation.Field(&req.AccountInput.CBU, validation.Required, validation.Length(22, 22), is.Digit),
		validation.Field(&req.AccountInput.Titular, validation.Required),
		validation.Field(&req.AccountInput.Email, is.Email),
	)
}

// CreateAdminRequest is the body for registering admin users.
type CreateAdminRequest struct {
	service.CreateAdminInput
}

func (req *CreateAdminRequest) Validate() error {
	return validation.ValidateStruct(&req.CreateAdminInput,
		validation.Field(&req.CreateAdminInput.Email, validation.Required, is.Email),
		validation.Field(&req.CreateAdminInput.Password, validation.Required, validation.Length(8, 72)),
	)
}
