package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is bank-transfer payee information shown to buyers.
type Account struct {
	ID        uuid.UUID `json:"id"`
	CBU       string    `json:"cbu"`
	Alias     string    `json:"alias"`
	Titular   string    `json:"titular"`
	Banco     string    `json:"banco"`
	Email     string    `json:"email"`
	Whatsapp  string    `json:"whatsapp"`
	CreatedAt time.Time `json:"created_at"`
}
