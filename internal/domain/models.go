package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role decides which operations an account may take part in.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// AccountStatus is set by administrators; the ledger only reads it.
type AccountStatus string

const (
	AccountPending AccountStatus = "pending"
	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountPending, AccountActive, AccountBlocked:
		return true
	}
	return false
}

// InitialBalance returns the opening balance granted at registration.
func InitialBalance(r Role) Amount {
	switch r {
	case RoleUser:
		return NewAmount(40)
	case RoleAgent:
		return NewAmount(10000)
	}
	return Zero
}

// Account is a balance holder addressable by email or mobile.
type Account struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	Mobile       string        `json:"mobile"`
	PINHash      string        `json:"-"`
	Role         Role          `json:"role"`
	Balance      Amount        `json:"balance"`
	Status       AccountStatus `json:"status"`
	ProfileImage string        `json:"profile_image,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Operation is the kind of money movement a transaction records.
type Operation string

const (
	OpSendMoney      Operation = "send-money"
	OpCashOut        Operation = "cash-out"
	OpCashIn         Operation = "cash-in"
	OpCashInRequest  Operation = "cash-in-request"
	OpCashOutRequest Operation = "cash-out-request"
)

// TxStatus is the lifecycle state of a transaction record.
type TxStatus string

const (
	TxPending TxStatus = "pending"
	TxConfirm TxStatus = "confirm"
)

// Transaction is the immutable record of a movement. Sender and Receiver are
// email addresses copied at the time of the operation.
type Transaction struct {
	ID             uuid.UUID  `json:"id"`
	Seq            int64      `json:"-"`
	Type           Operation  `json:"type"`
	Sender         string     `json:"sender"`
	Receiver       string     `json:"receiver"`
	Amount         Amount     `json:"amount"`
	Fee            Amount     `json:"fee"`
	Status         TxStatus   `json:"status"`
	Timestamp      time.Time  `json:"timestamp"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	IdempotencyKey string     `json:"-"`
	RequestHash    string     `json:"-"`
}

// Movement is a fully validated balance mutation handed to the transaction
// log. Debit and Credit may be zero for deferred operations; Cover is the
// balance the sender must hold at commit time.
type Movement struct {
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Debit      Amount
	Credit     Amount
	Cover      Amount
	Record     Transaction
}

// Identity is the verified claim supplied by the access gate.
type Identity struct {
	AccountID string
	Email     string
}
