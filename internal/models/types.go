// Package models holds the HTTP request and response payloads.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
)

// FlexString accepts either a JSON string or a JSON number and keeps the
// literal text, so amounts are never routed through float64.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	case len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9')):
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = FlexString(n)
	default:
		return fmt.Errorf("expected string or number, got %s", b)
	}
	return nil
}

// TransferRequest is the body of every money-movement endpoint.
type TransferRequest struct {
	ReceiverIdentifier string     `json:"receiverIdentifier"`
	Amount             FlexString `json:"amount"`
	PIN                FlexString `json:"pin"`
}

// Account is the public view of an account.
type Account struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Mobile       string      `json:"mobile"`
	Balance      json.Number `json:"balance"`
	Status       string      `json:"status"`
	UserType     string      `json:"userType"`
	ProfileImage string      `json:"profileImage,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

func FromAccount(a domain.Account) Account {
	return Account{
		ID:           a.ID.String(),
		Name:         a.Name,
		Email:        a.Email,
		Mobile:       a.Mobile,
		Balance:      json.Number(a.Balance.String()),
		Status:       string(a.Status),
		UserType:     string(a.Role),
		ProfileImage: a.ProfileImage,
		CreatedAt:    a.CreatedAt,
	}
}

func FromAccounts(in []domain.Account) []Account {
	out := make([]Account, 0, len(in))
	for _, a := range in {
		out = append(out, FromAccount(a))
	}
	return out
}

// Transaction is the public view of a transaction record.
type Transaction struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Sender      string      `json:"sender"`
	Receiver    string      `json:"receiver"`
	Amount      json.Number `json:"amount"`
	Fee         json.Number `json:"fee"`
	Status      string      `json:"status"`
	Timestamp   time.Time   `json:"timestamp"`
	ConfirmedAt *time.Time  `json:"confirmedAt,omitempty"`
}

func FromTransaction(t domain.Transaction) Transaction {
	return Transaction{
		ID:          t.ID.String(),
		Type:        string(t.Type),
		Sender:      t.Sender,
		Receiver:    t.Receiver,
		Amount:      json.Number(t.Amount.String()),
		Fee:         json.Number(t.Fee.String()),
		Status:      string(t.Status),
		Timestamp:   t.Timestamp,
		ConfirmedAt: t.ConfirmedAt,
	}
}

func FromTransactions(in []domain.Transaction) []Transaction {
	out := make([]Transaction, 0, len(in))
	for _, t := range in {
		out = append(out, FromTransaction(t))
	}
	return out
}

// TransferResponse is the canonical response of a money movement. Fee is
// only set for operations that charge one.
type TransferResponse struct {
	Message     string       `json:"message"`
	Sender      Account      `json:"sender"`
	Receiver    Account      `json:"receiver"`
	Fee         *json.Number `json:"fee,omitempty"`
	Transaction Transaction  `json:"transaction"`
}

type SettleResponse struct {
	Message     string      `json:"message"`
	Transaction Transaction `json:"transaction"`
}

type RegisterRequest struct {
	Name         string     `json:"name"`
	PIN          FlexString `json:"pin"`
	Mobile       string     `json:"mobile"`
	Email        string     `json:"email"`
	ProfileImage string     `json:"profileImage"`
	UserType     string     `json:"userType"`
}

// LoginRequest carries an email or a mobile number in Email.
type LoginRequest struct {
	Email string     `json:"email"`
	PIN   FlexString `json:"pin"`
}

type LoginResponse struct {
	Message string  `json:"message"`
	Token   string  `json:"token"`
	User    Account `json:"user"`
}

type StatusUpdateRequest struct {
	Status string `json:"status"`
}

type RoleUpdateRequest struct {
	UserType string `json:"userType"`
}

// RoleView is the lookup answer for /user/{email}.
type RoleView struct {
	Email    string `json:"email"`
	UserType string `json:"userType"`
	Status   string `json:"status"`
}
