package service

import (
	"github.com/shopspring/decimal"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
)

var (
	sendMoneyFee       = domain.NewAmount(5)
	sendMoneyThreshold = domain.NewAmount(100)
	cashOutRate        = decimal.RequireFromString("0.015")
)

// quote is the priced effect of one operation on a principal.
type quote struct {
	fee    domain.Amount
	debit  domain.Amount // taken from the sender
	credit domain.Amount // given to the receiver
	cover  domain.Amount // sender balance required to proceed
}

type rule struct {
	senderRole   domain.Role
	receiverRole domain.Role

	senderDenied   string
	receiverDenied string

	status domain.TxStatus
	price  func(p domain.Amount) quote
}

// rules is the single table of admissible operations. Adding an operation
// means adding one entry here.
var rules = map[domain.Operation]rule{
	domain.OpSendMoney: {
		senderRole:     domain.RoleUser,
		receiverRole:   domain.RoleUser,
		senderDenied:   "Only users can send money",
		receiverDenied: "Users can only send to other users",
		status:         domain.TxConfirm,
		price: func(p domain.Amount) quote {
			fee := domain.Zero
			if p.GreaterThan(sendMoneyThreshold) {
				fee = sendMoneyFee
			}
			// The fee leaves the ledger.
			return quote{fee: fee, debit: p.Add(fee), credit: p, cover: p.Add(fee)}
		},
	},
	domain.OpCashOut: {
		senderRole:     domain.RoleUser,
		receiverRole:   domain.RoleAgent,
		senderDenied:   "Only users can perform cash out",
		receiverDenied: "Users can only send money to agents",
		status:         domain.TxConfirm,
		price: func(p domain.Amount) quote {
			fee := p.Mul(cashOutRate)
			// The agent is credited the fee.
			total := p.Add(fee)
			return quote{fee: fee, debit: total, credit: total, cover: total}
		},
	},
	domain.OpCashIn: {
		senderRole:     domain.RoleAgent,
		receiverRole:   domain.RoleUser,
		senderDenied:   "Only agents can do cash-in",
		receiverDenied: "Agents can only send to users",
		status:         domain.TxConfirm,
		price:          flat,
	},
	domain.OpCashInRequest: {
		senderRole:     domain.RoleUser,
		receiverRole:   domain.RoleUser,
		senderDenied:   "Only users can send cash-in requests",
		receiverDenied: "Cash-in requests can only be sent to users",
		status:         domain.TxPending,
		price:          deferred,
	},
	domain.OpCashOutRequest: {
		senderRole:     domain.RoleAgent,
		receiverRole:   domain.RoleUser,
		senderDenied:   "Only agent can send cash-out requests",
		receiverDenied: "Cash-out requests can only be sent to users",
		status:         domain.TxPending,
		price:          deferred,
	},
}

func flat(p domain.Amount) quote {
	return quote{fee: domain.Zero, debit: p, credit: p, cover: p}
}

// deferred checks that the sender could cover p but moves nothing until
// settlement.
func deferred(p domain.Amount) quote {
	return quote{fee: domain.Zero, debit: domain.Zero, credit: domain.Zero, cover: p}
}
