package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "ghostpass/pkg/domain"
)

// Gate is a subject's spendable balance and the minimum below which minted
// tokens are locked. It is written by external spend/refill collaborators
// and only read by the minter.
type Gate struct {
	SubjectID     id.SubjectID
	Balance       decimal.Decimal
	LockThreshold decimal.Decimal
	UpdatedAt     time.Time
}

// IsLocked reports whether tokens minted now must carry the locked payload.
func (g *Gate) IsLocked() bool {
	return g.Balance.LessThan(g.LockThreshold)
}

// Change is published whenever a gate is written so open bearer displays can
// re-mint without polling.
type Change struct {
	SubjectID id.SubjectID    `json:"subject_id"`
	Balance   decimal.Decimal `json:"balance"`
	Locked    bool            `json:"locked"`
	At        time.Time       `json:"at"`
}

// ChangeFor builds the notification for a freshly written gate.
func ChangeFor(g *Gate) Change {
	return Change{
		SubjectID: g.SubjectID,
		Balance:   g.Balance,
		Locked:    g.IsLocked(),
		At:        g.UpdatedAt,
	}
}
