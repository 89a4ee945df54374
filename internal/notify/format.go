package notify

import (
	"fmt"
	"strings"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// PositionOpened renders an alert for a persisted OPEN row.
func PositionOpened(pos domain.Position) (title, message string) {
	title = fmt.Sprintf("Opened %s %s/%s", pos.Coin, pos.KrExchange, pos.FrExchange)
	message = fmt.Sprintf("user %d strategy %d\nentry rate %.2f\ndomestic %.8f @ %.2f (funds %.0f)\nforeign %.8f @ %.8f x%d",
		pos.UserID, pos.StrategyID, pos.EntryRate,
		pos.KrVolume, pos.KrPrice, pos.KrFunds,
		pos.FrVolume, pos.FrPrice, pos.Leverage,
	)
	return title, message
}

// PositionClosed renders an alert for a persisted CLOSED row.
func PositionClosed(pos domain.Position) (title, message string) {
	title = fmt.Sprintf("Closed %s %s/%s", pos.Coin, pos.KrExchange, pos.FrExchange)
	var b strings.Builder
	fmt.Fprintf(&b, "user %d strategy %d", pos.UserID, pos.StrategyID)
	if pos.ExitRate != nil {
		fmt.Fprintf(&b, "\nexit rate %.2f", *pos.ExitRate)
	}
	if pos.Profit != nil {
		fmt.Fprintf(&b, "\nprofit %.2f", *pos.Profit)
	}
	if pos.ProfitRate != nil {
		fmt.Fprintf(&b, " (%.2f%%)", *pos.ProfitRate)
	}
	return title, b.String()
}

// PartialExecution renders an alert for a lifecycle that stopped between
// legs and needs manual reconciliation.
func PartialExecution(userID int64, coin string, perr *domain.PartialExecutionError) (title, message string) {
	title = fmt.Sprintf("MANUAL CHECK %s %s", strings.ToUpper(string(perr.Kind)), coin)
	message = fmt.Sprintf("user %d execution %s\nstage %s\ndomestic order %q\nforeign order %q\n%v",
		userID, perr.ExecutionID, perr.Stage,
		perr.DomesticOrderID, perr.ForeignOrderID, perr.Err,
	)
	return title, message
}
