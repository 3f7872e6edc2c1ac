package stindem

import (
	"errors"
	"fmt"

	"github.com/layer-3/stindem/core"
)

// Describe renders err as a user facing message. Failures that need human
// follow-up get distinct messages carrying the identifiers needed to reconcile them.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var (
		rerr *core.ReconciliationError
		eerr *core.EventNotFoundError
		cerr *core.ConfirmationError
		verr *core.VerificationError
	)
	switch {
	case errors.As(err, &rerr):
		return fmt.Sprintf("The %s transaction %s succeeded on-chain but its record was not saved (transaction id %s). "+
			"Run retry-record %s or contact support with these identifiers.", rerr.Kind, rerr.TxHash, rerr.TransactionID, rerr.TxHash)
	case errors.As(err, &eerr):
		return fmt.Sprintf("Transaction %s confirmed but did not emit %s, so it cannot be recorded automatically. "+
			"Contact support with the transaction hash.", eerr.TxHash, eerr.EventName)
	case errors.As(err, &cerr):
		switch cerr.Remedy() {
		case core.RemedyRetry:
			return fmt.Sprintf("Transaction %s was reverted. Nothing changed on-chain; you can submit it again.", cerr.TxHash)
		case core.RemedyPollAgain:
			return fmt.Sprintf("Transaction %s landed but its receipt could not be read. Run resume %s to check again.", cerr.TxHash, cerr.TxHash)
		default:
			return fmt.Sprintf("The network did not confirm transaction %s and it may still land. "+
				"Do not submit again; run resume %s later.", cerr.TxHash, cerr.TxHash)
		}
	case errors.Is(err, core.ErrActionInFlight):
		return "This action is already in progress."
	case errors.Is(err, core.ErrProviderUnavailable):
		return "No wallet found. Install or configure a keystore or clef wallet."
	case errors.Is(err, core.ErrUserRejected):
		return "Request cancelled in the wallet."
	case errors.Is(err, core.ErrNotAuthorized):
		return "The wallet has not authorized this application yet. Connect interactively first."
	case errors.Is(err, core.ErrNotConnected):
		return "Connect a wallet first."
	case errors.Is(err, core.ErrNotAuthenticated):
		return "Sign in first."
	case errors.Is(err, core.ErrNonce):
		return "Could not start the sign-in. Please try again."
	case errors.As(err, &verr):
		return "The signature was not accepted. Please sign in again."
	case errors.Is(err, core.ErrExecution):
		return fmt.Sprintf("The transaction was not sent: %v", errors.Unwrap(err))
	case errors.Is(err, core.ErrInvalidCredentials):
		return "Wrong email or password."
	case errors.Is(err, core.ErrProvider):
		return fmt.Sprintf("Wallet error: %v", err)
	default:
		return err.Error()
	}
}
