package checkout

import "errors"

var (
	// ErrOverpayment is returned when a split's amount to pay exceeds its amount due.
	ErrOverpayment = errors.New("amount to pay exceeds amount due")
	// ErrIncompleteFiscalInfo is returned when a credito fiscal invoice lacks NIT, NRC or name.
	ErrIncompleteFiscalInfo = errors.New("incomplete fiscal invoice information")
	// ErrUnderfundedSplit is returned when paid splits do not cover the grand total.
	ErrUnderfundedSplit = errors.New("paid splits do not cover the total")
	// ErrMissingPaymentMethod is returned when a payment has no method.
	ErrMissingPaymentMethod = errors.New("payment method is required")
	// ErrItemAlreadyCovered is returned when an item is selected into a second split.
	ErrItemAlreadyCovered = errors.New("item already covered by another split")
	// ErrSplitFrozen is returned when editing a split that has been paid.
	ErrSplitFrozen = errors.New("split is already paid")
	// ErrInvalidStep is returned for navigation the wizard does not allow.
	ErrInvalidStep = errors.New("invalid checkout step")
	// ErrPaymentsStarted is returned when changing amounts after a split was paid.
	ErrPaymentsStarted = errors.New("payments already recorded for this checkout")
	// ErrInvalidCommand is returned for malformed commands.
	ErrInvalidCommand = errors.New("invalid checkout command")
	// ErrSessionNotFound is returned when a checkout session does not exist or expired.
	ErrSessionNotFound = errors.New("checkout session not found")
)
