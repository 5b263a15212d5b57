package storage

import "time"

const (
	// Backend bearer token for authenticated API calls.
	KeyAuthToken = "kiosk:%s:auth_token"

	// Persisted transaction-store subset so a restart resumes mid-flow.
	KeyTxnSnapshot = "kiosk:%s:txn"

	// Cached gateway payment token per order: kiosk:{machine}:paytoken:{order_id}.
	KeyPaymentToken = "kiosk:%s:paytoken:%s"

	// Set of announcement ids dismissed on this display.
	KeyDismissedAnnouncements = "kiosk:%s:dismissed"
)

var (
	TTLAuthToken    = 12 * time.Hour
	TTLTxnSnapshot  = 30 * time.Minute
	TTLPaymentToken = 2 * time.Hour
	TTLDismissed    = 30 * 24 * time.Hour
)
