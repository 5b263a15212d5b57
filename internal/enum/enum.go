package enum

// --- Order lifecycle (backend-owned; observed by re-fetch, never computed here) ---

const (
	OrderStatusPending    = "PENDING"
	OrderStatusPaid       = "PAID"
	OrderStatusDispensing = "DISPENSING"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusFailed     = "FAILED"
)

// --- Gateway transaction statuses (Snap vocabulary) ---

const (
	TxnStatusPending    = "pending"
	TxnStatusSettlement = "settlement"
	TxnStatusCapture    = "capture"
	TxnStatusDeny       = "deny"
	TxnStatusCancel     = "cancel"
	TxnStatusExpire     = "expire"
)

// --- Machine status ---

const (
	MachineStatusOnline      = "ONLINE"
	MachineStatusOffline     = "OFFLINE"
	MachineStatusMaintenance = "MAINTENANCE"
)

// --- Operator roles on the agent's admin surface ---

const (
	RoleAdmin      = "ADMIN"
	RoleOperator   = "OPERATOR"
	RoleTechnician = "TECHNICIAN"
)

// --- Announcement tracking actions ---

const (
	AnnouncementTrackView  = "view"
	AnnouncementTrackClick = "click"
)
