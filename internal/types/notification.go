package types

// ReceiptKind selects the customer-facing message template.
type ReceiptKind string

const (
	ReceiptPayment ReceiptKind = "payment"
	ReceiptRefund  ReceiptKind = "refund"
)

// Receipt is a customer notification triggered by a payment event.
type Receipt struct {
	Kind     ReceiptKind
	EventID  string
	To       string
	ObjectID string // payment intent or refund id
	Amount   int64
	Currency string
}

// Severity grades admin notices; it drives the subject prefix.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// AdminNotice tells the site operator about a payment event that may need
// attention.
type AdminNotice struct {
	EventID   string
	EventType string
	Severity  Severity
	Summary   string
	ObjectID  string
	Amount    int64
	Currency  string
	// Detail carries processor-provided text such as a decline message or a
	// dispute reason.
	Detail string
}
