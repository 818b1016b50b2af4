package domain

// GatewayResult is the outcome of one call to the external payment processor.
// It is either a GatewaySuccess or a GatewayFailure.
type GatewayResult interface {
	isGatewayResult()
}

type GatewaySuccess struct {
	TransactionID string
	Data          map[string]any
}

type GatewayFailure struct {
	ErrorCode string
	Message   string
	Data      map[string]any
}

func (GatewaySuccess) isGatewayResult() {}
func (GatewayFailure) isGatewayResult() {}

const (
	ErrCodeRejected    = "payment_rejected"
	ErrCodeDeclined    = "card_declined"
	ErrCodeUnavailable = "gateway_unavailable"
)

// TransactionStatus is the gateway's view of an already processed transaction.
type TransactionStatus struct {
	Success bool
	Status  string
	Data    map[string]any
}
