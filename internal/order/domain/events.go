package domain

const EventOrderCreated = "order.created"

type OrderCreated struct {
	OrderID      string `json:"order_id"`
	CustomerName string `json:"customer_name"`
	TotalAmount  string `json:"total_amount"`
}
