// Package receipt renders the QR code the courier scans at hand-off.
package receipt

import (
	"fmt"

	"github.com/safar/go-food-delivery/internal/models"
	"github.com/skip2/go-qrcode"
)

const size = 256

// Payload is the text encoded in the QR code.
func Payload(order *models.Order) string {
	return fmt.Sprintf("%s|%s|%s", order.OrderNumber, order.TotalAmount.StringFixed(2), order.PaymentMethod)
}

// PNG encodes the order's hand-off payload.
func PNG(order *models.Order) ([]byte, error) {
	if order.OrderNumber == "" {
		return nil, fmt.Errorf("order %d has no order number", order.ID)
	}
	return qrcode.Encode(Payload(order), qrcode.Medium, size)
}
