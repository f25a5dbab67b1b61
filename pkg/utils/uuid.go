package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateInvoiceNo generates a unique invoice number such as INV-1A2B3C4D
func GenerateInvoiceNo(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.New().String()[:8])
}
