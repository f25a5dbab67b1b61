package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateInvoiceNo(t *testing.T) {
	a := GenerateInvoiceNo("INV")
	b := GenerateInvoiceNo("INV")
	assert.Regexp(t, `^INV-[0-9A-F]{8}$`, a)
	assert.NotEqual(t, a, b)
}
