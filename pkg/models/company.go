package models

import "fmt"

// Credentials are the portal login pair. They are only ever read by the
// authenticator and must not be logged.
type Credentials struct {
	TaxpayerId string `json:"taxpayerId"`
	Password   string `json:"password"`
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{TaxpayerId: %s}", MaskTaxpayerId(c.TaxpayerId))
}

// Company is a filing entity the logged-in user can act for. Index is the
// position of the entity in the portal's selection control and is only
// meaningful within a single session.
type Company struct {
	TaxpayerId string `json:"taxpayerId,omitempty"`
	Name       string `json:"name"`
	Index      int    `json:"index"`
}

// MaskTaxpayerId keeps the first two and the last digit of id.
func MaskTaxpayerId(id string) string {
	if len(id) <= 3 {
		return "***"
	}
	masked := []byte(id)
	for i := 2; i < len(masked)-1; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
