package service

import (
	"regexp"
	"strings"

	"checkout-service/internal/models"
	"checkout-service/internal/upstream"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// validateCheckoutFields enforces field-level validation before the
// confirmation step may run: contact fields always, shipping fields
// only while the home-service toggle is set. Failures are validation
// class and never reach the network.
func validateCheckoutFields(checkout *models.CheckoutContext) error {
	if strings.TrimSpace(checkout.Contact.Email) == "" {
		return upstream.NewValidationError("an email address is required")
	}
	if !emailPattern.MatchString(checkout.Contact.Email) {
		return upstream.NewValidationError("%q is not a valid email address", checkout.Contact.Email)
	}
	if strings.TrimSpace(checkout.Contact.FirstName) == "" {
		return upstream.NewValidationError("a first name is required")
	}
	if strings.TrimSpace(checkout.Contact.LastName) == "" {
		return upstream.NewValidationError("a last name is required")
	}

	if !checkout.HomeService {
		return nil
	}

	if checkout.Shipping == nil {
		return upstream.NewValidationError("a shipping address is required for home service")
	}
	if strings.TrimSpace(checkout.Shipping.Address) == "" {
		return upstream.NewValidationError("a street address is required for home service")
	}
	if strings.TrimSpace(checkout.Shipping.City) == "" {
		return upstream.NewValidationError("a city is required for home service")
	}
	if checkout.Shipping.RegionID == 0 {
		return upstream.NewValidationError("a region is required for home service")
	}
	if strings.TrimSpace(checkout.Shipping.PostalCode) == "" {
		return upstream.NewValidationError("a postal code is required for home service")
	}
	return nil
}
