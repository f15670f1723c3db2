package validation

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct validates v against its `validate` struct tags.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		f := verrs[0]
		return fmt.Errorf("field %s failed validation on %s", f.Field(), f.Tag())
	}
	return err
}

var (
	clientSystemRe    = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,63}$`)
	externalOrderIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)
)

// ClientSystem checks a client system identifier: lowercase alphanumerics,
// hyphens and underscores, 2 to 64 characters.
func ClientSystem(s string) error {
	if !clientSystemRe.MatchString(s) {
		return fmt.Errorf("client_system must be 2-64 lowercase alphanumeric, hyphen or underscore characters")
	}
	return nil
}

// ExternalOrderID checks the client system's own order identifier.
func ExternalOrderID(s string) error {
	if !externalOrderIDRe.MatchString(s) {
		return fmt.Errorf("external_order_id must be 1-64 alphanumeric, dot, hyphen or underscore characters")
	}
	return nil
}

// AllowedIPs checks an API key allow-list. Entries are single addresses or
// CIDR prefixes; an empty list is valid and means any source.
func AllowedIPs(entries []string) error {
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			if _, err := netip.ParsePrefix(entry); err != nil {
				return fmt.Errorf("invalid CIDR %q in allowed_ips", entry)
			}
			continue
		}
		if _, err := netip.ParseAddr(entry); err != nil {
			return fmt.Errorf("invalid IP address %q in allowed_ips", entry)
		}
	}
	return nil
}
