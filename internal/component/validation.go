package component

import (
	"fmt"
	"net"
	"regexp"

	"github.com/google/uuid"
)

const maxIDLength = 100

// idPattern allows the ids operators actually assign: "kiosk-1",
// "gallery2_projector", "PHOTO BOOTH" is rejected (no spaces).
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var validKinds = func() map[Kind]struct{} {
	m := make(map[Kind]struct{}, len(AllKinds()))
	for _, k := range AllKinds() {
		m[k] = struct{}{}
	}
	return m
}()

// Validate checks a component record before it enters the registry.
func Validate(c *Component) error {
	if c.ID == "" || len(c.ID) > maxIDLength || !idPattern.MatchString(c.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, c.ID)
	}
	if c.UUID == "" {
		return fmt.Errorf("%w: missing uuid", ErrInvalid)
	}
	if _, ok := validKinds[c.Kind]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidKind, c.Kind)
	}
	if c.Kind == KindWakeOnLAN && c.HardwareAddress != "" {
		if _, err := net.ParseMAC(c.HardwareAddress); err != nil {
			return fmt.Errorf("%w: hardware address %q: %v", ErrInvalid, c.HardwareAddress, err)
		}
	}
	return nil
}

// GenerateUUID creates the immutable identifier assigned to a component
// on creation. It survives renames of the stable id.
func GenerateUUID() string {
	return uuid.New().String()
}
