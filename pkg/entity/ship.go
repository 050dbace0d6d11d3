// pkg/entity/ship.go
package entity

import (
	"fmt"
	"strings"

	"github.com/opd-ai/go-flight/pkg/physics"
)

// ShipClass selects the hull an actor flies and therefore its flight tuning.
type ShipClass int

const (
	Fighter ShipClass = iota
	Interceptor
	Capital
)

var hulls = [...]struct {
	name    string
	profile string
}{
	Fighter:     {"Fighter", physics.ProfileDefault},
	Interceptor: {"Interceptor", physics.ProfileAgile},
	Capital:     {"Capital", physics.ProfileWeighty},
}

func (c ShipClass) valid() bool {
	return c >= 0 && int(c) < len(hulls)
}

// String returns the class name. Out-of-range classes read as Fighter.
func (c ShipClass) String() string {
	if !c.valid() {
		return hulls[Fighter].name
	}
	return hulls[c].name
}

// Profile returns the physics profile name used by the class.
func (c ShipClass) Profile() string {
	if !c.valid() {
		return hulls[Fighter].profile
	}
	return hulls[c].profile
}

func classParameters(class ShipClass) physics.FlightParameters {
	p, ok := physics.ProfileParameters(class.Profile())
	if !ok {
		return physics.DefaultParameters()
	}
	return p
}

// ParseShipClass matches a class name in any case. An empty name is a Fighter.
func ParseShipClass(s string) (ShipClass, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Fighter, nil
	}
	for c, h := range hulls {
		if strings.EqualFold(s, h.name) {
			return ShipClass(c), nil
		}
	}
	return Fighter, fmt.Errorf("unknown ship class %q", s)
}

// ShipClassFromString is ParseShipClass with unknown names flying as fighters.
func ShipClassFromString(s string) ShipClass {
	c, _ := ParseShipClass(s)
	return c
}
