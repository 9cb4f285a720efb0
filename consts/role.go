// consts/role.go
package consts

import (
	"fmt"
	"strings"
)

// Role is a host's function in the triangle.
type Role uint8

const (
	Logger Role = iota + 1
	Hardworker
	Sensor
)

var roleNames = map[Role]string{
	Logger:     "logger",
	Hardworker: "hardworker",
	Sensor:     "sensor",
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// ProgramName is the symbol of the role's XDP classifier in its object file.
func (r Role) ProgramName() string { return r.String() }

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, n := range roleNames {
		if n == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Addr returns the role's IPv4 address in the image.
func (img Image) Addr(r Role) IPv4 {
	switch r {
	case Logger:
		return img.IP.Logger
	case Hardworker:
		return img.IP.Hardworker
	case Sensor:
		return img.IP.Sensor
	}
	return IPv4{}
}
