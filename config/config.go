// config/config.go
// Package config reads the per-host config.toml and merges it with the
// const image into the settings one role runs with.
package config

import (
	"errors"
	"fmt"
	"time"

	"xdptriangle/consts"

	"github.com/BurntSushi/toml"
)

// File mirrors config.toml.
type File struct {
	Timeout int  `toml:"timeout"`
	TCP     *TCP `toml:"tcp"`
}

// TCP is the [tcp] section. Zero values fall back to the const image.
type TCP struct {
	IfName string      `toml:"ifname"`
	IP     consts.IPv4 `toml:"ip"`
	Port   uint16      `toml:"port"`
	TOS    uint8       `toml:"tos"`
	Size   int         `toml:"size"`
	Freq   float64     `toml:"freq"`
	Target consts.Role `toml:"target"`
}

// Config is what a role runs with.
type Config struct {
	Role consts.Role

	// IfName may be empty; see ResolveInterface.
	IfName string
	// IP is the listen address for the logger and hardworker, the
	// destination for the sensor.
	IP   consts.IPv4
	Port uint16
	TOS  uint8
	Size int
	// Freq is the sensor's send rate in Hz.
	Freq   float64
	Target consts.Role

	// Timeout is zero when the daemon runs until interrupted.
	Timeout time.Duration
}

var ErrNoTCPSection = errors.New("missing [tcp] section")

func Load(path string) (File, error) {
	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return File{}, fmt.Errorf("decode config %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return File{}, fmt.Errorf("config %q: unknown keys %v", path, undecoded)
	}
	return f, nil
}

// Merge fills every unset field from img and checks the result.
func (f File) Merge(role consts.Role, img consts.Image) (Config, error) {
	if f.TCP == nil {
		return Config{}, ErrNoTCPSection
	}
	if f.Timeout < 0 {
		return Config{}, fmt.Errorf("timeout %d is negative", f.Timeout)
	}
	t := *f.TCP

	c := Config{
		Role:    role,
		IfName:  t.IfName,
		IP:      t.IP,
		Port:    t.Port,
		TOS:     t.TOS,
		Size:    t.Size,
		Freq:    t.Freq,
		Target:  t.Target,
		Timeout: time.Duration(f.Timeout) * time.Second,
	}
	if c.Target == 0 {
		c.Target = consts.Hardworker
	}
	if c.IP.IsZero() {
		switch role {
		case consts.Sensor:
			c.IP = img.Addr(c.Target)
		default:
			c.IP = img.Addr(role)
		}
	}
	if c.Port == 0 {
		c.Port = img.Mark.Port
	}
	if c.TOS == 0 {
		c.TOS = img.Mark.TOS
	}
	if c.Size == 0 {
		c.Size = img.Data.Size
	}
	if c.Freq == 0 {
		c.Freq = 1
	}

	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	if c.Target == consts.Sensor {
		return fmt.Errorf("target %s: the sensor only receives reflected traffic", c.Target)
	}
	if c.Freq < 0 {
		return fmt.Errorf("freq %g is negative", c.Freq)
	}
	if c.Size <= 0 {
		return fmt.Errorf("size %d must be positive", c.Size)
	}
	if err := consts.CheckMark(c.TOS); err != nil {
		return fmt.Errorf("tos: %w", err)
	}
	return nil
}

// Interval is the gap between two sensor sends.
func (c Config) Interval() time.Duration {
	return time.Duration(float64(time.Second) / c.Freq)
}
