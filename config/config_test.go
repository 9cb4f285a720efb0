// config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"xdptriangle/consts"
	"xdptriangle/fastpath/fastpathtest"

	. "github.com/onsi/gomega"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadShippedConfig(t *testing.T) {
	RegisterTestingT(t)

	f, err := Load("../config.toml")
	Expect(err).NotTo(HaveOccurred())
	Expect(f.TCP).NotTo(BeNil())
	Expect(f.TCP.Freq).To(Equal(10.0))
	Expect(f.TCP.Target).To(Equal(consts.Hardworker))
}

func TestMergeDefaults(t *testing.T) {
	RegisterTestingT(t)
	img := fastpathtest.Image()
	f := File{TCP: &TCP{}}

	c, err := f.Merge(consts.Logger, img)
	Expect(err).NotTo(HaveOccurred())
	Expect(c.IP).To(Equal(img.IP.Logger))
	Expect(c.Port).To(Equal(img.Mark.Port))
	Expect(c.TOS).To(Equal(img.Mark.TOS))
	Expect(c.Size).To(Equal(img.Data.Size))
	Expect(c.Freq).To(Equal(1.0))
	Expect(c.Target).To(Equal(consts.Hardworker))
	Expect(c.Timeout).To(BeZero())

	c, err = f.Merge(consts.Hardworker, img)
	Expect(err).NotTo(HaveOccurred())
	Expect(c.IP).To(Equal(img.IP.Hardworker))

	c, err = f.Merge(consts.Sensor, img)
	Expect(err).NotTo(HaveOccurred())
	Expect(c.IP).To(Equal(img.IP.Hardworker))
}

func TestMergeOverrides(t *testing.T) {
	RegisterTestingT(t)
	img := fastpathtest.Image()

	f, err := Load(writeConfig(t, `
timeout = 30
[tcp]
ifname = "ens3"
ip = "10.0.0.7"
port = 9100
tos = 0x48
size = 256
freq = 2.5
target = "logger"
`))
	Expect(err).NotTo(HaveOccurred())

	c, err := f.Merge(consts.Sensor, img)
	Expect(err).NotTo(HaveOccurred())
	Expect(c).To(Equal(Config{
		Role:    consts.Sensor,
		IfName:  "ens3",
		IP:      consts.IPv4{10, 0, 0, 7},
		Port:    9100,
		TOS:     0x48,
		Size:    256,
		Freq:    2.5,
		Target:  consts.Logger,
		Timeout: 30 * time.Second,
	}))
	Expect(c.Interval()).To(Equal(400 * time.Millisecond))

	name, err := c.ResolveInterface()
	Expect(err).NotTo(HaveOccurred())
	Expect(name).To(Equal("ens3"))
}

func TestSensorTargetsLogger(t *testing.T) {
	RegisterTestingT(t)
	img := fastpathtest.Image()

	c, err := File{TCP: &TCP{Target: consts.Logger}}.Merge(consts.Sensor, img)
	Expect(err).NotTo(HaveOccurred())
	Expect(c.IP).To(Equal(img.IP.Logger))
}

func TestMergeErrors(t *testing.T) {
	RegisterTestingT(t)
	img := fastpathtest.Image()

	_, err := File{}.Merge(consts.Logger, img)
	Expect(err).To(MatchError(ErrNoTCPSection))

	_, err = File{TCP: &TCP{TOS: 0x21}}.Merge(consts.Logger, img)
	Expect(err).To(MatchError(ContainSubstring("tos")))

	_, err = File{TCP: &TCP{Target: consts.Sensor}}.Merge(consts.Sensor, img)
	Expect(err).To(MatchError(ContainSubstring("only receives")))

	_, err = File{Timeout: -1, TCP: &TCP{}}.Merge(consts.Logger, img)
	Expect(err).To(MatchError(ContainSubstring("negative")))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	RegisterTestingT(t)

	_, err := Load(writeConfig(t, "[tcp]\nfreqq = 3\n"))
	Expect(err).To(MatchError(ContainSubstring("unknown keys")))

	_, err = Load(writeConfig(t, "[tcp]\ntarget = \"router\"\n"))
	Expect(err).To(MatchError(ContainSubstring("unknown role")))
}
