// bpf/bpf_test.go
package bpf

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"xdptriangle/consts"
	"xdptriangle/fastpath"
	"xdptriangle/fastpath/fastpathtest"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus/hooks/test"
)

// loadRunner skips unless the objects are built and the test may load them.
func loadRunner(t *testing.T, role consts.Role) (*Runner, consts.Image) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("loading XDP programs needs root")
	}
	path := ObjectFile(role)
	if _, err := os.Stat(path); err != nil {
		t.Skipf("%s not built; run go generate ./bpf", path)
	}
	img, err := consts.Load("../const.toml")
	if err != nil {
		t.Fatal(err)
	}
	if err := rlimit.RemoveMemlock(); err != nil {
		t.Fatal(err)
	}
	spec, err := LoadSpec(path, role, img)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRunner(spec, role)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r, img
}

func conformanceFrames(t *testing.T, img consts.Image) map[string]fastpath.Frame {
	marked := fastpathtest.Marked(img)
	payload := marked.WithPayload(0xaa, img.Data.Size)

	tosMismatch := payload
	tosMismatch.TOS = 0x00

	otherPort := marked
	otherPort.DstPort = 443

	withOptions := payload
	withOptions.IPOptions = true

	returnLeg := marked
	returnLeg.Dst = img.IP.Logger
	returnLeg.DstPort = 40000

	short := fastpathtest.MustBuild(t, marked)

	return map[string]fastpath.Frame{
		"reflect":      fastpathtest.MustBuild(t, marked),
		"payload":      fastpathtest.MustBuild(t, payload),
		"tos mismatch": fastpathtest.MustBuild(t, tosMismatch),
		"other port":   fastpathtest.MustBuild(t, otherPort),
		"ip options":   fastpathtest.MustBuild(t, withOptions),
		"return leg":   fastpathtest.MustBuild(t, returnLeg),
		"short":        short[:40],
	}
}

func TestConformance(t *testing.T) {
	for _, role := range []consts.Role{consts.Hardworker, consts.Logger, consts.Sensor} {
		t.Run(role.String(), func(t *testing.T) {
			RegisterTestingT(t)

			r, img := loadRunner(t, role)
			logger, _ := test.NewNullLogger()
			model, err := fastpath.NewProgram(img, logger)
			Expect(err).NotTo(HaveOccurred())

			for name, frame := range conformanceFrames(t, img) {
				want := bytes.Clone(frame)
				wantAct := model.Run(role, want)

				gotAct, got, err := r.Run(frame)
				Expect(err).NotTo(HaveOccurred(), name)
				Expect(gotAct).To(Equal(wantAct), name)
				if gotAct != fastpath.Aborted {
					Expect(got).To(Equal([]byte(want)), name)
				}
			}

			stats, err := r.Stats()
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(Equal(model.Stats.Snapshot()))
		})
	}
}

func TestKernelSnapshot(t *testing.T) {
	RegisterTestingT(t)

	r, img := loadRunner(t, consts.Hardworker)
	rd, err := r.Ring()
	Expect(err).NotTo(HaveOccurred())
	defer rd.Close()

	frame := fastpathtest.MustBuild(t, fastpathtest.Marked(img).WithPayload(0xaa, img.Data.Size))
	act, _, err := r.Run(frame)
	Expect(err).NotTo(HaveOccurred())
	Expect(act).To(Equal(fastpath.TX))

	rd.SetDeadline(time.Now())
	var rec ringbuf.Record
	Expect(rd.ReadInto(&rec)).To(Succeed())
	Expect(rec.RawSample).To(Equal(bytes.Repeat([]byte{0xaa}, img.Data.Size)))

	err = rd.ReadInto(&rec)
	Expect(errors.Is(err, os.ErrDeadlineExceeded)).To(BeTrue())
}

// The ringbuf record header costs TARGET_MAP one slot against the model ring.
func TestKernelRingHoldsOneRecordFewer(t *testing.T) {
	RegisterTestingT(t)

	r, img := loadRunner(t, consts.Hardworker)
	logger, _ := test.NewNullLogger()
	model, err := fastpath.NewProgram(img, logger)
	Expect(err).NotTo(HaveOccurred())

	frame := fastpathtest.MustBuild(t, fastpathtest.Marked(img).WithPayload(0xaa, img.Data.Size))
	slots := consts.RingCapacity(img.Data.Size) / img.Data.Size
	for i := 0; i < slots; i++ {
		act, _, err := r.Run(frame)
		Expect(err).NotTo(HaveOccurred())
		Expect(act).To(Equal(fastpath.TX))
		model.Run(consts.Hardworker, bytes.Clone(frame))
	}

	stats, err := r.Stats()
	Expect(err).NotTo(HaveOccurred())
	Expect(stats[fastpath.StatSnapshot]).To(BeEquivalentTo(slots - 1))
	Expect(stats[fastpath.StatRingFull]).To(BeEquivalentTo(1))

	ms := model.Stats.Snapshot()
	Expect(ms[fastpath.StatSnapshot]).To(BeEquivalentTo(slots))
	Expect(ms[fastpath.StatRingFull]).To(BeZero())
}

func TestLoadSpecRejectsMissingObject(t *testing.T) {
	RegisterTestingT(t)

	_, err := LoadSpec("does-not-exist.o", consts.Hardworker, fastpathtest.Image())
	Expect(err).To(MatchError(ContainSubstring("load spec")))
}
