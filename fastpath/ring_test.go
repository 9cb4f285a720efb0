// fastpath/ring_test.go
package fastpath_test

import (
	"encoding/binary"
	"runtime"
	"sync"
	"testing"

	"xdptriangle/fastpath"

	. "github.com/onsi/gomega"
)

func TestNewRingValidates(t *testing.T) {
	RegisterTestingT(t)

	_, err := fastpath.NewRing(1000, 512)
	Expect(err).To(HaveOccurred())
	_, err = fastpath.NewRing(3*512, 512)
	Expect(err).To(MatchError(ContainSubstring("power of two")))

	r, err := fastpath.NewRing(8192, 512)
	Expect(err).NotTo(HaveOccurred())
	Expect(r.Slots()).To(Equal(16))
	Expect(r.RecordSize()).To(Equal(512))
}

func TestRingOrderAndRelease(t *testing.T) {
	RegisterTestingT(t)

	r, err := fastpath.NewRing(64, 8)
	Expect(err).NotTo(HaveOccurred())

	for round := 0; round < 3; round++ {
		for i := 0; i < r.Slots(); i++ {
			res, ok := r.Reserve()
			Expect(ok).To(BeTrue())
			Expect(res.Bytes()).To(HaveLen(8))
			binary.LittleEndian.PutUint64(res.Bytes(), uint64(round*100+i))
			res.Submit()
		}
		_, ok := r.Reserve()
		Expect(ok).To(BeFalse())

		for i := 0; i < r.Slots(); i++ {
			var got uint64
			Expect(r.Next(func(b []byte) { got = binary.LittleEndian.Uint64(b) })).To(BeTrue())
			Expect(got).To(BeEquivalentTo(round*100 + i))
		}
		Expect(r.Next(func([]byte) { t.Error("unexpected record") })).To(BeFalse())
	}
}

func TestRingHidesUnsubmittedAndDiscarded(t *testing.T) {
	RegisterTestingT(t)

	r, err := fastpath.NewRing(32, 8)
	Expect(err).NotTo(HaveOccurred())

	a, _ := r.Reserve()
	b, _ := r.Reserve()
	b.Bytes()[0] = 'b'
	b.Submit()

	// a precedes b and is still being written.
	Expect(r.Next(func([]byte) {})).To(BeFalse())

	a.Discard()
	a.Submit()
	var seen []byte
	Expect(r.Next(func(p []byte) { seen = append(seen, p[0]) })).To(BeTrue())
	Expect(seen).To(Equal([]byte{'b'}))
	Expect(r.Len()).To(BeZero())
}

func TestRingReadySignal(t *testing.T) {
	RegisterTestingT(t)

	r, err := fastpath.NewRing(32, 8)
	Expect(err).NotTo(HaveOccurred())
	Consistently(r.Ready()).ShouldNot(Receive())

	for i := 0; i < 3; i++ {
		res, _ := r.Reserve()
		res.Submit()
	}
	Eventually(r.Ready()).Should(Receive())
	Consistently(r.Ready()).ShouldNot(Receive())
}

func TestRingConcurrentProducers(t *testing.T) {
	RegisterTestingT(t)

	const (
		producers = 4
		perProd   = 20000
	)
	r, err := fastpath.NewRing(16*16, 16)
	Expect(err).NotTo(HaveOccurred())

	var wg sync.WaitGroup
	for id := 0; id < producers; id++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			for seq := uint64(0); seq < perProd; {
				res, ok := r.Reserve()
				if !ok {
					runtime.Gosched()
					continue
				}
				binary.LittleEndian.PutUint64(res.Bytes()[0:], id)
				binary.LittleEndian.PutUint64(res.Bytes()[8:], seq)
				res.Submit()
				seq++
			}
		}(uint64(id))
	}

	next := make([]uint64, producers)
	total := 0
	for total < producers*perProd {
		if !r.Next(func(b []byte) {
			id := binary.LittleEndian.Uint64(b[0:])
			seq := binary.LittleEndian.Uint64(b[8:])
			if seq != next[id] {
				t.Errorf("producer %d: got seq %d, want %d", id, seq, next[id])
			}
			next[id] = seq + 1
		}) {
			runtime.Gosched()
			continue
		}
		total++
	}
	wg.Wait()
	Expect(r.Len()).To(BeZero())
}
