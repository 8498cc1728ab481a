package pipeline_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/degirum/gosdk/cmn"
	"github.com/degirum/gosdk/core"
	"github.com/degirum/gosdk/pipeline"
)

var _ = Describe("Pipeline", func() {
	var p *pipeline.Pipeline

	BeforeEach(func() {
		p = pipeline.New(2, time.Second, nil)
	})

	It("rejects submit before a callback is installed", func() {
		err := p.Submit("t", func() error { return nil })
		Expect(cmn.Is(err, cmn.IncorrectAPIUse)).To(BeTrue())
	})

	It("dispatches results in submission order", func() {
		var mu sync.Mutex
		var got []string
		Expect(p.InstallCallback(func(doc map[string]any, tag string) {
			mu.Lock()
			got = append(got, tag)
			mu.Unlock()
		})).To(Succeed())

		for _, tag := range []string{"a", "b", "c"} {
			Expect(p.Submit(tag, func() error { return nil })).To(Succeed())
			p.DeliverResult(map[string]any{"success": true})
		}
		p.Finish()

		mu.Lock()
		defer mu.Unlock()
		Expect(got).To(Equal([]string{"a", "b", "c"}))
		Expect(p.LastError()).To(BeEmpty())
	})

	It("blocks submit once the window is full and unblocks on delivery", func() {
		Expect(p.InstallCallback(func(map[string]any, string) {})).To(Succeed())
		Expect(p.Submit("1", func() error { return nil })).To(Succeed())
		Expect(p.Submit("2", func() error { return nil })).To(Succeed())
		Expect(p.OutstandingCount()).To(Equal(2))

		unblocked := make(chan struct{})
		go func() {
			_ = p.Submit("3", func() error { return nil })
			close(unblocked)
		}()

		Consistently(unblocked, 100*time.Millisecond).ShouldNot(BeClosed())
		p.DeliverResult(map[string]any{"success": true})
		Eventually(unblocked, time.Second).Should(BeClosed())
	})

	It("times out a submit that waits past inference_timeout", func() {
		p = pipeline.New(1, 50*time.Millisecond, nil)
		Expect(p.InstallCallback(func(map[string]any, string) {})).To(Succeed())
		Expect(p.Submit("1", func() error { return nil })).To(Succeed())

		err := p.Submit("2", func() error { return nil })
		Expect(cmn.Is(err, cmn.Timeout)).To(BeTrue())
		Expect(cmn.Is(p.LastErrorValue(), cmn.Timeout)).To(BeTrue())
	})

	It("sets a sticky error on the first server failure and suppresses the rest", func() {
		var dispatched int
		Expect(p.InstallCallback(func(map[string]any, string) { dispatched++ })).To(Succeed())
		Expect(p.Submit("1", func() error { return nil })).To(Succeed())
		Expect(p.Submit("2", func() error { return nil })).To(Succeed())

		p.DeliverResult(map[string]any{"success": false, "msg": "boom"})
		p.DeliverResult(map[string]any{"success": false, "msg": "boom again"})

		Expect(p.LastError()).To(ContainSubstring("boom"))
		Expect(p.LastError()).NotTo(ContainSubstring("again"))
		Expect(dispatched).To(Equal(1))
	})

	It("recovers a panicking callback without losing subsequent results", func() {
		var secondTag string
		called := 0
		Expect(p.InstallCallback(func(doc map[string]any, tag string) {
			called++
			if tag == "1" {
				panic("boom")
			}
			secondTag = tag
		})).To(Succeed())

		Expect(p.Submit("1", func() error { return nil })).To(Succeed())
		Expect(p.Submit("2", func() error { return nil })).To(Succeed())
		p.DeliverResult(map[string]any{"success": true})
		p.DeliverResult(map[string]any{"success": true})

		Expect(called).To(Equal(2))
		Expect(secondTag).To(Equal("2"))
	})

	It("predicts a single frame via the install/submit/finish machinery", func() {
		go func() {
			time.Sleep(10 * time.Millisecond)
			p.DeliverResult(map[string]any{"success": true, "label": "cat"})
		}()
		doc, err := p.Predict(core.FrameBatch{[]byte("frame")}, func(string, core.FrameBatch) error { return nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(doc["label"]).To(Equal("cat"))
		Expect(p.HasCallback()).To(BeFalse())
	})

	It("predicts a batch of frames and returns results in order", func() {
		go func() {
			for i := 0; i < 3; i++ {
				time.Sleep(5 * time.Millisecond)
				p.DeliverResult(map[string]any{"success": true, "n": i})
			}
		}()
		batches := make([]core.FrameBatch, 3)
		for i := range batches {
			batches[i] = core.FrameBatch{[]byte("f")}
		}
		results, err := p.PredictBatch(batches, func(string, core.FrameBatch) error { return nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(3))
		for i, r := range results {
			Expect(r["n"]).To(Equal(i))
		}
	})

	It("surfaces a transport error as sticky and clears pending", func() {
		Expect(p.InstallCallback(func(map[string]any, string) {})).To(Succeed())
		Expect(p.Submit("1", func() error { return nil })).To(Succeed())
		p.DeliverTransportError(cmn.NewSystem("connection reset"))
		Expect(p.OutstandingCount()).To(Equal(0))
		Expect(cmn.Is(p.LastErrorValue(), cmn.System)).To(BeTrue())
	})

	It("clears sticky state on Reset for a freshly reopened stream", func() {
		Expect(p.InstallCallback(func(map[string]any, string) {})).To(Succeed())
		p.DeliverTransportError(cmn.NewSystem("reset"))
		Expect(p.LastError()).NotTo(BeEmpty())

		p.Reset(4, time.Second)
		Expect(p.LastError()).To(BeEmpty())
		Expect(p.HasCallback()).To(BeFalse())
		Expect(p.OutstandingCount()).To(Equal(0))
	})

	It("WaitIdle returns once outstanding drains to zero", func() {
		Expect(p.InstallCallback(func(map[string]any, string) {})).To(Succeed())
		Expect(p.Submit("1", func() error { return nil })).To(Succeed())
		go func() {
			time.Sleep(10 * time.Millisecond)
			p.DeliverResult(map[string]any{"success": true})
		}()
		Expect(p.WaitIdle(time.Second)).To(Succeed())
	})
})
