package eventqueue_test

import (
	"github.com/JonasCGN/kuberbomber/internal/eventqueue"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Queue", func() {
	var q *eventqueue.Queue

	BeforeEach(func() {
		q = eventqueue.New()
	})

	It("should be empty on construction", func() {
		Expect(q.Empty()).To(BeTrue())
		Expect(q.Peek()).To(BeNil())
		Expect(q.Pop()).To(BeNil())
	})

	It("should pop events in non-decreasing sim-time order", func() {
		q.Push(5.0, "c")
		q.Push(1.0, "a")
		q.Push(3.0, "b")

		var order []string
		for !q.Empty() {
			order = append(order, q.Pop().ComponentID)
		}
		Expect(order).To(Equal([]string{"a", "b", "c"}))
	})

	It("should break ties by insertion order", func() {
		q.Push(2.0, "first")
		q.Push(2.0, "second")

		Expect(q.Pop().ComponentID).To(Equal("first"))
		Expect(q.Pop().ComponentID).To(Equal("second"))
	})

	It("should reset to empty without losing the type invariant", func() {
		q.Push(1.0, "a")
		q.Reset()
		Expect(q.Empty()).To(BeTrue())
		Expect(q.Len()).To(Equal(0))
		q.Push(9.0, "z")
		Expect(q.Pop().ComponentID).To(Equal("z"))
	})
})
