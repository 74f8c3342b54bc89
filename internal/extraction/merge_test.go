package extraction

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Merge", func() {
	It("should keep values both sides agree on", func() {
		Expect(Merge(map[string]any{"Name": "Jane"}, map[string]any{"Name": "Jane"})).
			To(Equal(map[string]any{"Name": "Jane"}))
	})

	It("should take the union of keys", func() {
		Expect(Merge(map[string]any{"Name": "Jane"}, map[string]any{"Date": "2024-01-01"})).
			To(Equal(map[string]any{"Name": "Jane", "Date": "2024-01-01"}))
	})

	It("should prefer the longer of two disagreeing strings", func() {
		Expect(Merge(map[string]any{"Name": "J. Doe"}, map[string]any{"Name": "Jane Doe"})).
			To(Equal(map[string]any{"Name": "Jane Doe"}))
	})

	It("should keep the first side on equal-length strings", func() {
		a := map[string]any{"Code": "AB12"}
		b := map[string]any{"Code": "A812"}
		Expect(Merge(a, b)).To(Equal(a))
		Expect(Merge(b, a)).To(Equal(b))
	})

	It("should compare lengths in characters", func() {
		Expect(Merge(map[string]any{"City": "Zürich"}, map[string]any{"City": "Zurichx"})).
			To(Equal(map[string]any{"City": "Zurichx"}))
	})

	It("should let a null yield to the other side", func() {
		Expect(Merge(map[string]any{"Phone": nil}, map[string]any{"Phone": "555-1234"})).
			To(Equal(map[string]any{"Phone": "555-1234"}))
		Expect(Merge(map[string]any{"Phone": "555-1234"}, map[string]any{"Phone": nil})).
			To(Equal(map[string]any{"Phone": "555-1234"}))
	})

	It("should let unreadable yield to the other side", func() {
		Expect(Merge(map[string]any{"Name": "unreadable"}, map[string]any{"Name": "Al"})).
			To(Equal(map[string]any{"Name": "Al"}))
		Expect(Merge(map[string]any{"Name": "Al"}, map[string]any{"Name": "unreadable"})).
			To(Equal(map[string]any{"Name": "Al"}))
	})

	It("should merge nested objects", func() {
		a := map[string]any{"Address": map[string]any{"Street": "1 Main St", "City": "unreadable"}}
		b := map[string]any{"Address": map[string]any{"City": "Springfield", "Zip": "12345"}}
		Expect(Merge(a, b)).To(Equal(map[string]any{
			"Address": map[string]any{"Street": "1 Main St", "City": "Springfield", "Zip": "12345"},
		}))
	})

	It("should keep the first side's value for other disagreements", func() {
		Expect(Merge(map[string]any{"Total": float64(12)}, map[string]any{"Total": float64(21)})).
			To(Equal(map[string]any{"Total": float64(12)}))
		Expect(Merge(map[string]any{"Items": []any{"a"}}, map[string]any{"Items": "a"})).
			To(Equal(map[string]any{"Items": []any{"a"}}))
	})

	It("should return the first side when merged with an empty object", func() {
		a := map[string]any{"Name": "Jane", "Nested": map[string]any{"x": float64(1)}}
		Expect(Merge(a, map[string]any{})).To(Equal(a))
		Expect(Merge(map[string]any{}, a)).To(Equal(a))
	})

	It("should be idempotent", func() {
		a := map[string]any{"Name": "Jane", "Date": nil, "Nested": map[string]any{"x": "unreadable"}}
		Expect(Merge(a, a)).To(Equal(a))
	})

	It("should not modify its inputs", func() {
		a := map[string]any{"Name": "unreadable"}
		b := map[string]any{"Name": "Jane", "Date": "2024-01-01"}
		Merge(a, b)
		Expect(a).To(Equal(map[string]any{"Name": "unreadable"}))
		Expect(b).To(Equal(map[string]any{"Name": "Jane", "Date": "2024-01-01"}))
	})
})
