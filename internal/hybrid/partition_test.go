package hybrid_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hybridsim/internal/hybrid"
	"github.com/san-kum/hybridsim/internal/model"
)

func conversion(a, b uint, opts ...model.Option) *model.Model {
	opts = append([]model.Option{
		model.WithChange("convert", "A", -1),
		model.WithChange("convert", "B", 1),
	}, opts...)
	m, err := model.New([]string{"A", "B"}, []uint{a, b}, []string{"convert"}, opts...)
	Expect(err).NotTo(HaveOccurred())
	return m
}

var _ = Describe("Partition", func() {
	It("keeps fixed user modes", func() {
		m := conversion(10, 0,
			model.WithMode("A", model.Discrete),
			model.WithMode("B", model.Continuous),
		)
		modes := hybrid.Partition(m, []float64{1e6, 0}, []float64{1e6}, 1)
		Expect(modes).To(Equal([]model.Mode{model.Discrete, model.Continuous}))
	})

	It("switches on a minimum population when one is set", func() {
		m := conversion(60, 0, model.WithSwitching("A", 0, 50))

		modes := hybrid.Partition(m, []float64{60, 0}, []float64{0}, 1)
		Expect(modes[0]).To(Equal(model.Continuous))

		modes = hybrid.Partition(m, []float64{40, 0}, []float64{0}, 1)
		Expect(modes[0]).To(Equal(model.Discrete))
	})

	It("treats low-noise species as continuous", func() {
		m := conversion(10000, 0)
		modes := hybrid.Partition(m, []float64{10000, 0}, []float64{10000}, 1e-3)

		Expect(modes[0]).To(Equal(model.Continuous))
		Expect(modes[1]).To(Equal(model.Discrete))
	})

	It("treats absent species as discrete", func() {
		m := conversion(0, 0)
		modes := hybrid.Partition(m, []float64{0, 0}, []float64{0}, 1)
		Expect(modes).To(Equal([]model.Mode{model.Discrete, model.Discrete}))
	})

	It("is a pure function of its inputs", func() {
		m := conversion(500, 20)
		pops := []float64{500, 20}
		props := []float64{500}

		first := hybrid.Partition(m, pops, props, 0.01)
		second := hybrid.Partition(m, pops, props, 0.01)
		Expect(second).To(Equal(first))
		Expect(pops).To(Equal([]float64{500, 20}))
	})
})
