package hybrid_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hybridsim/internal/dynamo"
	"github.com/san-kum/hybridsim/internal/hybrid"
	"github.com/san-kum/hybridsim/internal/model"
	"github.com/san-kum/hybridsim/internal/propensity"
)

func dimerization() *model.Model {
	m, err := model.New([]string{"A", "B"}, []uint{10, 0}, []string{"dimerize"},
		model.WithChange("dimerize", "A", -2),
		model.WithChange("dimerize", "B", 1),
		model.WithRate("dimerize", 0.5),
	)
	Expect(err).NotTo(HaveOccurred())
	return m
}

// network3 is A -> B -> C with a first-order decay of C.
func network3() *model.Model {
	m, err := model.New([]string{"A", "B", "C"}, []uint{5, 2, 1}, []string{"a_to_b", "b_to_c", "c_decay"},
		model.WithChange("a_to_b", "A", -1),
		model.WithChange("a_to_b", "B", 1),
		model.WithChange("b_to_c", "B", -1),
		model.WithChange("b_to_c", "C", 1),
		model.WithChange("c_decay", "C", -1),
	)
	Expect(err).NotTo(HaveOccurred())
	return m
}

var _ = Describe("Codec", func() {
	var (
		m     *model.Model
		codec *hybrid.Codec
	)

	BeforeEach(func() {
		m = dimerization()
		codec = hybrid.NewCodec(m, propensity.NewMassAction(m))
	})

	It("lays out concentrations before offsets", func() {
		Expect(codec.NumSpecies()).To(Equal(2))
		Expect(codec.NumReactions()).To(Equal(1))
		Expect(codec.Len()).To(Equal(3))
		Expect(codec.OffsetIndex(0)).To(Equal(2))

		y := dynamo.State{4, 1, -0.7}
		Expect(codec.Concentrations(y)).To(Equal(dynamo.State{4, 1}))
		Expect(codec.Offsets(y)).To(Equal(dynamo.State{-0.7}))
	})

	It("contributes the sign of each change times the propensity", func() {
		y := dynamo.State{4, 1, -0.7}
		dydt := dynamo.State{9, 9, 9}
		codec.Derivative(y, 0, dydt)

		// 0.5 * 4^2 / 2!
		p := 4.0
		Expect(dydt[0]).To(BeNumerically("~", -p, 1e-12))
		Expect(dydt[1]).To(BeNumerically("~", p, 1e-12))
		Expect(dydt[2]).To(BeNumerically("~", p, 1e-12))
	})

	It("scales by the coefficient when asked to", func() {
		codec = hybrid.NewCodec(m, propensity.NewMassAction(m), hybrid.WithStoichiometricRates())
		dydt := make(dynamo.State, 3)
		codec.Derivative(dynamo.State{4, 1, 0}, 0, dydt)

		Expect(dydt[0]).To(BeNumerically("~", -8, 1e-12))
		Expect(dydt[1]).To(BeNumerically("~", 4, 1e-12))
	})

	It("never decreases an offset", func() {
		rng := rand.New(rand.NewSource(3))
		net := network3()
		props := make([]float64, net.NumReactions())
		eval := propensity.Func{Continuous: func(r int, _ []float64) float64 { return props[r] }}
		random := hybrid.NewCodec(net, eval)
		continuous := make([]bool, net.NumReactions())
		partitioned := random.PartitionedDerivative(continuous)

		y := make(dynamo.State, random.Len())
		dydt := make(dynamo.State, random.Len())
		for i := 0; i < 500; i++ {
			for sp := 0; sp < random.NumSpecies(); sp++ {
				y[sp] = rng.Float64() * 50
			}
			for r := range props {
				props[r] = rng.ExpFloat64() * 10
				y[random.OffsetIndex(r)] = -rng.ExpFloat64()
				continuous[r] = rng.Intn(2) == 0
			}

			random.Derivative(y, 0, dydt)
			for r := range props {
				Expect(dydt[random.OffsetIndex(r)]).To(Equal(props[r]))
			}
			partitioned(y, 0, dydt)
			for r := range props {
				Expect(dydt[random.OffsetIndex(r)]).To(BeNumerically(">=", 0))
			}
		}
	})

	It("moves species only through continuous reactions", func() {
		net := network3()
		c := hybrid.NewCodec(net, propensity.NewMassAction(net))
		continuous := []bool{true, false, false}
		dydt := make(dynamo.State, c.Len())
		y := dynamo.State{5, 2, 1, -1, -1, -1}

		c.PartitionedDerivative(continuous)(y, 0, dydt)
		// only a_to_b moves A and B
		Expect(dydt[0]).To(BeNumerically("~", -5, 1e-12))
		Expect(dydt[1]).To(BeNumerically("~", 5, 1e-12))
		Expect(dydt[2]).To(BeZero())
		Expect(dydt[c.OffsetIndex(1)]).To(BeNumerically("~", 2, 1e-12))
		Expect(dydt[c.OffsetIndex(2)]).To(BeNumerically("~", 1, 1e-12))
	})

	It("holds a discrete offset while a consumed species is short", func() {
		net := network3()
		c := hybrid.NewCodec(net, propensity.NewMassAction(net))
		dydt := make(dynamo.State, c.Len())

		c.PartitionedDerivative([]bool{false, false, false})(dynamo.State{0.4, 2, 1, -1, -1, -1}, 0, dydt)
		Expect(dydt[c.OffsetIndex(0)]).To(BeZero())
		Expect(dydt[c.OffsetIndex(1)]).To(BeNumerically(">", 0))
	})

	It("integrates a reaction only when all its species are continuous", func() {
		net := network3()
		c := hybrid.NewCodec(net, propensity.NewMassAction(net))
		out := make([]bool, 3)

		c.ReactionModes([]model.Mode{model.Continuous, model.Continuous, model.Discrete}, out)
		Expect(out).To(Equal([]bool{true, false, false}))

		c.ReactionModes([]model.Mode{model.Discrete, model.Continuous, model.Continuous}, out)
		Expect(out).To(Equal([]bool{false, true, true}))
	})

	It("leaves its input untouched", func() {
		y := dynamo.State{4, 1, -0.7}
		codec.Derivative(y, 0, make(dynamo.State, 3))
		Expect(y).To(Equal(dynamo.State{4, 1, -0.7}))
	})

	It("evaluates all propensities", func() {
		out := make([]float64, 1)
		codec.Propensities([]float64{4, 1}, out)
		Expect(out[0]).To(BeNumerically("~", 4, 1e-12))
	})
})
