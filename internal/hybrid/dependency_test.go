package hybrid

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hybridsim/internal/dynamo"
	"github.com/san-kum/hybridsim/internal/integrators"
	"github.com/san-kum/hybridsim/internal/model"
	"github.com/san-kum/hybridsim/internal/propensity"
)

var _ = Describe("Propensity dependencies", func() {
	var m *model.Model

	BeforeEach(func() {
		// grow changes only X but its rate is driven by the signal S.
		var err error
		m, err = model.New([]string{"S", "X"}, []uint{1, 0}, []string{"signal", "grow"},
			model.WithChange("signal", "S", 1),
			model.WithChange("grow", "X", 1),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	newIntegrator := func() dynamo.Integrator { return integrators.NewRK45(dynamo.DefaultTolerances()) }
	rate := func(r int, x []float64) float64 {
		if r == 1 {
			return x[0]
		}
		return 1
	}

	It("refreshes every reaction when the evaluator cannot name its reads", func() {
		s := NewSolver(m, propensity.Func{Continuous: rate}, newIntegrator, DefaultOptions())
		Expect(s.readers).To(Equal([][]int{{0, 1}, {0, 1}}))
		Expect(s.affected).To(Equal([][]int{{0, 1}, {0, 1}}))
	})

	It("follows declared reads", func() {
		eval := propensity.Func{Continuous: rate, Species: [][]int{{}, {0}}}
		s := NewSolver(m, eval, newIntegrator, DefaultOptions())
		Expect(s.readers).To(Equal([][]int{{1}, nil}))
		Expect(s.affected).To(Equal([][]int{{1}, nil}))
	})

	It("uses mass-action reactants", func() {
		s := NewSolver(m, propensity.NewMassAction(m), newIntegrator, DefaultOptions())
		Expect(s.readers).To(Equal([][]int{nil, nil}))
		Expect(s.affected).To(Equal([][]int{nil, nil}))
	})
})
