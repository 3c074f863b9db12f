package dwarf

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type CoverageSuite struct{}

func TestCoverage(t *testing.T) {
	suite.RunTests(t, &CoverageSuite{})
}

type span struct {
	begin uint64
	end   uint64
}

func collectHoles(coverage *Coverage) []span {
	holes := []span{}
	coverage.Holes(func(begin uint64, end uint64) bool {
		holes = append(holes, span{begin: begin, end: end})
		return true
	})
	return holes
}

func (CoverageSuite) TestAddCovers(t *testing.T) {
	coverage := NewCoverage(100)
	expect.Equal(t, uint64(100), coverage.Size())

	coverage.Add(10, 20)
	expect.False(t, coverage.Covers(9))
	expect.True(t, coverage.Covers(10))
	expect.True(t, coverage.Covers(20))
	expect.False(t, coverage.Covers(21))
	expect.False(t, coverage.Covers(100))
}

func (CoverageSuite) TestAddClamping(t *testing.T) {
	coverage := NewCoverage(10)

	coverage.Add(8, 200)
	expect.True(t, coverage.Covers(8))
	expect.True(t, coverage.Covers(9))

	coverage.Add(50, 60)
	coverage.Add(5, 4)
	expect.False(t, coverage.Covers(4))
	expect.False(t, coverage.Covers(5))
}

func (CoverageSuite) TestHoles(t *testing.T) {
	coverage := NewCoverage(10)
	coverage.Add(2, 3)
	coverage.Add(6, 6)

	holes := collectHoles(coverage)
	expect.Equal(t, 3, len(holes))
	expect.Equal(t, span{begin: 0, end: 1}, holes[0])
	expect.Equal(t, span{begin: 4, end: 5}, holes[1])
	expect.Equal(t, span{begin: 7, end: 9}, holes[2])
}

func (CoverageSuite) TestHolesMerge(t *testing.T) {
	// Adjacent covered ranges leave a single hole between separated ones.
	coverage := NewCoverage(8)
	coverage.Add(0, 1)
	coverage.Add(2, 3)
	coverage.Add(6, 7)

	holes := collectHoles(coverage)
	expect.Equal(t, 1, len(holes))
	expect.Equal(t, span{begin: 4, end: 5}, holes[0])
}

func (CoverageSuite) TestNoHoles(t *testing.T) {
	coverage := NewCoverage(5)
	coverage.Add(0, 4)
	expect.Equal(t, 0, len(collectHoles(coverage)))
}

func (CoverageSuite) TestAllHole(t *testing.T) {
	coverage := NewCoverage(5)
	holes := collectHoles(coverage)
	expect.Equal(t, 1, len(holes))
	expect.Equal(t, span{begin: 0, end: 4}, holes[0])
}

func (CoverageSuite) TestHolesEarlyStop(t *testing.T) {
	coverage := NewCoverage(10)
	coverage.Add(2, 3)
	coverage.Add(6, 6)

	count := 0
	coverage.Holes(func(begin uint64, end uint64) bool {
		count += 1
		return false
	})
	expect.Equal(t, 1, count)
}
