package dwarf

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type RecordsSuite struct{}

func TestRecords(t *testing.T) {
	suite.RunTests(t, &RecordsSuite{})
}

func (RecordsSuite) TestAddrRecord(t *testing.T) {
	record := AddrRecord{}
	expect.Equal(t, 0, record.Len())
	expect.False(t, record.Has(0))

	record.Add(30)
	record.Add(10)
	record.Add(20)
	record.Add(10)

	expect.Equal(t, 3, record.Len())
	expect.Equal(t, []uint64{10, 20, 30}, record.Addrs())

	expect.True(t, record.Has(10))
	expect.True(t, record.Has(20))
	expect.True(t, record.Has(30))
	expect.False(t, record.Has(15))
	expect.False(t, record.Has(31))
}

func (RecordsSuite) TestRefRecord(t *testing.T) {
	record := RefRecord{}
	expect.Equal(t, 0, len(record.Refs()))

	record.Add(0x40, 0x10)
	record.Add(0x20, 0x18)
	record.Add(0x40, 0x1c)

	refs := record.Refs()
	expect.Equal(t, 3, len(refs))
	expect.Equal(t, Ref{Target: 0x40, Whence: 0x10}, refs[0])
	expect.Equal(t, Ref{Target: 0x20, Whence: 0x18}, refs[1])
	expect.Equal(t, Ref{Target: 0x40, Whence: 0x1c}, refs[2])
}
