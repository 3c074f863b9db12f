package dwarf

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type InformationSectionSuite struct{}

func TestInformationSection(t *testing.T) {
	suite.RunTests(t, &InformationSectionSuite{})
}

var (
	// code 1: childless compile unit with a strp DW_AT_name.
	strpAbbrev = []byte{
		0x01, 0x11, 0x00,
		0x03, 0x0e,
		0x00, 0x00,
		0x00,
	}

	fooStr = []byte{'f', 'o', 'o', 0x00}

	// A well formed single CU holding a single childless DIE.
	cleanInfo = []byte{
		0x0d, 0x00, 0x00, 0x00, // length 13
		0x03, 0x00, // version 3
		0x00, 0x00, 0x00, 0x00, // abbrev offset 0
		0x04,                   // address size
		0x01,                   // DIE 0xb
		0x00, 0x00, 0x00, 0x00, // name -> .debug_str 0x0
		0x00, // chain terminator
	}
)

func (InformationSectionSuite) checkWithReporter(
	t *testing.T,
	abbrevContent []byte,
	strContent []byte,
	infoContent []byte,
	reporter *Reporter,
) *InformationSection {
	abbrevs := LoadAbbreviationSection(
		NewCursor(binary.LittleEndian, abbrevContent),
		NewReporter(io.Discard))
	expect.NotNil(t, abbrevs)

	return CheckInformationSection(
		NewCursor(binary.LittleEndian, infoContent),
		abbrevs,
		NewStringSection(strContent != nil, strContent),
		reporter)
}

func (s InformationSectionSuite) check(
	t *testing.T,
	abbrevContent []byte,
	strContent []byte,
	infoContent []byte,
) (*InformationSection, *Reporter, *bytes.Buffer) {
	reporter, buffer := newTestReporter()
	section := s.checkWithReporter(
		t,
		abbrevContent,
		strContent,
		infoContent,
		reporter)
	return section, reporter, buffer
}

func (s InformationSectionSuite) TestCleanUnit(t *testing.T) {
	section, reporter, buffer := s.check(t, strpAbbrev, fooStr, cleanInfo)

	expect.Equal(t, "", buffer.String())
	expect.Equal(t, 0, reporter.ErrorCount)
	expect.NotNil(t, section)
	expect.Equal(t, 1, len(section.CompileUnits))

	unit := section.CompileUnits[0]
	expect.Equal(t, uint64(0), unit.Offset)
	expect.Equal(t, uint64(17), unit.Length)
	expect.Equal(t, uint16(3), unit.Version)
	expect.False(t, unit.Dwarf64)
	expect.Equal(t, uint64(0), unit.AbbrevOffset)
	expect.Equal(t, uint8(4), unit.AddressSize)
	expect.Equal(t, []uint64{0xb}, unit.DieAddrs.Addrs())

	expect.Equal(t, unit, section.FindCompileUnit(0))
	expect.Nil(t, section.FindCompileUnit(1))
}

func (s InformationSectionSuite) TestRepeatable(t *testing.T) {
	_, _, first := s.check(t, strpAbbrev, fooStr, cleanInfo)
	_, _, second := s.check(t, strpAbbrev, fooStr, cleanInfo)
	expect.Equal(t, first.String(), second.String())
}

func (s InformationSectionSuite) TestBloatedAbbrevCode(t *testing.T) {
	section, reporter, buffer := s.check(
		t,
		strpAbbrev,
		fooStr,
		[]byte{
			0x0e, 0x00, 0x00, 0x00,
			0x03, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x81, 0x00, // code 1 in two groups
			0x00, 0x00, 0x00, 0x00,
			0x00,
		})

	expect.Equal(
		t,
		"warning: .debug_info: CU 0x0, DIE 0xb: "+
			"unnecessarily long encoding of abbrev code.\n",
		buffer.String())
	expect.Equal(t, 0, reporter.ErrorCount)
	expect.NotNil(t, section)
}

func (s InformationSectionSuite) TestUnsupportedVersion(t *testing.T) {
	section, _, buffer := s.check(
		t,
		strpAbbrev,
		fooStr,
		[]byte{
			0x07, 0x00, 0x00, 0x00,
			0x04, 0x00, // version 4
			0x00, 0x00, 0x00, 0x00,
			0x04,
		})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0: unsupported version 4.\n",
		buffer.String())
	expect.Nil(t, section)
}

func (s InformationSectionSuite) TestInvalidVersion(t *testing.T) {
	section, _, buffer := s.check(
		t,
		strpAbbrev,
		fooStr,
		[]byte{
			0x07, 0x00, 0x00, 0x00,
			0x01, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
		})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0: invalid version 1.\n",
		buffer.String())
	expect.Nil(t, section)
}

func (s InformationSectionSuite) TestDwarf2With64BitUnit(t *testing.T) {
	section, reporter, buffer := s.check(
		t,
		strpAbbrev,
		fooStr,
		[]byte{
			0xff, 0xff, 0xff, 0xff,
			0x0c, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			0x02, 0x00, // version 2
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			0x04,
			0x00, // empty chain
		})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0: "+
			"invalid 64-bit unit in DWARF 2 format.\n"+
			"warning: .debug_info: CU 0x0: "+
			"Abbreviation with code 1 is never used.\n",
		buffer.String())
	expect.Equal(t, 1, reporter.ErrorCount)
	expect.NotNil(t, section)

	unit := section.CompileUnits[0]
	expect.Equal(t, uint16(2), unit.Version)
	expect.True(t, unit.Dwarf64)
}

var siblingAbbrevs = []byte{
	0x01, 0x11, 0x01, 0x00, 0x00, // compile unit with children
	0x02, 0x2e, 0x00, // subprogram
	0x01, 0x13, // DW_AT_sibling, DW_FORM_ref4
	0x00, 0x00,
	0x03, 0x24, 0x00, 0x00, 0x00, // base type
	0x00,
}

func (s InformationSectionSuite) TestSiblingMismatch(t *testing.T) {
	section, reporter, buffer := s.check(
		t,
		siblingAbbrevs,
		fooStr,
		[]byte{
			0x10, 0x00, 0x00, 0x00,
			0x02, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x01,                   // 0xb: root
			0x02,                   // 0xc: first child
			0x15, 0x00, 0x00, 0x00, // sibling -> 0x15, actually at 0x11
			0x03, // 0x11: second child
			0x00, // 0x12: end of child chain
			0x00, // 0x13: end of root chain
		})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0, DIE 0xc: "+
			"This DIE should have had its sibling at 0x15, "+
			"but it's at 0x11 instead.\n"+
			"error: .debug_info: CU 0x0, DIE 0xb: "+
			"This DIE had children, but no DW_AT_sibling attribute.\n",
		buffer.String())
	expect.Equal(t, 2, reporter.ErrorCount)
	expect.NotNil(t, section)
	expect.Equal(
		t,
		[]uint64{0xb, 0xc, 0x11},
		section.CompileUnits[0].DieAddrs.Addrs())
}

func (s InformationSectionSuite) TestSiblingOnLastInChain(t *testing.T) {
	_, reporter, buffer := s.check(
		t,
		siblingAbbrevs,
		fooStr,
		[]byte{
			0x0f, 0x00, 0x00, 0x00,
			0x02, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x01,                   // 0xb: root
			0x02,                   // 0xc: only child
			0x11, 0x00, 0x00, 0x00, // sibling -> the chain terminator
			0x00, // 0x11: end of child chain
			0x00, // 0x12: end of root chain
		})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0, DIE 0xc: "+
			"is the last sibling in chain, but has a "+
			"DW_AT_sibling attribute.\n"+
			"error: .debug_info: CU 0x0, DIE 0xb: "+
			"This DIE had children, but no DW_AT_sibling attribute.\n"+
			"warning: .debug_info: CU 0x0: "+
			"Abbreviation with code 3 is never used.\n",
		buffer.String())
	expect.Equal(t, 2, reporter.ErrorCount)
}

func (s InformationSectionSuite) TestEmptyChildChain(t *testing.T) {
	_, reporter, buffer := s.check(
		t,
		[]byte{0x01, 0x11, 0x01, 0x00, 0x00, 0x00},
		fooStr,
		[]byte{
			0x0a, 0x00, 0x00, 0x00,
			0x03, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x01, // 0xb: root with children
			0x00, // 0xc: empty child chain
			0x00, // 0xd: end of root chain
		})

	expect.Equal(
		t,
		"warning: .debug_info: CU 0x0, DIE 0xb: "+
			"Abbrev has_children, but the chain was empty.\n"+
			"error: .debug_info: CU 0x0, DIE 0xb: "+
			"This DIE had children, but no DW_AT_sibling attribute.\n",
		buffer.String())
	expect.Equal(t, 1, reporter.ErrorCount)
}

func (s InformationSectionSuite) TestUnusedAbbreviation(t *testing.T) {
	section, reporter, buffer := s.check(
		t,
		[]byte{
			0x01, 0x11, 0x00, 0x00, 0x00,
			0x02, 0x24, 0x00, 0x00, 0x00,
			0x00,
		},
		fooStr,
		[]byte{
			0x09, 0x00, 0x00, 0x00,
			0x03, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x01,
			0x00,
		})

	expect.Equal(
		t,
		"warning: .debug_info: CU 0x0: "+
			"Abbreviation with code 2 is never used.\n",
		buffer.String())
	expect.Equal(t, 0, reporter.ErrorCount)
	expect.NotNil(t, section)
}

func (s InformationSectionSuite) TestUnknownAbbrevCode(t *testing.T) {
	section, _, buffer := s.check(
		t,
		strpAbbrev,
		fooStr,
		[]byte{
			0x09, 0x00, 0x00, 0x00,
			0x03, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x07,
			0x00,
		})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0, DIE 0xb: "+
			"abbrev section at 0x0 doesn't contain code 7.\n",
		buffer.String())
	expect.Nil(t, section)
}

func (s InformationSectionSuite) TestMissingAbbrevTable(t *testing.T) {
	section, _, buffer := s.check(
		t,
		strpAbbrev,
		fooStr,
		[]byte{
			0x08, 0x00, 0x00, 0x00,
			0x03, 0x00,
			0x05, 0x00, 0x00, 0x00, // no table at offset 5
			0x04,
			0x01,
		})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0: "+
			"Couldn't find abbrev section with offset 0x5.\n",
		buffer.String())
	expect.Nil(t, section)
}

func (s InformationSectionSuite) TestUnterminatedDieChain(t *testing.T) {
	section, reporter, buffer := s.check(
		t,
		strpAbbrev,
		fooStr,
		[]byte{
			0x08, 0x00, 0x00, 0x00,
			0x03, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x01, // a code right at the end of the unit
		})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0: "+
			"DIE chain at 0xb not terminated with DIE with "+
			"zero abbrev code.\n"+
			"warning: .debug_info: CU 0x0: "+
			"Abbreviation with code 1 is never used.\n",
		buffer.String())
	expect.Equal(t, 1, reporter.ErrorCount)
	expect.NotNil(t, section)
}

var localRefAbbrev = []byte{
	0x01, 0x11, 0x00,
	0x49, 0x13, // DW_AT_type, DW_FORM_ref4
	0x00, 0x00,
	0x00,
}

func (s InformationSectionSuite) TestRefOutsideUnit(t *testing.T) {
	section, reporter, buffer := s.check(
		t,
		localRefAbbrev,
		fooStr,
		[]byte{
			0x0d, 0x00, 0x00, 0x00,
			0x03, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x01,
			0x00, 0x10, 0x00, 0x00, // type -> 0x1000, past the unit
			0x00,
		})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0, DIE 0xb, abbrev 0x1, attribute 0x3: "+
			"invalid reference outside the CU: 0x1000.\n",
		buffer.String())
	expect.Equal(t, 1, reporter.ErrorCount)
	expect.NotNil(t, section)
}

func (s InformationSectionSuite) TestUnresolvedLocalRef(t *testing.T) {
	section, reporter, buffer := s.check(
		t,
		localRefAbbrev,
		fooStr,
		[]byte{
			0x0d, 0x00, 0x00, 0x00,
			0x03, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x01,
			0x05, 0x00, 0x00, 0x00, // type -> 0x5, inside the header
			0x00,
		})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0, DIE 0xb: "+
			"unresolved reference to DIE 0x5.\n",
		buffer.String())
	expect.Equal(t, 1, reporter.ErrorCount)
	expect.Nil(t, section)
}

var globalRefAbbrevs = []byte{
	0x01, 0x11, 0x00, 0x00, 0x00,
	0x02, 0x24, 0x00,
	0x49, 0x10, // DW_AT_type, DW_FORM_ref_addr
	0x00, 0x00,
	0x00,
}

func (s InformationSectionSuite) TestLocalRefFormedAsGlobal(t *testing.T) {
	section, reporter, buffer := s.check(
		t,
		globalRefAbbrevs,
		fooStr,
		[]byte{
			0x0e, 0x00, 0x00, 0x00,
			0x03, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x02,                   // 0xb
			0x10, 0x00, 0x00, 0x00, // type -> 0x10, within this unit
			0x01, // 0x10
			0x00,
		})

	expect.Equal(
		t,
		"warning: .debug_info: CU 0x0, DIE 0xb: "+
			"local reference to DIE 0x10 formed as global.\n",
		buffer.String())
	expect.Equal(t, 0, reporter.ErrorCount)
	expect.NotNil(t, section)
}

func (s InformationSectionSuite) TestUnresolvedGlobalRef(t *testing.T) {
	section, reporter, buffer := s.check(
		t,
		globalRefAbbrevs,
		fooStr,
		[]byte{
			0x0e, 0x00, 0x00, 0x00,
			0x03, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x02,
			0x00, 0x01, 0x00, 0x00, // type -> 0x100, nowhere
			0x01,
			0x00,
		})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0, DIE 0xb: "+
			"unresolved (non-CU-local) reference to DIE 0x100.\n",
		buffer.String())
	expect.Equal(t, 1, reporter.ErrorCount)
	expect.Nil(t, section)
}

func (s InformationSectionSuite) TestStrpOutsideStringSection(t *testing.T) {
	section, reporter, buffer := s.check(
		t,
		strpAbbrev,
		fooStr,
		[]byte{
			0x0d, 0x00, 0x00, 0x00,
			0x03, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x01,
			0x10, 0x00, 0x00, 0x00, // name -> 0x10, past .debug_str
			0x00,
		})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0, DIE 0xb, abbrev 0x1, attribute 0x3: "+
			"Invalid offset outside .debug_str: 0x10.\n",
		buffer.String())
	expect.Equal(t, 1, reporter.ErrorCount)
	expect.NotNil(t, section)
}

func (s InformationSectionSuite) TestUnreferencedStrings(t *testing.T) {
	reporter, buffer := newTestReporter()
	reporter.WarningCriteria.Accept |= CatStrings

	section := s.checkWithReporter(
		t,
		strpAbbrev,
		[]byte{'f', 'o', 'o', 0x00, 'b', 'a', 'r', 0x00},
		cleanInfo,
		reporter)

	expect.Equal(
		t,
		"warning: .debug_str: 0x4..0x7: unreferenced non-zero bytes.\n",
		buffer.String())
	expect.Equal(t, 0, reporter.ErrorCount)
	expect.NotNil(t, section)
}

func (s InformationSectionSuite) TestPaddingInsideUnit(t *testing.T) {
	_, reporter, buffer := s.check(
		t,
		strpAbbrev,
		fooStr,
		[]byte{
			0x0f, 0x00, 0x00, 0x00, // two bytes longer than the chain
			0x03, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x01,
			0x00, 0x00, 0x00, 0x00,
			0x00,
			0x00, 0x00, // zero padding at 0x11..0x12
		})

	expect.Equal(
		t,
		"warning: .debug_info: CU 0x0: "+
			"0x11..0x12: unnecessary padding with zero bytes.\n",
		buffer.String())
	expect.Equal(t, 0, reporter.ErrorCount)
}

func (s InformationSectionSuite) TestGarbageInsideUnit(t *testing.T) {
	_, reporter, buffer := s.check(
		t,
		strpAbbrev,
		fooStr,
		[]byte{
			0x0f, 0x00, 0x00, 0x00,
			0x03, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x04,
			0x01,
			0x00, 0x00, 0x00, 0x00,
			0x00,
			0xab, 0xcd, // garbage at 0x11..0x12
		})

	expect.Equal(
		t,
		"warning: .debug_info: CU 0x0: "+
			"0x11..0x12: unreferenced non-zero bytes.\n",
		buffer.String())
	expect.Equal(t, 0, reporter.ErrorCount)
}

func (s InformationSectionSuite) TestTrailingSectionPadding(t *testing.T) {
	content := make([]byte, 0, len(cleanInfo)+3)
	content = append(content, cleanInfo...)
	content = append(content, 0x00, 0x00, 0x00)

	section, reporter, buffer := s.check(t, strpAbbrev, fooStr, content)

	expect.Equal(
		t,
		"warning: .debug_info: CU 0x11: "+
			"0x11..0x13: unnecessary padding with zero bytes.\n",
		buffer.String())
	expect.Equal(t, 0, reporter.ErrorCount)
	expect.NotNil(t, section)
	expect.Equal(t, 1, len(section.CompileUnits))
}

func (s InformationSectionSuite) TestTruncatedUnit(t *testing.T) {
	section, _, buffer := s.check(
		t,
		strpAbbrev,
		fooStr,
		[]byte{0x20, 0x00, 0x00, 0x00, 0x01, 0x02})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0: "+
			"section doesn't have enough data to read CU of size 20.\n",
		buffer.String())
	expect.Nil(t, section)
}

func (s InformationSectionSuite) TestLengthEscapeValues(t *testing.T) {
	section, _, buffer := s.check(
		t,
		strpAbbrev,
		fooStr,
		[]byte{0xf0, 0xff, 0xff, 0xff, 0x00, 0x00})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0: "+
			"unrecognized CU length escape value: fffffff0.\n",
		buffer.String())
	expect.Nil(t, section)

	section, _, buffer = s.check(
		t,
		strpAbbrev,
		fooStr,
		[]byte{0xff, 0xff, 0xff, 0xff, 0x00, 0x00})

	expect.Equal(
		t,
		"error: .debug_info: CU 0x0: can't read 64bit CU length.\n",
		buffer.String())
	expect.Nil(t, section)
}
