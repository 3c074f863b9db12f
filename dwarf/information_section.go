package dwarf

// CompileUnit carries the positions harvested from one unit of .debug_info.
// DieAddrs holds the section offset of every DIE in the unit; DieRefs holds
// the DW_FORM_ref_addr references made from the unit, resolved globally once
// every unit has been read.
type CompileUnit struct {
	Offset       uint64
	Length       uint64 // including the length field
	Version      uint16
	Dwarf64      bool
	AbbrevOffset uint64
	AddressSize  uint8

	DieAddrs AddrRecord
	DieRefs  RefRecord
}

type InformationSection struct {
	CompileUnits []*CompileUnit
}

func (section *InformationSection) FindCompileUnit(
	offset uint64,
) *CompileUnit {
	for _, unit := range section.CompileUnits {
		if unit.Offset == offset {
			return unit
		}
	}

	return nil
}

// checkZeroPadding consumes the cursor's remaining bytes and reports them as
// zero padding, but only when every one of them is zero.  base translates
// cursor positions into section offsets for the report.
func checkZeroPadding(
	cursor *Cursor,
	cat Category,
	where string,
	base uint64,
	reporter *Reporter,
) bool {
	if !cursor.ZeroesToEnd() {
		return false
	}

	begin := base + uint64(cursor.Position)
	end := base + uint64(len(cursor.Content)) - 1
	cursor.Position = len(cursor.Content)

	reporter.PaddingZero(cat, where, begin, end)
	return true
}

// readVersion reads and gates a 2-byte version field.  Version 2 in a 64-bit
// unit is a standard violation, but the unit remains readable, so the error
// is reported and reading continues.
func readVersion(
	cursor *Cursor,
	dwarf64 bool,
	where string,
	reporter *Reporter,
) (uint16, bool) {
	version, err := cursor.U16()
	if err != nil {
		reporter.Errorf(where, "can't read version.")
		return 0, false
	}

	if version < 2 || version > 3 {
		kind := "unsupported"
		if version < 2 {
			kind = "invalid"
		}
		reporter.Errorf(where, "%s version %d.", kind, version)
		return version, false
	}

	if version == 2 && dwarf64 {
		reporter.Errorf(where, "invalid 64-bit unit in DWARF 2 format.")
	}

	return version, true
}

// cuWalker reads one compile unit's DIE chain.  Its cursor spans the whole
// unit including the length field, so cursor positions double as
// unit-relative DIE offsets.
type cuWalker struct {
	cursor   *Cursor
	unit     *CompileUnit
	abbrevs  *AbbreviationTable
	strings  *StringSection
	reporter *Reporter

	dwarf64 bool
	addr64  bool

	// CU-local references, resolved against unit.DieAddrs once the walk
	// completes.  Global references go to unit.DieRefs instead.
	localRefs *RefRecord

	usedCodes       AddrRecord
	stringsCoverage *Coverage
}

func (walker *cuWalker) recordRef(
	target uint64,
	local bool,
	dieOffset uint64,
	abbrevCode uint64,
	attrOffset uint64,
) {
	if !local {
		walker.unit.DieRefs.Add(target, dieOffset)
		return
	}

	if target >= uint64(len(walker.cursor.Content)) {
		walker.reporter.Errorf(
			AtCUDieAbbrevAttr(
				walker.unit.Offset,
				dieOffset,
				abbrevCode,
				attrOffset),
			"invalid reference outside the CU: 0x%x.",
			target)
		return
	}

	// The value is a unit-relative reference.  Add the unit offset to
	// turn it into a section offset.
	walker.localRefs.Add(target+walker.unit.Offset, dieOffset)
}

// readDieChain reads one sibling chain of DIEs, recursing for children.
// Returns -1 on a fatal structural problem, 0 when the chain held nothing
// but its terminating zero code, and 1 when at least one DIE was read.
func (walker *cuWalker) readDieChain() int {
	chainBegin := uint64(walker.cursor.Position)
	gotDie := false
	siblingAddr := uint64(0)
	prevDieOffset := uint64(0)
	var prevAbbrev *Abbreviation

	for !walker.cursor.HasReachedEnd() {
		dieOffset := uint64(walker.cursor.Position)

		code, bloat, err := walker.cursor.ULEB128()
		if err != nil {
			walker.reporter.Errorf(
				AtCUDie(walker.unit.Offset, dieOffset),
				"can't read abbrev code.")
			return -1
		}
		if bloat {
			walker.reporter.LongEncoding(
				CatNone,
				AtCUDie(walker.unit.Offset, dieOffset),
				"abbrev code")
		}

		// Check the sibling value advertised last time through the loop.
		if siblingAddr != 0 {
			if code == 0 {
				walker.reporter.Errorf(
					AtCUDie(walker.unit.Offset, prevDieOffset),
					"is the last sibling in chain, but has a "+
						"DW_AT_sibling attribute.")
			} else if siblingAddr != dieOffset {
				walker.reporter.Errorf(
					AtCUDie(walker.unit.Offset, prevDieOffset),
					"This DIE should have had its sibling at 0x%x, "+
						"but it's at 0x%x instead.",
					siblingAddr,
					dieOffset)
			}
			siblingAddr = 0
		} else if prevAbbrev != nil && prevAbbrev.HasChildren {
			// Even a DIE with children can't carry a sibling attribute
			// when it is the last DIE in the chain, so this can't be
			// checked while loading abbrevs.
			walker.reporter.Message(
				CatDieRelSib|CatSuboptimal|CatImpact4,
				AtCUDie(walker.unit.Offset, prevDieOffset),
				"This DIE had children, but no DW_AT_sibling attribute.")
		}

		if walker.cursor.HasReachedEnd() || code == 0 {
			if code != 0 {
				walker.reporter.Errorf(
					AtCU(walker.unit.Offset),
					"DIE chain at 0x%x not terminated with DIE with "+
						"zero abbrev code.",
					chainBegin)
			}

			if gotDie {
				return 1
			}
			return 0
		}

		prevDieOffset = dieOffset
		gotDie = true

		abbrev := walker.abbrevs.Find(code)
		if abbrev == nil {
			walker.reporter.Errorf(
				AtCUDie(walker.unit.Offset, dieOffset),
				"abbrev section at 0x%x doesn't contain code %d.",
				walker.abbrevs.Offset,
				code)
			return -1
		}
		walker.usedCodes.Add(code)

		walker.unit.DieAddrs.Add(walker.unit.Offset + dieOffset)

		sibling, fatal := walker.readAttributes(abbrev, dieOffset)
		if fatal {
			return -1
		}
		siblingAddr = sibling

		if abbrev.HasChildren {
			switch walker.readDieChain() {
			case -1:
				return -1
			case 0:
				walker.reporter.Message(
					CatImpact3|CatSuboptimal|CatDieRelChild,
					AtCUDie(walker.unit.Offset, dieOffset),
					"Abbrev has_children, but the chain was empty.")
			}
		}

		prevAbbrev = abbrev
	}

	if siblingAddr != 0 {
		walker.reporter.Errorf(
			AtCUDie(walker.unit.Offset, prevDieOffset),
			"This DIE should have had its sibling at 0x%x, but the "+
				"DIE chain ended.",
			siblingAddr)
	}

	if gotDie {
		return 1
	}
	return 0
}

// readAttributes reads one DIE's attribute values.  It returns the value of
// the DIE's DW_AT_sibling attribute, if any, and whether a fatal problem
// ended the walk.
func (walker *cuWalker) readAttributes(
	abbrev *Abbreviation,
	dieOffset uint64,
) (uint64, bool) {
	siblingAddr := uint64(0)

	for _, spec := range abbrev.AttributeSpecs {
		at := AtCUDieAbbrevAttr(
			walker.unit.Offset,
			dieOffset,
			abbrev.Code,
			spec.Offset)

		format := spec.Format
		if format == DW_FORM_indirect {
			value, bloat, err := walker.cursor.ULEB128()
			if err != nil {
				walker.reporter.Errorf(
					at,
					"can't read indirect attribute form.")
				return 0, true
			}
			if bloat {
				walker.reporter.LongEncoding(
					CatNone,
					at,
					"indirect attribute form")
			}

			if value == 0 || value > uint64(DW_FORM_indirect) {
				walker.reporter.Errorf(
					at,
					"invalid indirect form 0x%x.",
					value)
				return 0, true
			}
			format = Format(value)

			if spec.Attribute == DW_AT_sibling {
				switch checkSiblingForm(format) {
				case -1:
					walker.reporter.Message(
						CatDieRelSib|CatImpact2,
						at,
						"DW_AT_sibling attribute with (indirect) form "+
							"DW_FORM_ref_addr.")

				case -2:
					walker.reporter.Errorf(
						at,
						"DW_AT_sibling attribute with non-reference "+
							"(indirect) form %s.",
						format)
				}
			}
		}

		switch format {
		case DW_FORM_strp:
			addr, err := walker.cursor.Offset(walker.dwarf64)
			if err != nil {
				walker.reporter.Errorf(at, "can't read attribute value.")
				return 0, true
			}

			if !walker.strings.Found {
				walker.reporter.Errorf(
					at,
					"strp attribute, but no .debug_str section.")
			} else if addr >= uint64(len(walker.strings.Content)) {
				walker.reporter.Errorf(
					at,
					"Invalid offset outside .debug_str: 0x%x.",
					addr)
			} else if walker.stringsCoverage != nil {
				value, err := walker.strings.StringAt(addr)
				if err != nil {
					walker.reporter.Errorf(
						at,
						"unterminated string at .debug_str 0x%x.",
						addr)
				} else {
					walker.stringsCoverage.Add(
						addr,
						addr+uint64(len(value)))
				}
			}

		case DW_FORM_string:
			for {
				value, err := walker.cursor.U8()
				if err != nil {
					walker.reporter.Errorf(
						at,
						"can't read attribute value.")
					return 0, true
				}
				if value == 0 {
					break
				}
			}

		case DW_FORM_addr, DW_FORM_ref_addr:
			width := 4
			if walker.addr64 {
				width = 8
			}

			addr, err := walker.cursor.Var(width)
			if err != nil {
				walker.reporter.Errorf(at, "can't read attribute value.")
				return 0, true
			}

			if spec.Format == DW_FORM_ref_addr {
				walker.recordRef(
					addr,
					false,
					dieOffset,
					abbrev.Code,
					spec.Offset)
			}

		case DW_FORM_udata, DW_FORM_ref_udata:
			value, bloat, err := walker.cursor.ULEB128()
			if err != nil {
				walker.reporter.Errorf(at, "can't read attribute value.")
				return 0, true
			}
			if bloat {
				walker.reporter.LongEncoding(CatNone, at, "attribute value")
			}

			if spec.Attribute == DW_AT_sibling {
				siblingAddr = value
			} else if spec.Format == DW_FORM_ref_udata {
				walker.recordRef(
					value,
					true,
					dieOffset,
					abbrev.Code,
					spec.Offset)
			}

		case DW_FORM_flag, DW_FORM_data1, DW_FORM_ref1:
			value, err := walker.cursor.U8()
			if err != nil {
				walker.reporter.Errorf(at, "can't read attribute value.")
				return 0, true
			}

			if spec.Attribute == DW_AT_sibling {
				siblingAddr = uint64(value)
			} else if spec.Format == DW_FORM_ref1 {
				walker.recordRef(
					uint64(value),
					true,
					dieOffset,
					abbrev.Code,
					spec.Offset)
			}

		case DW_FORM_data2, DW_FORM_ref2:
			value, err := walker.cursor.U16()
			if err != nil {
				walker.reporter.Errorf(at, "can't read attribute value.")
				return 0, true
			}

			if spec.Attribute == DW_AT_sibling {
				siblingAddr = uint64(value)
			} else if spec.Format == DW_FORM_ref2 {
				walker.recordRef(
					uint64(value),
					true,
					dieOffset,
					abbrev.Code,
					spec.Offset)
			}

		case DW_FORM_data4, DW_FORM_ref4:
			value, err := walker.cursor.U32()
			if err != nil {
				walker.reporter.Errorf(at, "can't read attribute value.")
				return 0, true
			}

			if spec.Attribute == DW_AT_sibling {
				siblingAddr = uint64(value)
			} else if spec.Format == DW_FORM_ref4 {
				walker.recordRef(
					uint64(value),
					true,
					dieOffset,
					abbrev.Code,
					spec.Offset)
			}

		case DW_FORM_data8, DW_FORM_ref8:
			value, err := walker.cursor.U64()
			if err != nil {
				walker.reporter.Errorf(at, "can't read attribute value.")
				return 0, true
			}

			if spec.Attribute == DW_AT_sibling {
				siblingAddr = value
			} else if spec.Format == DW_FORM_ref8 {
				walker.recordRef(
					value,
					true,
					dieOffset,
					abbrev.Code,
					spec.Offset)
			}

		case DW_FORM_sdata:
			_, bloat, err := walker.cursor.SLEB128()
			if err != nil {
				walker.reporter.Errorf(at, "can't read attribute value.")
				return 0, true
			}
			if bloat {
				walker.reporter.LongEncoding(CatNone, at, "attribute value")
			}

		case DW_FORM_block, DW_FORM_block1, DW_FORM_block2, DW_FORM_block4:
			var length uint64
			var err error
			switch format {
			case DW_FORM_block:
				var bloat bool
				length, bloat, err = walker.cursor.ULEB128()
				if err == nil && bloat {
					walker.reporter.LongEncoding(
						CatNone,
						at,
						"attribute value")
				}
			case DW_FORM_block1:
				length, err = walker.cursor.Var(1)
			case DW_FORM_block2:
				length, err = walker.cursor.Var(2)
			case DW_FORM_block4:
				length, err = walker.cursor.Var(4)
			}
			if err != nil {
				walker.reporter.Errorf(at, "can't read attribute value.")
				return 0, true
			}

			if length > uint64(walker.cursor.NumRemaining()) {
				walker.reporter.Errorf(at, "can't read attribute value.")
				return 0, true
			}
			_ = walker.cursor.Skip(int(length))

		case DW_FORM_indirect:
			walker.reporter.Errorf(at, "Indirect form is again indirect.")
			return 0, true

		default:
			walker.reporter.Errorf(
				at,
				"Internal error: unhandled form 0x%x.",
				uint64(format))
		}
	}

	return siblingAddr, false
}

func checkCUStructural(
	cursor *Cursor,
	unit *CompileUnit,
	abbrevSection *AbbreviationSection,
	strings *StringSection,
	dwarf64 bool,
	stringsCoverage *Coverage,
	reporter *Reporter,
) bool {
	version, ok := readVersion(
		cursor,
		dwarf64,
		AtCU(unit.Offset),
		reporter)
	if !ok {
		return false
	}
	unit.Version = version
	unit.Dwarf64 = dwarf64

	abbrevOffset, err := cursor.Offset(dwarf64)
	if err != nil {
		reporter.Errorf(AtCU(unit.Offset), "can't read abbrev offset.")
		return false
	}
	unit.AbbrevOffset = abbrevOffset

	addressSize, err := cursor.U8()
	if err != nil {
		reporter.Errorf(AtCU(unit.Offset), "can't read address size.")
		return false
	}
	if addressSize != 4 && addressSize != 8 {
		reporter.Errorf(
			AtCU(unit.Offset),
			"Invalid address size: %d (only 4 or 8 allowed).",
			addressSize)
		return false
	}
	unit.AddressSize = addressSize

	abbrevs := abbrevSection.TableAt(abbrevOffset)
	if abbrevs == nil {
		reporter.Errorf(
			AtCU(unit.Offset),
			"Couldn't find abbrev section with offset 0x%x.",
			abbrevOffset)
		return false
	}

	walker := &cuWalker{
		cursor:          cursor,
		unit:            unit,
		abbrevs:         abbrevs,
		strings:         strings,
		reporter:        reporter,
		dwarf64:         dwarf64,
		addr64:          addressSize == 8,
		localRefs:       &RefRecord{},
		stringsCoverage: stringsCoverage,
	}

	if walker.readDieChain() < 0 {
		return false
	}

	for _, abbrev := range abbrevs.Abbreviations {
		if !walker.usedCodes.Has(abbrev.Code) {
			reporter.Message(
				CatImpact3|CatBloat|CatAbbrevs,
				AtCU(unit.Offset),
				"Abbreviation with code %d is never used.",
				abbrev.Code)
		}
	}

	retval := true
	for _, ref := range walker.localRefs.Refs() {
		if !unit.DieAddrs.Has(ref.Target) {
			reporter.Errorf(
				AtCUDie(unit.Offset, ref.Whence),
				"unresolved reference to DIE 0x%x.",
				ref.Target)
			retval = false
		}
	}

	return retval
}

// checkGlobalDieReferences resolves every DW_FORM_ref_addr reference against
// the DIE addresses of all units.  A reference that lands back in its own
// unit works, but wastes the wider form.
func checkGlobalDieReferences(
	section *InformationSection,
	reporter *Reporter,
) bool {
	retval := true
	for _, unit := range section.CompileUnits {
		for _, ref := range unit.DieRefs.Refs() {
			var refUnit *CompileUnit
			for _, candidate := range section.CompileUnits {
				if candidate.DieAddrs.Has(ref.Target) {
					refUnit = candidate
					break
				}
			}

			if refUnit == nil {
				reporter.Errorf(
					AtCUDie(unit.Offset, ref.Whence),
					"unresolved (non-CU-local) reference to DIE 0x%x.",
					ref.Target)
				retval = false
			} else if refUnit == unit {
				reporter.Message(
					CatImpact2|CatSuboptimal|CatDieRelRef,
					AtCUDie(unit.Offset, ref.Whence),
					"local reference to DIE 0x%x formed as global.",
					ref.Target)
			}
		}
	}

	return retval
}

// CheckInformationSection walks every compile unit of .debug_info, reporting
// structural problems along the way.  A nil return means some unit was too
// broken to trust the harvested positions, so downstream checks that need
// them should be skipped.
func CheckInformationSection(
	cursor *Cursor,
	abbrevSection *AbbreviationSection,
	strings *StringSection,
	reporter *Reporter,
) *InformationSection {
	section := &InformationSection{}
	success := true

	var stringsCoverage *Coverage
	if strings.Found && reporter.Accepts(CatStrings) {
		stringsCoverage = NewCoverage(uint64(len(strings.Content)))
	}

	for !cursor.HasReachedEnd() {
		cuBegin := cursor.Position
		cuOffset := uint64(cuBegin)

		// Reading the CU header is a bit tricky, because we don't know
		// yet whether we have run into (superfluous but allowed) zero
		// padding.
		if cursor.NumRemaining() < 4 &&
			checkZeroPadding(
				cursor,
				CatDieOther,
				AtCU(cuOffset),
				0,
				reporter) {

			break
		}

		size, dwarf64, err := cursor.InitialLength()
		if err != nil {
			if cursor.NumRemaining() < 4 {
				reporter.Errorf(AtCU(cuOffset), "can't read CU length.")
			} else {
				escape, _ := cursor.Clone().U32()
				if escape == 0xffffffff {
					reporter.Errorf(
						AtCU(cuOffset),
						"can't read 64bit CU length.")
				} else {
					reporter.Errorf(
						AtCU(cuOffset),
						"unrecognized CU length escape value: %x.",
						escape)
				}
			}

			success = false
			break
		}

		if size == 0 && !dwarf64 {
			if cursor.HasReachedEnd() {
				break
			}
			if checkZeroPadding(
				cursor,
				CatDieOther,
				AtCU(cuOffset),
				0,
				reporter) {

				break
			}
		}

		if uint64(cursor.NumRemaining()) < size {
			reporter.Errorf(
				AtCU(cuOffset),
				"section doesn't have enough data to read CU of size %x.",
				size)
			cursor.Position = len(cursor.Content)
			success = false
			break
		}

		cuEnd := cursor.Position + int(size)

		unit := &CompileUnit{
			Offset: cuOffset,
			Length: uint64(cuEnd - cuBegin),
		}
		section.CompileUnits = append(section.CompileUnits, unit)

		// version + abbrev offset + address size
		headerSize := uint64(2 + 4 + 1)
		if dwarf64 {
			headerSize = 2 + 8 + 1
		}

		if size < headerSize {
			reporter.Errorf(
				AtCU(cuOffset),
				"claimed length of %x doesn't even cover CU header.",
				size)
			success = false
			break
		}

		// The unit cursor begins just before the length field, so that
		// positions double as unit-relative DIE offsets.
		cuCursor, err := cursor.SubCursor(cuBegin, cuEnd)
		if err != nil {
			reporter.Errorf(
				AtCU(cuOffset),
				"section doesn't have enough data to read CU of size %x.",
				size)
			success = false
			break
		}
		cuCursor.Position = cursor.Position - cuBegin

		if !checkCUStructural(
			cuCursor,
			unit,
			abbrevSection,
			strings,
			dwarf64,
			stringsCoverage,
			reporter) {

			success = false
			break
		}

		if !cuCursor.HasReachedEnd() &&
			!checkZeroPadding(
				cuCursor,
				CatDieOther,
				AtCU(cuOffset),
				cuOffset,
				reporter) {

			reporter.PaddingNonZero(
				CatDieOther,
				AtCU(cuOffset),
				cuOffset+uint64(cuCursor.Position),
				cuOffset+unit.Length-1)
		}

		cursor.Position = cuEnd
	}

	if success && !cursor.HasReachedEnd() {
		reporter.Message(
			CatDieOther|CatImpact4,
			"",
			".debug_info: CU lengths don't exactly match the section "+
				"contents.")
	}

	referencesSound := checkGlobalDieReferences(section, reporter)

	if stringsCoverage != nil && success {
		strings.ReportHoles(stringsCoverage, reporter)
	}

	if !success || !referencesSound {
		return nil
	}

	return section
}
