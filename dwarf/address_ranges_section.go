package dwarf

// ArangeTable describes one address range table of .debug_aranges.
type ArangeTable struct {
	Offset      uint64
	Length      uint64 // including the length field
	Version     uint16
	Dwarf64     bool
	CUOffset    uint64
	AddressSize uint8
}

// CheckAddressRangesSection walks every table of .debug_aranges, checking
// structure and the back references into .debug_info.  info may be nil when
// the info section was too broken to harvest CU positions; CU back
// references are then left unchecked.
func CheckAddressRangesSection(
	cursor *Cursor,
	info *InformationSection,
	reporter *Reporter,
) bool {
	retval := true

	for !cursor.HasReachedEnd() {
		tableBegin := cursor.Position
		tableOffset := uint64(tableBegin)

		size, dwarf64, err := cursor.InitialLength()
		if err != nil {
			if cursor.NumRemaining() < 4 {
				reporter.Errorf(
					AtArangeTable(tableOffset),
					"can't read unit length.")
			} else {
				escape, _ := cursor.Clone().U32()
				if escape == 0xffffffff {
					reporter.Errorf(
						AtArangeTable(tableOffset),
						"can't read 64bit unit length.")
				} else {
					reporter.Errorf(
						AtArangeTable(tableOffset),
						"unrecognized unit length escape value: %x.",
						escape)
				}
			}
			return false
		}

		if uint64(cursor.NumRemaining()) < size {
			reporter.Errorf(
				AtArangeTable(tableOffset),
				"section doesn't have enough data to read table of "+
					"size %x.",
				size)
			cursor.Position = len(cursor.Content)
			return false
		}

		tableEnd := cursor.Position + int(size)

		// The table cursor begins just before the length field, so that
		// positions double as table-relative offsets.
		tableCursor, _ := cursor.SubCursor(tableBegin, tableEnd)
		tableCursor.Position = cursor.Position - tableBegin
		cursor.Position = tableEnd

		table := &ArangeTable{
			Offset:  tableOffset,
			Length:  uint64(tableEnd - tableBegin),
			Dwarf64: dwarf64,
		}

		version, ok := readVersion(
			tableCursor,
			dwarf64,
			AtArangeTable(tableOffset),
			reporter)
		if !ok {
			retval = false
			continue
		}
		table.Version = version

		cuOffset, err := tableCursor.Offset(dwarf64)
		if err != nil {
			reporter.Errorf(
				AtArangeTable(tableOffset),
				"can't read debug info offset.")
			retval = false
			continue
		}
		table.CUOffset = cuOffset

		if info != nil && info.FindCompileUnit(cuOffset) == nil {
			reporter.Errorf(
				AtArangeTable(tableOffset),
				"unresolved reference to CU 0x%x.",
				cuOffset)
		}

		at := AtArangeTableCU(tableOffset, cuOffset)

		addressSize, err := tableCursor.U8()
		if err != nil {
			reporter.Errorf(at, "can't read unit address size.")
			retval = false
			continue
		}
		if addressSize != 2 && addressSize != 4 && addressSize != 8 {
			reporter.Errorf(
				at,
				"invalid address size: %d.",
				addressSize)
			retval = false
			continue
		}
		table.AddressSize = addressSize

		segmentSize, err := tableCursor.U8()
		if err != nil {
			reporter.Errorf(at, "can't read unit segment size.")
			retval = false
			continue
		}
		if segmentSize != 0 {
			reporter.Warningf(
				at,
				"dwarflint can't handle segment_size != 0.")
			retval = false
			continue
		}

		// The first tuple must begin at a multiple of the tuple size,
		// twice the address size.  The header is padded to that boundary.
		tupleSize := 2 * int(addressSize)
		if tableCursor.Position%tupleSize != 0 {
			boundary :=
				(tableCursor.Position/tupleSize + 1) * tupleSize

			truncated := false
			for tableCursor.Position < boundary {
				padOffset := uint64(tableCursor.Position)
				value, err := tableCursor.U8()
				if err != nil {
					reporter.Errorf(
						at,
						"section ends after the header, but before "+
							"the first entry.")
					retval = false
					truncated = true
					break
				}

				if value != 0 {
					reporter.Message(
						CatImpact2|CatAranges,
						at,
						"non-zero byte at 0x%x in padding before the "+
							"first entry.",
						padOffset)
				}
			}
			if truncated {
				continue
			}
		}

		truncated := false
		for !tableCursor.HasReachedEnd() {
			tupleOffset := uint64(tableCursor.Position)

			address, err := tableCursor.Var(int(addressSize))
			if err != nil {
				reporter.Errorf(
					AtArangeTableCURecord(
						tableOffset,
						cuOffset,
						tupleOffset),
					"can't read address field.")
				retval = false
				truncated = true
				break
			}

			length, err := tableCursor.Var(int(addressSize))
			if err != nil {
				reporter.Errorf(
					AtArangeTableCURecord(
						tableOffset,
						cuOffset,
						tupleOffset),
					"can't read length field.")
				retval = false
				truncated = true
				break
			}

			if address == 0 && length == 0 {
				break
			}

			// Address and length can only be validated against the
			// program headers, which is a higher level concern.
		}
		if truncated {
			continue
		}

		if !tableCursor.HasReachedEnd() &&
			!checkZeroPadding(
				tableCursor,
				CatAranges,
				at,
				tableOffset,
				reporter) {

			reporter.PaddingNonZero(
				CatAranges|CatError,
				at,
				tableOffset+uint64(tableCursor.Position),
				tableOffset+table.Length-1)
			retval = false
		}
	}

	return retval
}
