package dwarf

// CheckPubnamesSection walks every name set of .debug_pubnames.  Each set
// names a compile unit and lists (DIE offset, name) pairs; every offset must
// resolve to a DIE harvested from that unit.  info must be non-nil; the
// driver skips this check when .debug_info was too broken to harvest.
func CheckPubnamesSection(
	cursor *Cursor,
	info *InformationSection,
	reporter *Reporter,
) bool {
	retval := true

	for !cursor.HasReachedEnd() {
		setBegin := cursor.Position
		setOffset := uint64(setBegin)

		size, dwarf64, err := cursor.InitialLength()
		if err != nil {
			if cursor.NumRemaining() < 4 {
				reporter.Errorf(
					AtPubnameSet(setOffset),
					"can't read set length.")
			} else {
				escape, _ := cursor.Clone().U32()
				if escape == 0xffffffff {
					reporter.Errorf(
						AtPubnameSet(setOffset),
						"can't read 64bit set length.")
				} else {
					reporter.Errorf(
						AtPubnameSet(setOffset),
						"unrecognized set length escape value: %x.",
						escape)
				}
			}
			return false
		}

		if uint64(cursor.NumRemaining()) < size {
			reporter.Errorf(
				AtPubnameSet(setOffset),
				"section doesn't have enough data to read set of size %x.",
				size)
			cursor.Position = len(cursor.Content)
			return false
		}

		setEnd := cursor.Position + int(size)
		setLength := uint64(setEnd - setBegin)

		// The set cursor begins just before the length field, so that
		// positions double as set-relative offsets.
		setCursor, _ := cursor.SubCursor(setBegin, setEnd)
		setCursor.Position = cursor.Position - setBegin
		cursor.Position = setEnd

		_, err = setCursor.U16()
		if err != nil {
			reporter.Errorf(
				AtPubnameSet(setOffset),
				"can't read set version.")
			retval = false
			continue
		}

		cuOffset, err := setCursor.Offset(dwarf64)
		if err != nil {
			reporter.Errorf(
				AtPubnameSet(setOffset),
				"can't read debug info offset.")
			retval = false
			continue
		}

		unit := info.FindCompileUnit(cuOffset)
		if unit == nil {
			reporter.Errorf(
				AtPubnameSet(setOffset),
				"unresolved reference to CU 0x%x.",
				cuOffset)
			continue
		}

		at := AtPubnameSetCU(setOffset, cuOffset)

		coveredLength, err := setCursor.Offset(dwarf64)
		if err != nil {
			reporter.Errorf(at, "can't read covered length.")
			retval = false
			continue
		}
		if coveredLength != unit.Length {
			reporter.Errorf(
				at,
				"the set covers length %d but CU has length %d.",
				coveredLength,
				unit.Length)
			retval = false
			continue
		}

		truncated := false
		for !setCursor.HasReachedEnd() {
			pairOffset := uint64(setCursor.Position)

			dieOffset, err := setCursor.Offset(dwarf64)
			if err != nil {
				reporter.Errorf(
					AtPubnameSetCURecord(setOffset, cuOffset, pairOffset),
					"can't read offset field.")
				retval = false
				truncated = true
				break
			}

			if dieOffset == 0 {
				break
			}

			if !unit.DieAddrs.Has(dieOffset + unit.Offset) {
				reporter.Errorf(
					AtPubnameSetCURecord(setOffset, cuOffset, pairOffset),
					"unresolved reference to DIE 0x%x.",
					dieOffset)
				retval = false
				truncated = true
				break
			}

			for {
				value, err := setCursor.U8()
				if err != nil {
					reporter.Errorf(
						AtPubnameSetCURecord(
							setOffset,
							cuOffset,
							pairOffset),
						"can't read symbol name.")
					retval = false
					truncated = true
					break
				}
				if value == 0 {
					break
				}
			}
			if truncated {
				break
			}
		}
		if truncated {
			continue
		}

		if !setCursor.HasReachedEnd() &&
			!checkZeroPadding(
				setCursor,
				CatPubnames,
				AtPubnameSet(setOffset),
				setOffset,
				reporter) {

			reporter.PaddingNonZero(
				CatPubnames|CatError,
				AtPubnameSet(setOffset),
				setOffset+uint64(setCursor.Position),
				setOffset+setLength-1)
			retval = false
		}
	}

	return retval
}
