package dwarf

import (
	"sort"
)

type AttributeSpec struct {
	Attribute
	Format

	// Section offset of the spec's name field.
	Offset uint64
}

type Abbreviation struct {
	Code uint64
	Tag
	HasChildren    bool
	AttributeSpecs []AttributeSpec

	// Section offset of the abbreviation's code field.
	Offset uint64
}

// SiblingSpec returns the abbreviation's DW_AT_sibling spec, if any.
func (abbrev *Abbreviation) SiblingSpec() *AttributeSpec {
	for idx, spec := range abbrev.AttributeSpecs {
		if spec.Attribute == DW_AT_sibling {
			return &abbrev.AttributeSpecs[idx]
		}
	}

	return nil
}

// AbbreviationTable holds one table's abbreviations sorted by code.
type AbbreviationTable struct {
	Offset        uint64
	Abbreviations []*Abbreviation
}

func (table *AbbreviationTable) Find(code uint64) *Abbreviation {
	idx := sort.Search(
		len(table.Abbreviations),
		func(i int) bool { return table.Abbreviations[i].Code >= code })

	if idx < len(table.Abbreviations) &&
		table.Abbreviations[idx].Code == code {

		return table.Abbreviations[idx]
	}

	return nil
}

type AbbreviationSection struct {
	Tables []*AbbreviationTable
}

// TableAt returns the table starting exactly at the given section offset.
// Compile units must name a table head, not a position inside one.
func (section *AbbreviationSection) TableAt(
	offset uint64,
) *AbbreviationTable {
	for _, table := range section.Tables {
		if table.Offset == offset {
			return table
		}
	}

	return nil
}

func checkSiblingForm(format Format) int {
	switch format {
	case DW_FORM_indirect,
		// Tolerated here.  The DIE walker checks that the dereferenced
		// form is a valid reference.
		DW_FORM_ref1,
		DW_FORM_ref2,
		DW_FORM_ref4,
		DW_FORM_ref8,
		DW_FORM_ref_udata:

		return 0

	case DW_FORM_ref_addr:
		return -1
	}

	return -2
}

// LoadAbbreviationSection decodes every abbreviation table in .debug_abbrev.
// Malformed structure is reported through the reporter and aborts the load
// with a nil section; bloat and policy findings are reported and decoding
// continues.
func LoadAbbreviationSection(
	cursor *Cursor,
	reporter *Reporter,
) *AbbreviationSection {
	section := &AbbreviationSection{}

	var table *AbbreviationTable
	tableOffset := uint64(0)

	for !cursor.HasReachedEnd() {
		abbrevOffset := uint64(0)
		prevOffset := uint64(0)
		prevCode := uint64(0)
		code := uint64(0)
		zeroSeqOffset := int64(-1)
		first := true

		for !cursor.HasReachedEnd() {
			abbrevOffset = uint64(cursor.Position)

			var bloat bool
			var err error
			code, bloat, err = cursor.ULEB128()
			if err != nil {
				reporter.Errorf(
					AtAbbrev(abbrevOffset),
					"can't read abbrev code.")
				return nil
			}
			if bloat {
				reporter.LongEncoding(
					CatNone,
					AtAbbrev(abbrevOffset),
					"abbrev code")
			}

			if code == 0 && prevCode == 0 && !first && zeroSeqOffset < 0 {
				zeroSeqOffset = int64(prevOffset)
			}

			if code != 0 {
				break
			}

			// A zero code terminates the current table.
			table = nil

			prevCode = code
			prevOffset = abbrevOffset
			first = false
		}

		if zeroSeqOffset >= 0 {
			reporter.PaddingZero(
				CatAbbrevs,
				AtAbbrev(tableOffset),
				uint64(zeroSeqOffset),
				prevOffset-1)
		}

		if cursor.HasReachedEnd() {
			break
		}

		if table == nil {
			table = &AbbreviationTable{Offset: abbrevOffset}
			section.Tables = append(section.Tables, table)
			tableOffset = abbrevOffset
		}

		abbrev := &Abbreviation{
			Code:   code,
			Offset: abbrevOffset,
		}
		table.Abbreviations = append(table.Abbreviations, abbrev)

		tag, bloat, err := cursor.ULEB128()
		if err != nil {
			reporter.Errorf(
				AtAbbrev(abbrevOffset),
				"can't read abbrev tag.")
			return nil
		}
		if bloat {
			reporter.LongEncoding(
				CatNone,
				AtAbbrev(abbrevOffset),
				"abbrev tag")
		}

		if tag > uint64(DW_TAG_hi_user) {
			reporter.Errorf(
				AtAbbrev(abbrevOffset),
				"invalid abbrev tag 0x%x.",
				tag)
			return nil
		}
		abbrev.Tag = Tag(tag)

		hasChildren, err := cursor.U8()
		if err != nil {
			reporter.Errorf(
				AtAbbrev(abbrevOffset),
				"can't read abbrev has_children.")
			return nil
		}

		if hasChildren != DW_CHILDREN_no && hasChildren != DW_CHILDREN_yes {
			reporter.Errorf(
				AtAbbrev(abbrevOffset),
				"invalid has_children value 0x%x.",
				hasChildren)
			return nil
		}
		abbrev.HasChildren = hasChildren == DW_CHILDREN_yes

		siblingAttrOffset := uint64(0)
		for {
			attrOffset := uint64(cursor.Position)

			name, bloat, err := cursor.ULEB128()
			if err != nil {
				reporter.Errorf(
					AtAbbrevAttr(abbrevOffset, attrOffset),
					"can't read attribute name.")
				return nil
			}
			if bloat {
				reporter.LongEncoding(
					CatNone,
					AtAbbrevAttr(abbrevOffset, attrOffset),
					"attribute name")
			}

			format, bloat, err := cursor.ULEB128()
			if err != nil {
				reporter.Errorf(
					AtAbbrevAttr(abbrevOffset, attrOffset),
					"can't read attribute form.")
				return nil
			}
			if bloat {
				reporter.LongEncoding(
					CatNone,
					AtAbbrevAttr(abbrevOffset, attrOffset),
					"attribute form")
			}

			if name == 0 && format == 0 {
				break
			}

			if name > uint64(DW_AT_hi_user) {
				reporter.Errorf(
					AtAbbrevAttr(abbrevOffset, attrOffset),
					"invalid name 0x%x.",
					name)
				return nil
			}

			if format == 0 || format > uint64(DW_FORM_indirect) {
				reporter.Errorf(
					AtAbbrevAttr(abbrevOffset, attrOffset),
					"invalid form 0x%x.",
					format)
				return nil
			}

			if Attribute(name) == DW_AT_sibling {
				if siblingAttrOffset != 0 {
					reporter.Errorf(
						AtAbbrevAttr(abbrevOffset, attrOffset),
						"Another DW_AT_sibling attribute in one "+
							"abbreviation. (First was 0x%x.)",
						siblingAttrOffset)
				} else {
					siblingAttrOffset = attrOffset

					if !abbrev.HasChildren {
						reporter.Message(
							CatDieRelSib|CatBloat|CatImpact1,
							AtAbbrevAttr(abbrevOffset, attrOffset),
							"Excessive DW_AT_sibling attribute at "+
								"childless abbrev.")
					}
				}

				switch checkSiblingForm(Format(format)) {
				case -1:
					reporter.Message(
						CatDieRelSib|CatImpact2,
						AtAbbrevAttr(abbrevOffset, attrOffset),
						"DW_AT_sibling attribute with form "+
							"DW_FORM_ref_addr.")

				case -2:
					reporter.Errorf(
						AtAbbrevAttr(abbrevOffset, attrOffset),
						"DW_AT_sibling attribute with non-reference "+
							"form %s.",
						Format(format))
				}
			}

			abbrev.AttributeSpecs = append(
				abbrev.AttributeSpecs,
				AttributeSpec{
					Attribute: Attribute(name),
					Format:    Format(format),
					Offset:    attrOffset,
				})
		}
	}

	for _, table := range section.Tables {
		// Most likely already sorted in the file, but just to be sure.
		sort.Slice(
			table.Abbreviations,
			func(i int, j int) bool {
				return table.Abbreviations[i].Code <
					table.Abbreviations[j].Code
			})
	}

	return section
}
