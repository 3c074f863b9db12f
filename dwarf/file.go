package dwarf

import (
	"github.com/pattyshack/dwarflint/elf"
)

const (
	ElfDebugAbbrevSection   = ".debug_abbrev"
	ElfDebugInfoSection     = ".debug_info"
	ElfDebugStrSection      = ".debug_str"
	ElfDebugArangesSection  = ".debug_aranges"
	ElfDebugPubnamesSection = ".debug_pubnames"
)

// File holds the artifacts harvested while checking one object's debug
// sections.  Sections that failed their structural check are nil.
type File struct {
	*elf.File

	Abbreviations *AbbreviationSection
	Information   *InformationSection
	Strings       *StringSection
}

// CheckOptions adjusts what CheckFile tolerates.  TolerateNoDebug silences
// the hard errors for objects that carry no debug sections at all.
type CheckOptions struct {
	TolerateNoDebug bool
}

func sectionContent(
	elfFile *elf.File,
	name string,
) (bool, []byte) {
	section, found := elfFile.GetSection(name)
	if !found {
		return false, nil
	}

	content, err := section.RawContent()
	if err != nil {
		return false, nil
	}

	return true, content
}

// CheckFile runs the structural checks over one parsed ELF file, in
// dependency order: abbreviations first, then the info section against them,
// then the aranges and pubnames back references against the harvested CU
// positions.  Diagnostics go through the reporter; the returned File carries
// whatever survived.
func CheckFile(
	elfFile *elf.File,
	options CheckOptions,
	reporter *Reporter,
) *File {
	file := &File{
		File: elfFile,
	}

	byteOrder := elfFile.ByteOrder()

	abbrevFound, abbrevContent := sectionContent(
		elfFile,
		ElfDebugAbbrevSection)
	if abbrevFound {
		file.Abbreviations = LoadAbbreviationSection(
			NewCursor(byteOrder, abbrevContent),
			reporter)
	} else if !options.TolerateNoDebug {
		// Hard error, not a categorized message.  There is nothing to
		// check without it.
		reporter.Errorf("", ".debug_abbrev data not found.")
	}

	strFound, strContent := sectionContent(elfFile, ElfDebugStrSection)
	file.Strings = NewStringSection(strFound, strContent)

	if file.Abbreviations != nil {
		infoFound, infoContent := sectionContent(
			elfFile,
			ElfDebugInfoSection)
		if infoFound && strFound {
			file.Information = CheckInformationSection(
				NewCursor(byteOrder, infoContent),
				file.Abbreviations,
				file.Strings,
				reporter)
		} else if !options.TolerateNoDebug {
			reporter.Errorf("", ".debug_info or .debug_str data not found.")
		}
	}

	arangesFound, arangesContent := sectionContent(
		elfFile,
		ElfDebugArangesSection)
	if arangesFound {
		CheckAddressRangesSection(
			NewCursor(byteOrder, arangesContent),
			file.Information,
			reporter)
	} else {
		reporter.Message(
			CatImpact4|CatSuboptimal|CatElf,
			"",
			".debug_aranges data not found.")
	}

	pubnamesFound, pubnamesContent := sectionContent(
		elfFile,
		ElfDebugPubnamesSection)
	if pubnamesFound {
		// Pubname sets resolve against harvested DIE positions, so a
		// broken info section leaves nothing to check them against.
		if file.Information != nil {
			CheckPubnamesSection(
				NewCursor(byteOrder, pubnamesContent),
				file.Information,
				reporter)
		}
	} else {
		reporter.Message(
			CatImpact4|CatSuboptimal|CatElf,
			"",
			".debug_pubnames data not found.")
	}

	return file
}
