package dwarf

import (
	"fmt"
	"io"
	"strings"
)

// DefaultWarningCriteria matches every area except the string table, at any
// severity.  .debug_str bloat is common enough in real objects that it is
// opt-in (see the strict flag in bin/dwarflint).
var DefaultWarningCriteria = Criteria{
	Accept: CatAllAreas &^ CatStrings,
	Reject: CatNone,
}

// DefaultErrorCriteria escalates high-impact messages and messages that carry
// the explicit error bit.
var DefaultErrorCriteria = Criteria{
	Accept: CatImpact4 | CatError,
	Reject: CatNone,
}

// Reporter collects and prints diagnostics.  Unconditional errors go through
// Errorf; categorized messages go through Message and are filtered by the
// warning criteria, or escalated to error status by the error criteria.
// Only messages printed with an "error: " prefix increment ErrorCount.
type Reporter struct {
	Out io.Writer

	WarningCriteria Criteria
	ErrorCriteria   Criteria

	ErrorCount int
}

func NewReporter(out io.Writer) *Reporter {
	return &Reporter{
		Out:             out,
		WarningCriteria: DefaultWarningCriteria,
		ErrorCriteria:   DefaultErrorCriteria,
	}
}

func format(template string, args ...interface{}) string {
	msg := fmt.Sprintf(template, args...)
	if strings.Contains(msg, "%!") {
		return "(fmt error)"
	}
	return msg
}

// Errorf prints an error diagnostic regardless of criteria.  where may be
// empty for file-level messages.
func (reporter *Reporter) Errorf(
	where string,
	template string,
	args ...interface{},
) {
	reporter.ErrorCount += 1
	reporter.print("error", where, template, args...)
}

// Warningf prints a warning diagnostic regardless of criteria.
func (reporter *Reporter) Warningf(
	where string,
	template string,
	args ...interface{},
) {
	reporter.print("warning", where, template, args...)
}

// Message prints a categorized diagnostic.  The warning criteria decide
// whether the message prints at all; the error criteria then decide whether
// it prints as an error and counts.
func (reporter *Reporter) Message(
	cat Category,
	where string,
	template string,
	args ...interface{},
) {
	if !reporter.WarningCriteria.Match(cat) {
		return
	}

	if reporter.ErrorCriteria.Match(cat) {
		reporter.Errorf(where, template, args...)
	} else {
		reporter.Warningf(where, template, args...)
	}
}

// Accepts reports whether a message in the given category would print.
// Checkers use it to skip expensive scans whose only output would be
// filtered anyway.
func (reporter *Reporter) Accepts(cat Category) bool {
	return reporter.WarningCriteria.Match(cat)
}

func (reporter *Reporter) print(
	level string,
	where string,
	template string,
	args ...interface{},
) {
	msg := format(template, args...)
	if where == "" {
		fmt.Fprintf(reporter.Out, "%s: %s\n", level, msg)
	} else {
		fmt.Fprintf(reporter.Out, "%s: %s: %s\n", level, where, msg)
	}
}

// PaddingZero reports a run of zero bytes that serves no structural purpose.
// The range is inclusive on both ends.
func (reporter *Reporter) PaddingZero(
	cat Category,
	where string,
	begin uint64,
	end uint64,
) {
	reporter.Message(
		cat|CatBloat|CatImpact1,
		where,
		"0x%x..0x%x: unnecessary padding with zero bytes.",
		begin,
		end)
}

// PaddingNonZero reports a run of non-zero bytes that nothing references.
func (reporter *Reporter) PaddingNonZero(
	cat Category,
	where string,
	begin uint64,
	end uint64,
) {
	reporter.Message(
		cat|CatBloat|CatImpact2,
		where,
		"0x%x..0x%x: unreferenced non-zero bytes.",
		begin,
		end)
}

// LongEncoding reports a LEB128 value stored with redundant trailing groups.
func (reporter *Reporter) LongEncoding(
	extraCat Category,
	where string,
	what string,
) {
	reporter.Message(
		CatLEB128|CatBloat|CatImpact3|extraCat,
		where,
		"unnecessarily long encoding of %s.",
		what)
}

// Diagnostic context builders.  These compose the position prefixes printed
// in front of each message, most specific component last.

func AtCU(offset uint64) string {
	return fmt.Sprintf(".debug_info: CU 0x%x", offset)
}

func AtCUDie(cuOffset uint64, dieOffset uint64) string {
	return fmt.Sprintf(".debug_info: CU 0x%x, DIE 0x%x", cuOffset, dieOffset)
}

func AtCUDieAbbrevAttr(
	cuOffset uint64,
	dieOffset uint64,
	abbrevCode uint64,
	attrOffset uint64,
) string {
	return fmt.Sprintf(
		".debug_info: CU 0x%x, DIE 0x%x, abbrev 0x%x, attribute 0x%x",
		cuOffset,
		dieOffset,
		abbrevCode,
		attrOffset)
}

func AtAbbrev(abbrevOffset uint64) string {
	return fmt.Sprintf("abbrev 0x%x", abbrevOffset)
}

func AtAbbrevAttr(abbrevOffset uint64, attrOffset uint64) string {
	return fmt.Sprintf(
		"abbrev 0x%x, attribute 0x%x",
		abbrevOffset,
		attrOffset)
}

func AtArangeTable(offset uint64) string {
	return fmt.Sprintf(".debug_aranges: arange table 0x%x", offset)
}

func AtArangeTableCU(offset uint64, cuOffset uint64) string {
	return fmt.Sprintf(
		".debug_aranges: arange table 0x%x (for CU 0x%x)",
		offset,
		cuOffset)
}

func AtArangeTableCURecord(
	offset uint64,
	cuOffset uint64,
	recordOffset uint64,
) string {
	return fmt.Sprintf(
		".debug_aranges: arange table 0x%x (for CU 0x%x), record 0x%x",
		offset,
		cuOffset,
		recordOffset)
}

func AtPubnameSet(offset uint64) string {
	return fmt.Sprintf(".debug_pubnames: pubname set 0x%x", offset)
}

func AtPubnameSetCU(offset uint64, cuOffset uint64) string {
	return fmt.Sprintf(
		".debug_pubnames: pubname set 0x%x (for CU 0x%x)",
		offset,
		cuOffset)
}

func AtPubnameSetCURecord(
	offset uint64,
	cuOffset uint64,
	recordOffset uint64,
) string {
	return fmt.Sprintf(
		".debug_pubnames: pubname set 0x%x (for CU 0x%x), record 0x%x",
		offset,
		cuOffset,
		recordOffset)
}
