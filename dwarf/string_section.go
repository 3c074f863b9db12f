package dwarf

import (
	"bytes"
	"fmt"
)

type StringSection struct {
	Found   bool
	Content []byte
}

func NewStringSection(found bool, content []byte) *StringSection {
	return &StringSection{
		Found:   found,
		Content: content,
	}
}

func (section *StringSection) StringAt(offset uint64) (string, error) {
	value, _, err := section.getStringAt(int(offset))
	return value, err
}

func (section *StringSection) getStringAt(offset int) (string, int, error) {
	if !section.Found {
		return "", 0, fmt.Errorf("elf .debug_str section not found")
	}

	if offset < 0 || len(section.Content) <= offset {
		return "", 0, fmt.Errorf("out of bound string reference (%d)", offset)
	}

	content := section.Content[offset:]
	end := bytes.IndexByte(content, 0)
	if end == -1 {
		return "", 0, fmt.Errorf("string reference not terminated")
	}

	return string(content[:end]), offset + end + 1, nil
}

func (section *StringSection) StringEntries() ([]string, error) {
	result := []string{}
	offset := 0
	for len(section.Content) > offset {
		value, next, err := section.getStringAt(offset)
		if err != nil {
			return nil, err
		}

		result = append(result, value)
		offset = next
	}

	return result, nil
}

// ReportHoles reports every byte range no string reference ever touched.
// Zero runs count as padding, anything else as garbage.
func (section *StringSection) ReportHoles(
	coverage *Coverage,
	reporter *Reporter,
) {
	coverage.Holes(func(begin uint64, end uint64) bool {
		allZero := true
		for pos := begin; pos <= end; pos++ {
			if section.Content[pos] != 0 {
				allZero = false
				break
			}
		}

		if allZero {
			reporter.PaddingZero(CatStrings, ".debug_str", begin, end)
		} else {
			reporter.PaddingNonZero(CatStrings, ".debug_str", begin, end)
		}

		return true
	})
}
