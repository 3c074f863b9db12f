package dwarf

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	signExtensionMask = ^uint64(0)

	// 64bit values fit in ten 7-bit groups.  An eleventh group cannot
	// contribute any bits and indicates a malformed stream rather than a
	// merely bloated one.
	maxLEB128Groups = 10
)

// Cursor is a bounds-checked little window over a section's bytes.  All
// decode methods leave Position untouched when they fail, so a checker can
// report the failure with the offset of the field that caused it.
type Cursor struct {
	binary.ByteOrder

	Content  []byte
	Position int
}

func NewCursor(
	byteOrder binary.ByteOrder,
	content []byte,
) *Cursor {
	return &Cursor{
		ByteOrder: byteOrder,
		Content:   content,
		Position:  0,
	}
}

// SubCursor returns a cursor over Content[begin:end] with Position reset.
// Callers add begin back when composing section-relative offsets for
// diagnostics.
func (cursor *Cursor) SubCursor(begin int, end int) (*Cursor, error) {
	if begin < 0 || end < begin || len(cursor.Content) < end {
		return nil, fmt.Errorf(
			"out of bound sub cursor [%d:%d] of %d",
			begin,
			end,
			len(cursor.Content))
	}

	return &Cursor{
		ByteOrder: cursor.ByteOrder,
		Content:   cursor.Content[begin:end],
		Position:  0,
	}, nil
}

func (cursor *Cursor) Clone() *Cursor {
	return &Cursor{
		ByteOrder: cursor.ByteOrder,
		Content:   cursor.Content,
		Position:  cursor.Position,
	}
}

func (cursor *Cursor) remaining() []byte {
	return cursor.Content[cursor.Position:]
}

func (cursor *Cursor) NumRemaining() int {
	return len(cursor.remaining())
}

func (cursor *Cursor) HasReachedEnd() bool {
	return len(cursor.remaining()) == 0
}

func (cursor *Cursor) Seek(offset int, whence int) (int, error) {
	pos := 0
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = cursor.Position + offset
	case io.SeekEnd:
		pos = len(cursor.Content) + offset
	}

	if pos < 0 || len(cursor.Content) < pos {
		return 0, fmt.Errorf("out of bound seek (%d)", pos)
	}

	cursor.Position = pos
	return pos, nil
}

func (cursor *Cursor) Skip(size int) error {
	_, err := cursor.Bytes(size)
	return err
}

func (cursor *Cursor) Bytes(size int) ([]byte, error) {
	content := cursor.remaining()
	if size < 0 || len(content) < size {
		return nil, fmt.Errorf(
			"out of bound slice %d [%d:%d+%d]",
			len(content),
			cursor.Position,
			cursor.Position,
			size)
	}

	content = content[:size]
	cursor.Position += size
	return content, nil
}

func (cursor *Cursor) String() (string, error) {
	content := cursor.remaining()
	if len(content) == 0 {
		return "", fmt.Errorf("cannot decode string: %w", io.EOF)
	}

	end := -1
	for idx, char := range content {
		if char == 0 {
			end = idx
			break
		}
	}

	if end == -1 {
		return "", fmt.Errorf("string not terminated (%d)", cursor.Position)
	}

	cursor.Position += end + 1 // +1 for trailing \0

	// exclude trailing \0
	return string(content[:end]), nil
}

func (cursor *Cursor) decode(out interface{}, name string) error {
	n, err := binary.Decode(cursor.remaining(), cursor.ByteOrder, out)
	if err != nil {
		return fmt.Errorf(
			"failed to decode %s (%d): %w",
			name,
			cursor.Position,
			err)
	}

	cursor.Position += n
	return nil
}

func (cursor *Cursor) U8() (uint8, error) {
	var result uint8
	err := cursor.decode(&result, "U8")
	return result, err
}

func (cursor *Cursor) U16() (uint16, error) {
	var result uint16
	err := cursor.decode(&result, "U16")
	return result, err
}

func (cursor *Cursor) U32() (uint32, error) {
	var result uint32
	err := cursor.decode(&result, "U32")
	return result, err
}

func (cursor *Cursor) U64() (uint64, error) {
	var result uint64
	err := cursor.decode(&result, "U64")
	return result, err
}

// Var decodes an unsigned field whose byte width is only known at run time
// (address size, offset size).
func (cursor *Cursor) Var(width int) (uint64, error) {
	switch width {
	case 1:
		val, err := cursor.U8()
		return uint64(val), err
	case 2:
		val, err := cursor.U16()
		return uint64(val), err
	case 4:
		val, err := cursor.U32()
		return uint64(val), err
	case 8:
		return cursor.U64()
	}

	return 0, fmt.Errorf("unsupported field width (%d)", width)
}

// Offset decodes a section offset: 4 bytes in 32-bit DWARF, 8 in 64-bit.
func (cursor *Cursor) Offset(dwarf64 bool) (uint64, error) {
	if dwarf64 {
		return cursor.U64()
	}

	val, err := cursor.U32()
	return uint64(val), err
}

// InitialLength decodes a unit's initial length field, handling the 64-bit
// escape.  0xffffffff announces an 8-byte length; the remaining values of
// [0xffffff00, 0xffffffff) are reserved and rejected.
func (cursor *Cursor) InitialLength() (uint64, bool, error) {
	start := cursor.Position

	size32, err := cursor.U32()
	if err != nil {
		return 0, false, err
	}

	if size32 == 0xffffffff {
		size64, err := cursor.U64()
		if err != nil {
			cursor.Position = start
			return 0, false, err
		}
		return size64, true, nil
	}

	if size32 >= 0xffffff00 {
		cursor.Position = start
		return 0, false, fmt.Errorf("unrecognized escape (0x%x)", size32)
	}

	return uint64(size32), false, nil
}

func (cursor *Cursor) leb128() (
	uint64, // decoded groups
	int, // shift after the final group
	byte, // final byte
	byte, // byte before the final byte, 0 for single-byte values
	error,
) {
	content := cursor.remaining()
	if len(content) == 0 {
		return 0, 0, 0, 0, fmt.Errorf("cannot decode LEB128: %w", io.EOF)
	}

	result := uint64(0)
	shift := 0
	current := byte(0)
	previous := byte(0)
	for numBytes := 0; numBytes < len(content); numBytes++ {
		if numBytes == maxLEB128Groups {
			return 0, 0, 0, 0, fmt.Errorf(
				"LEB128 longer than %d bytes (%d)",
				maxLEB128Groups,
				cursor.Position)
		}

		previous = current
		current = content[numBytes]

		result |= uint64(current&0x7f) << shift
		shift += 7

		if (current & 0x80) == 0 {
			cursor.Position += numBytes + 1
			return result, shift, current, previous, nil
		}
	}

	return 0, 0, 0, 0, fmt.Errorf(
		"LEB128 not terminated (%d)",
		cursor.Position)
}

// ULEB128 decodes an unsigned LEB128 value.  The bool reports whether the
// encoding wastes trailing groups.
func (cursor *Cursor) ULEB128() (uint64, bool, error) {
	result, shift, last, _, err := cursor.leb128()
	if err != nil {
		return 0, false, err
	}

	bloat := shift > 7 && (last&0x7f) == 0
	return result, bloat, nil
}

// SLEB128 decodes a signed LEB128 value.  The bool reports whether the
// encoding wastes trailing groups: an all-zero final group under a clear
// sign bit, or an all-one final group under a set sign bit.
func (cursor *Cursor) SLEB128() (int64, bool, error) {
	result, shift, last, previous, err := cursor.leb128()
	if err != nil {
		return 0, false, err
	}

	if shift < 64 && (last&0x40) != 0 {
		result |= signExtensionMask << shift
	}

	bloat := false
	if shift > 7 {
		payload := last & 0x7f
		if payload == 0 {
			bloat = (previous & 0x40) == 0
		} else if payload == 0x7f {
			bloat = (previous & 0x40) != 0
		}
	}

	return int64(result), bloat, nil
}

// ZeroesToEnd reports whether the cursor has unread bytes and every one of
// them is zero.  The cursor does not move.
func (cursor *Cursor) ZeroesToEnd() bool {
	content := cursor.remaining()
	if len(content) == 0 {
		return false
	}

	for _, b := range content {
		if b != 0 {
			return false
		}
	}

	return true
}
