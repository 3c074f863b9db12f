// NOTE: This is based on based on dwarf.h from github.com/TartanLlama/sdb

package dwarf

const (
	DW_CHILDREN_no  = 0x00
	DW_CHILDREN_yes = 0x01
)
