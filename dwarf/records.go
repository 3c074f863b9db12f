package dwarf

import (
	"sort"
)

// AddrRecord is a sorted, deduplicated set of section offsets.  The DIE
// walker records where each DIE starts so that references can be resolved
// against it afterwards.
type AddrRecord struct {
	addrs []uint64
}

func (record *AddrRecord) Add(addr uint64) {
	idx := sort.Search(
		len(record.addrs),
		func(i int) bool { return record.addrs[i] >= addr })

	if idx < len(record.addrs) && record.addrs[idx] == addr {
		return
	}

	record.addrs = append(record.addrs, 0)
	copy(record.addrs[idx+1:], record.addrs[idx:])
	record.addrs[idx] = addr
}

func (record *AddrRecord) Has(addr uint64) bool {
	idx := sort.Search(
		len(record.addrs),
		func(i int) bool { return record.addrs[i] >= addr })

	return idx < len(record.addrs) && record.addrs[idx] == addr
}

func (record *AddrRecord) Len() int {
	return len(record.addrs)
}

func (record *AddrRecord) Addrs() []uint64 {
	return record.addrs
}

// Ref is a single reference attribute: the offset it points at and the DIE
// whose attribute made the reference.
type Ref struct {
	Target uint64
	Whence uint64
}

// RefRecord collects references in encounter order.  Resolution happens in
// one pass once the referenced unit's DIE addresses are all known.
type RefRecord struct {
	refs []Ref
}

func (record *RefRecord) Add(target uint64, whence uint64) {
	record.refs = append(record.refs, Ref{Target: target, Whence: whence})
}

func (record *RefRecord) Refs() []Ref {
	return record.refs
}
