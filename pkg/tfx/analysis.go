package tfx

import "sort"

// OutputLen returns the number of output elements ops touches, i.e. the
// smallest constant buffer the program can run against without
// ErrOutputOutOfRange.
func OutputLen(ops []Instruction) int {
	n := 0
	for _, in := range ops {
		end := 0
		switch in.Op {
		case OpPushFromOutput, OpPopOutput:
			end = int(in.Index) + 1
		case OpPopOutputMat4:
			end = int(in.Index) + 4
		}
		n = max(n, end)
	}
	return n
}

// ObjectChannels lists the object channel hashes ops reads. A channel that
// is immediately permuted to .xxxx is only ever used as a scalar and is
// reported as ChannelFloat; any other use makes it ChannelVec4.
func ObjectChannels(ops []Instruction) map[uint32]ChannelKind {
	ids := make(map[uint32]ChannelKind)
	for i, in := range ops {
		if in.Op != OpPushObjectChannelVector {
			continue
		}
		kind := ChannelVec4
		if i+1 < len(ops) && ops[i+1].Op == OpPermute && ops[i+1].Fields == 0 {
			kind = ChannelFloat
		}
		if prev, ok := ids[in.Hash]; ok && prev == ChannelVec4 {
			continue
		}
		ids[in.Hash] = kind
	}
	return ids
}

// ExternsUsed returns the extern kinds ops reads, in ascending order.
func ExternsUsed(ops []Instruction) []ExternKind {
	seen := make(map[ExternKind]bool)
	var kinds []ExternKind
	for _, in := range ops {
		if !in.Op.IsExternPush() || seen[in.Extern] {
			continue
		}
		seen[in.Extern] = true
		kinds = append(kinds, in.Extern)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
