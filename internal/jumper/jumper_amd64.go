//go:build amd64

package jumper

import "encoding/binary"

// jumpLen is 12 bytes on amd64: a "movabs rax, imm64; jmp rax" sequence.
// movabs+jmp is chosen over a 5-byte relative jmp because the trampoline
// slab (component A) is not guaranteed to be within a 32-bit displacement
// of arbitrary target code.
const jumpLen = 12

// encodeJump returns the byte sequence that, written at entry, transfers
// control unconditionally to target:
//
//	48 B8 <imm64>   movabs rax, target
//	FF E0           jmp rax
func encodeJump(entry, target uintptr) []byte {
	_ = entry
	buf := make([]byte, jumpLen)
	buf[0] = 0x48
	buf[1] = 0xB8
	binary.LittleEndian.PutUint64(buf[2:10], uint64(target))
	buf[10] = 0xFF
	buf[11] = 0xE0
	return buf
}
