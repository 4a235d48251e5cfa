//go:build arm64

package jumper

import "encoding/binary"

// jumpLen is 16 bytes on arm64: "ldr x16, #8; br x16; <imm64>" — a
// PC-relative literal load followed by an indirect branch, which (unlike a
// B/BL immediate) can reach any 64-bit target.
const jumpLen = 16

// encodeJump returns:
//
//	50 00 00 58   ldr x16, [pc, #8]   ; loads the imm64 that follows
//	00 02 1F D6   br x16
//	<imm64 target>
func encodeJump(entry, target uintptr) []byte {
	_ = entry
	buf := make([]byte, jumpLen)
	binary.LittleEndian.PutUint32(buf[0:4], 0x58000050)
	binary.LittleEndian.PutUint32(buf[4:8], 0xD61F0200)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(target))
	return buf
}
