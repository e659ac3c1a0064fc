package riscv

// Reference instruction encoders. Tests build instructions with these and
// compare them against instructions patched through the fixup kinds.

const (
	opLUI    = 0x37
	opAUIPC  = 0x17
	opJAL    = 0x6f
	opBranch = 0x63
	opLoad   = 0x03
	opStore  = 0x23
	opImm    = 0x13
)

// I-type: opcode[6:0] | rd[11:7] | funct3[14:12] | rs1[19:15] | imm[31:20]
func encodeIType(opcode, funct3 uint32, rd, rs1 uint32, imm int32) uint32 {
	return opcode | (rd << 7) | (funct3 << 12) | (rs1 << 15) | (uint32(imm&0xfff) << 20)
}

// S-type: opcode[6:0] | imm[11:7] | funct3[14:12] | rs1[19:15] | rs2[24:20] | imm[31:25]
func encodeSType(opcode, funct3 uint32, rs1, rs2 uint32, imm int32) uint32 {
	imm4_0 := uint32(imm & 0x1f)
	imm11_5 := uint32((imm >> 5) & 0x7f)
	return opcode | (imm4_0 << 7) | (funct3 << 12) | (rs1 << 15) | (rs2 << 20) | (imm11_5 << 25)
}

// B-type: opcode[6:0] | imm[11|4:1] | funct3[14:12] | rs1[19:15] | rs2[24:20] | imm[12|10:5]
func encodeBType(opcode, funct3 uint32, rs1, rs2 uint32, imm int32) uint32 {
	imm11 := uint32((imm >> 11) & 0x1)
	imm4_1 := uint32((imm >> 1) & 0xf)
	imm10_5 := uint32((imm >> 5) & 0x3f)
	imm12 := uint32((imm >> 12) & 0x1)
	return opcode | (imm11 << 7) | (imm4_1 << 8) | (funct3 << 12) | (rs1 << 15) | (rs2 << 20) | (imm10_5 << 25) | (imm12 << 31)
}

// U-type: opcode[6:0] | rd[11:7] | imm[31:12]
func encodeUType(opcode uint32, rd uint32, imm uint32) uint32 {
	return opcode | (rd << 7) | (imm & 0xfffff000)
}

// J-type: opcode[6:0] | rd[11:7] | imm[19:12|11|10:1|20]
func encodeJType(opcode uint32, rd uint32, imm int32) uint32 {
	imm19_12 := uint32((imm >> 12) & 0xff)
	imm11 := uint32((imm >> 11) & 0x1)
	imm10_1 := uint32((imm >> 1) & 0x3ff)
	imm20 := uint32((imm >> 20) & 0x1)
	return opcode | (rd << 7) | (imm19_12 << 12) | (imm11 << 20) | (imm10_1 << 21) | (imm20 << 31)
}

// CJ-type: funct3[15:13] | imm[11|4|9:8|10|6|7|3:1|5] | op[1:0]
func encodeCJType(funct3, op uint16, imm int32) uint16 {
	b := func(n uint) uint16 { return uint16(imm>>n) & 1 }
	return funct3<<13 | b(11)<<12 | b(4)<<11 | b(9)<<10 | b(8)<<9 | b(10)<<8 |
		b(6)<<7 | b(7)<<6 | b(3)<<5 | b(2)<<4 | b(1)<<3 | b(5)<<2 | op
}

// CB-type: funct3[15:13] | imm[8|4:3] | rs1'[9:7] | imm[7:6|2:1|5] | op[1:0]
func encodeCBType(funct3, op uint16, rs1 uint16, imm int32) uint16 {
	b := func(n uint) uint16 { return uint16(imm>>n) & 1 }
	return funct3<<13 | b(8)<<12 | b(4)<<11 | b(3)<<10 | rs1<<7 |
		b(7)<<6 | b(6)<<5 | b(2)<<4 | b(1)<<3 | b(5)<<2 | op
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func le16(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}
