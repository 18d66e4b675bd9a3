// Package pdu implements the LLCP control-PDU wire codec (§4.2, §6): a
// little-endian, byte-packed framing distinct from XDR (which is always
// big-endian and 4-byte aligned, and so cannot represent this wire format —
// see DESIGN.md). Each variant has an Encode and a Decode function; Encode
// populates a zeroed PDU buffer with the fixed header (LL-ID, length,
// opcode) and the variant's little-endian payload.
package pdu

import "encoding/binary"

// LLID identifies the logical link a PDU belongs to on the air interface.
// This engine only ever produces and consumes control PDUs.
type LLID uint8

// LLIDControl is the LL-ID value for an LLCP control PDU.
const LLIDControl LLID = 0x03

// Opcode identifies a control PDU's kind, per the Bluetooth Core LL Control
// opcode table (§6 "Opcode table").
type Opcode uint8

const (
	OpcodeUnknownRsp   Opcode = 0x07
	OpcodeFeatureReq   Opcode = 0x08
	OpcodeFeatureRsp   Opcode = 0x09
	OpcodeVersionInd   Opcode = 0x0C
	OpcodeRejectInd    Opcode = 0x0D
	OpcodeRejectExtInd Opcode = 0x11
)

// MaxPDULength is the largest buffer this engine ever encodes into: 2
// header octets (LL-ID, length) plus 1 opcode octet plus up to 8 payload
// octets (feature-exchange's 8-octet feature bitmask, the largest
// payload this module defines).
const MaxPDULength = 11

// Buffer is a fixed-size control-PDU buffer, the element type of the TX and
// notification pools (§3 "Pools"). Len is the number of valid bytes in Data.
type Buffer struct {
	Data [MaxPDULength]byte
	Len  int
}

// Bytes returns the valid portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.Data[:b.Len]
}

// IsErrorOpcode reports whether opcode is one of the peer-error opcodes
// (§6 "expected peer-error opcodes"): LL_UNKNOWN_RSP, LL_REJECT_IND, or
// LL_REJECT_EXT_IND.
func IsErrorOpcode(opcode Opcode) bool {
	switch opcode {
	case OpcodeUnknownRsp, OpcodeRejectInd, OpcodeRejectExtInd:
		return true
	default:
		return false
	}
}

// writeHeader writes the LL-ID, length, and opcode octets into buf and
// returns the offset payload bytes should start at.
func writeHeader(buf *Buffer, payloadLen uint8, opcode Opcode) int {
	buf.Data[0] = byte(LLIDControl)
	buf.Data[1] = payloadLen
	buf.Data[2] = byte(opcode)
	buf.Len = 3 + int(payloadLen)
	return 3
}

// readHeader validates the fixed header and returns (opcode, payload, ok).
func readHeader(data []byte) (Opcode, []byte, bool) {
	if len(data) < 3 {
		return 0, nil, false
	}
	if LLID(data[0]) != LLIDControl {
		return 0, nil, false
	}
	payloadLen := int(data[1])
	if len(data) != 3+payloadLen {
		return 0, nil, false
	}
	return Opcode(data[2]), data[3:], true
}

// ============================================================================
// Version Exchange (LL_VERSION_IND) — §4.2, §6
// ============================================================================

// VersionExchangePayload carries the decoded fields of an LL_VERSION_IND:
// version_number (one octet, host byte order), company_id (two octets,
// little-endian), sub_version_number (two octets, little-endian) (§4.2).
type VersionExchangePayload struct {
	Version    uint8
	CompanyID  uint16
	SubVersion uint16
}

// versionExchangePayloadLen is the payload length field's value: the Core
// spec's Length octet, as used in this codec, counts bytes after the
// opcode (§6's length=5 example), not opcode-inclusive.
const versionExchangePayloadLen = 5

// EncodeVersionInd populates buf with a complete LL_VERSION_IND PDU.
func EncodeVersionInd(buf *Buffer, p VersionExchangePayload) {
	off := writeHeader(buf, versionExchangePayloadLen, OpcodeVersionInd)
	buf.Data[off] = p.Version
	binary.LittleEndian.PutUint16(buf.Data[off+1:], p.CompanyID)
	binary.LittleEndian.PutUint16(buf.Data[off+3:], p.SubVersion)
}

// DecodeVersionInd parses an LL_VERSION_IND PDU's wire bytes.
func DecodeVersionInd(data []byte) (VersionExchangePayload, bool) {
	opcode, payload, ok := readHeader(data)
	if !ok || opcode != OpcodeVersionInd || len(payload) != versionExchangePayloadLen {
		return VersionExchangePayload{}, false
	}

	return VersionExchangePayload{
		Version:    payload[0],
		CompanyID:  binary.LittleEndian.Uint16(payload[1:3]),
		SubVersion: binary.LittleEndian.Uint16(payload[3:5]),
	}, true
}

// ============================================================================
// Feature Exchange (LL_FEATURE_REQ / LL_FEATURE_RSP)
// ============================================================================

// FeatureExchangePayload carries the decoded feature set: an 8-octet
// little-endian bitmask of supported link-layer features.
type FeatureExchangePayload struct {
	Features uint64
}

const featureExchangePayloadLen = 8

// EncodeFeatureReq populates buf with a complete LL_FEATURE_REQ PDU.
func EncodeFeatureReq(buf *Buffer, p FeatureExchangePayload) {
	encodeFeaturePDU(buf, OpcodeFeatureReq, p)
}

// EncodeFeatureRsp populates buf with a complete LL_FEATURE_RSP PDU.
func EncodeFeatureRsp(buf *Buffer, p FeatureExchangePayload) {
	encodeFeaturePDU(buf, OpcodeFeatureRsp, p)
}

func encodeFeaturePDU(buf *Buffer, opcode Opcode, p FeatureExchangePayload) {
	off := writeHeader(buf, featureExchangePayloadLen, opcode)
	binary.LittleEndian.PutUint64(buf.Data[off:], p.Features)
}

// DecodeFeaturePDU parses an LL_FEATURE_REQ or LL_FEATURE_RSP PDU's wire
// bytes, returning the opcode actually present so the caller can tell
// request from response.
func DecodeFeaturePDU(data []byte) (Opcode, FeatureExchangePayload, bool) {
	opcode, payload, ok := readHeader(data)
	if !ok || len(payload) != featureExchangePayloadLen {
		return 0, FeatureExchangePayload{}, false
	}
	if opcode != OpcodeFeatureReq && opcode != OpcodeFeatureRsp {
		return 0, FeatureExchangePayload{}, false
	}

	return opcode, FeatureExchangePayload{
		Features: binary.LittleEndian.Uint64(payload),
	}, true
}

// ============================================================================
// Peek helpers for RX dispatch (§4.7)
// ============================================================================

// PeekOpcode extracts the opcode from raw wire bytes without fully
// decoding the payload, for use by the RX dispatcher's routing decision.
func PeekOpcode(data []byte) (Opcode, bool) {
	opcode, _, ok := readHeader(data)
	return opcode, ok
}
