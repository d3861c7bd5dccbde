package sinks

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
)

const beastEscape = 0x1a

// EncodeBEAST renders a RawFrame in Mode-S Beast binary format: an 0x1a
// frame marker, a type byte (0x32 for 56-bit, 0x33 for 112-bit frames), a
// 6-byte big-endian 12 MHz timestamp, a 1-byte signal level, and the frame
// itself — with every 0x1a byte inside that body doubled so the receiver
// can find the next frame marker unambiguously.
func EncodeBEAST(f adsb.RawFrame) []byte {
	typeByte := byte(0x32)
	if f.Len() == 112 {
		typeByte = 0x33
	}

	body := make([]byte, 0, 1+6+1+len(f.Bits)/8)
	body = append(body, typeByte)
	ts := f.TimestampTicks
	var tsBytes [6]byte
	for i := 5; i >= 0; i-- {
		tsBytes[i] = byte(ts)
		ts >>= 8
	}
	body = append(body, tsBytes[:]...)
	body = append(body, f.SignalLevel)
	body = append(body, f.Bytes()...)

	out := make([]byte, 0, len(body)*2+1)
	out = append(out, beastEscape)
	for _, b := range body {
		out = append(out, b)
		if b == beastEscape {
			out = append(out, beastEscape)
		}
	}
	return out
}

// DecodeBEAST parses one Beast-framed message from the start of data,
// reversing EncodeBEAST: it un-escapes doubled 0x1a bytes, reads the type
// byte to determine the frame length, and splits the remaining body into
// timestamp, signal level and frame bits. It returns the decoded frame, the
// number of bytes of data it consumed, and whether decoding succeeded.
func DecodeBEAST(data []byte) (adsb.RawFrame, int, bool) {
	if len(data) < 2 || data[0] != beastEscape {
		return adsb.RawFrame{}, 0, false
	}

	var bitLen int
	switch data[1] {
	case 0x32:
		bitLen = 56
	case 0x33:
		bitLen = 112
	default:
		return adsb.RawFrame{}, 0, false
	}
	needed := 1 + 6 + 1 + bitLen/8 // type + timestamp + signal + frame bytes

	body := make([]byte, 0, needed)
	i := 1
	for len(body) < needed {
		if i >= len(data) {
			return adsb.RawFrame{}, 0, false
		}
		b := data[i]
		body = append(body, b)
		i++
		if b == beastEscape {
			if i >= len(data) || data[i] != beastEscape {
				return adsb.RawFrame{}, 0, false
			}
			i++
		}
	}

	tsBytes := body[1:7]
	var ts uint64
	for _, b := range tsBytes {
		ts = ts<<8 | uint64(b)
	}
	signalLevel := body[7]
	frameBytes := body[8:]

	bits := make([]byte, bitLen)
	for bi := 0; bi < bitLen; bi++ {
		if frameBytes[bi/8]&(1<<uint(7-bi%8)) != 0 {
			bits[bi] = 1
		}
	}

	return adsb.RawFrame{TimestampTicks: ts, SignalLevel: signalLevel, Bits: bits}, i, true
}

// EncodeRaw renders a RawFrame in the classic "Raw" ASCII format used by
// port 30002: an asterisk, uppercase hex, and a terminating semicolon.
func EncodeRaw(f adsb.RawFrame) []byte {
	return []byte("*" + strings.ToUpper(hex.EncodeToString(f.Bytes())) + ";\n")
}

// EncodeAVR renders a RawFrame in AVR format used by port 30001: an '@'
// line carrying a 12-hex-digit timestamp, followed by the Raw-format line.
func EncodeAVR(f adsb.RawFrame) []byte {
	ts := fmt.Sprintf("%012X", f.TimestampTicks&0xFFFFFFFFFFFF)
	hexStr := strings.ToUpper(hex.EncodeToString(f.Bytes()))
	return []byte("@" + ts + "\n*" + hexStr + ";\n")
}
