// Package iqfile reads and writes I/Q sample files.
//
// Supported layouts are cu8 (interleaved unsigned 8-bit, as written by rtl_sdr), cf32 (interleaved little-endian
// float32, the layout of a GNU Radio complex file sink) and 16-bit stereo WAV with I on the left channel.
package iqfile

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Format of an I/Q file.
type Format string

// All file formats.
const (
	CU8  Format = "cu8"
	CF32 Format = "cf32"
	WAV  Format = "wav"
)

// BytesPerSample returns the size of one complex sample in a raw file, 0 for WAV.
func (f Format) BytesPerSample() int {
	switch f {
	case CU8:
		return 2
	case CF32:
		return 8
	default:
		return 0
	}
}

// ParseFormat returns the format with the given name.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case CU8:
		return CU8, nil
	case CF32, "raw":
		return CF32, nil
	case WAV:
		return WAV, nil
	default:
		return "", errors.Errorf("unknown I/Q file format %q", name)
	}
}

// FormatByName guesses the format from the extension of the given file name. Unknown extensions are treated as cf32.
func FormatByName(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return WAV
	case ".cu8", ".u8", ".bin":
		return CU8
	default:
		return CF32
	}
}

// DecodeCU8 converts interleaved unsigned 8-bit I/Q pairs to complex samples in [-1, 1].
func DecodeCU8(data []byte) []complex128 {
	result := make([]complex128, len(data)/2)
	for i := range result {
		iSample := normalizeSampleUint8(data[2*i])
		qSample := normalizeSampleUint8(data[2*i+1])
		result[i] = complex(iSample, qSample)
	}
	return result
}

func normalizeSampleUint8(s byte) float64 {
	return (float64(s) - 127.5) / 127.5
}

// DecodeCF32 converts interleaved little-endian float32 I/Q pairs to complex samples.
func DecodeCF32(data []byte) []complex128 {
	result := make([]complex128, len(data)/8)
	for i := range result {
		re := math.Float32frombits(binary.LittleEndian.Uint32(data[8*i:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(data[8*i+4:]))
		result[i] = complex(float64(re), float64(im))
	}
	return result
}

// EncodeCF32 appends the given samples as interleaved little-endian float32 I/Q pairs to buf.
func EncodeCF32(buf []byte, samples []complex128) []byte {
	var element [8]byte
	for _, s := range samples {
		binary.LittleEndian.PutUint32(element[0:], math.Float32bits(float32(real(s))))
		binary.LittleEndian.PutUint32(element[4:], math.Float32bits(float32(imag(s))))
		buf = append(buf, element[:]...)
	}
	return buf
}

// toPCM16 scales a sample in [-1, 1] to a signed 16-bit value, clipping everything beyond full scale.
func toPCM16(v float64) int {
	scaled := math.Round(v * math.MaxInt16)
	if scaled > math.MaxInt16 {
		return math.MaxInt16
	}
	if scaled < -math.MaxInt16 {
		return -math.MaxInt16
	}
	return int(scaled)
}
