// Package utils provides small byte and string helpers shared by the framing
// engine, the sinks and the line client.
package utils

import (
	"bytes"
	"strings"
)

// JoinBytes concatenates the given byte slices into a newly allocated slice.
// The result never aliases any of the inputs.
//
// Parameters:
//   - s: Zero or more byte slices to concatenate
//
// Returns:
//   - A new byte slice containing all input slices in order
func JoinBytes(s ...[]byte) []byte {
	n := 0
	for _, v := range s {
		n += len(v)
	}

	b, i := make([]byte, n), 0
	for _, v := range s {
		i += copy(b[i:], v)
	}

	return b
}

// SplitDelimited splits data on delim and returns every complete segment
// (delimiter excluded) followed by the trailing bytes after the last
// delimiter. The returned segments alias data.
//
// Parameters:
//   - data: The bytes to split
//   - delim: The delimiter byte
//
// Returns:
//   - The complete segments in order
//   - The unterminated remainder, possibly empty
func SplitDelimited(data []byte, delim byte) ([][]byte, []byte) {
	var segments [][]byte
	for {
		i := bytes.IndexByte(data, delim)
		if i < 0 {
			return segments, data
		}

		segments = append(segments, data[:i])
		data = data[i+1:]
	}
}

// TrimMessage strips leading and trailing whitespace and control bytes
// (including a stray '\r' from CRLF clients) from a received message.
func TrimMessage(msg string) string {
	return strings.TrimFunc(msg, func(r rune) bool {
		return r <= ' '
	})
}
