package wire

import (
	"errors"
	"fmt"
)

// Long strings are encoded as a length-prefixed chunk list:
//
//	word 0:   number of full chunks
//	word 1..n: full chunks, 31 bytes each, right-aligned
//	word n+1: trailing partial chunk, right-aligned
//	word n+2: byte length of the partial chunk (0..30)
//
// The word count therefore always equals chunk count + 3.

const chunkSize = 31

var ErrMalformedByteArray = errors.New("malformed byte array")

// DecodeByteArray reassembles a chunked string payload and validates the
// declared chunk bookkeeping against the actual word count.
func DecodeByteArray(words []Word) (string, error) {
	if len(words) < 3 {
		return "", fmt.Errorf("%w: need at least 3 words, got %v", ErrMalformedByteArray, len(words))
	}

	chunkCount := WordToUint64(words[0])
	if chunkCount != uint64(len(words))-3 {
		return "", fmt.Errorf("%w: declared %v chunks but got %v chunk words", ErrMalformedByteArray, chunkCount, len(words)-3)
	}

	pendingLen := WordToUint64(words[len(words)-1])
	if pendingLen >= chunkSize {
		return "", fmt.Errorf("%w: pending chunk length %v exceeds chunk size", ErrMalformedByteArray, pendingLen)
	}

	buf := make([]byte, 0, chunkCount*chunkSize+pendingLen)
	for idx := uint64(0); idx < chunkCount; idx++ {
		chunk := words[idx+1]
		if chunk[0] != 0 {
			return "", fmt.Errorf("%w: chunk %v overflows %v bytes", ErrMalformedByteArray, idx, chunkSize)
		}
		buf = append(buf, chunk[32-chunkSize:]...)
	}

	pending := words[len(words)-2]
	for i := 0; i < 32-int(pendingLen); i++ {
		if pending[i] != 0 {
			return "", fmt.Errorf("%w: pending chunk longer than declared %v bytes", ErrMalformedByteArray, pendingLen)
		}
	}
	buf = append(buf, pending[32-pendingLen:]...)

	return string(buf), nil
}

// EncodeByteArray produces the chunked wire encoding of a string.
func EncodeByteArray(s string) []Word {
	raw := []byte(s)
	chunkCount := len(raw) / chunkSize
	pendingLen := len(raw) % chunkSize

	words := make([]Word, 0, chunkCount+3)
	words = append(words, WordFromUint64(uint64(chunkCount)))

	for idx := 0; idx < chunkCount; idx++ {
		var chunk Word
		copy(chunk[32-chunkSize:], raw[idx*chunkSize:(idx+1)*chunkSize])
		words = append(words, chunk)
	}

	var pending Word
	copy(pending[32-pendingLen:], raw[chunkCount*chunkSize:])
	words = append(words, pending, WordFromUint64(uint64(pendingLen)))

	return words
}
