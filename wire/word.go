package wire

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Word is one fixed-width scalar as delivered on the wire: a 32 byte
// big-endian field element. Event keys and data are ordered lists of words.
type Word [32]byte

// MaxUint256 is the clamp target for out-of-range limb pairs.
var MaxUint256 = new(uint256.Int).SetAllOne()

func WordFromHex(s string) (Word, error) {
	var w Word
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return w, fmt.Errorf("invalid word hex: %v", err)
	}
	if len(raw) > 32 {
		return w, fmt.Errorf("word too long: %v bytes", len(raw))
	}
	copy(w[32-len(raw):], raw)
	return w, nil
}

func WordFromUint64(v uint64) Word {
	var w Word
	w[24] = byte(v >> 56)
	w[25] = byte(v >> 48)
	w[26] = byte(v >> 40)
	w[27] = byte(v >> 32)
	w[28] = byte(v >> 24)
	w[29] = byte(v >> 16)
	w[30] = byte(v >> 8)
	w[31] = byte(v)
	return w
}

func WordFromAddress(addr common.Address) Word {
	var w Word
	copy(w[12:], addr[:])
	return w
}

func WordFromUint256(v *uint256.Int) Word {
	return Word(v.Bytes32())
}

func (w Word) Hex() string {
	return "0x" + hex.EncodeToString(w[:])
}

func (w Word) IsZero() bool {
	return w == Word{}
}

// WordToAddress interprets a word as an address. The upper 12 bytes must be
// zero, everything else indicates a misdecoded payload.
func WordToAddress(w Word) (common.Address, error) {
	var zero [12]byte
	if !bytes.Equal(w[:12], zero[:]) {
		return common.Address{}, fmt.Errorf("word %v is not a valid address", w.Hex())
	}
	return common.BytesToAddress(w[12:]), nil
}

// WordToUint64 interprets a word as a small integer. Values above the uint64
// range return max uint64 rather than wrapping.
func WordToUint64(w Word) uint64 {
	for i := 0; i < 24; i++ {
		if w[i] != 0 {
			return ^uint64(0)
		}
	}
	var v uint64
	for i := 24; i < 32; i++ {
		v = v<<8 | uint64(w[i])
	}
	return v
}

// WordsToUint256 composes a 256 bit integer from two 128 bit limbs:
// low + high * 2^128. A limb with a nonzero upper half is out of range;
// malformed upstream data must degrade instead of crashing the consumer,
// so the result clamps to MaxUint256. Callers can detect the clamp by
// comparing against MaxUint256.
func WordsToUint256(low Word, high Word) *uint256.Int {
	if !limbInRange(low) || !limbInRange(high) {
		return new(uint256.Int).Set(MaxUint256)
	}

	result := new(uint256.Int).SetBytes(high[16:])
	result.Lsh(result, 128)
	return result.Or(result, new(uint256.Int).SetBytes(low[16:]))
}

func limbInRange(w Word) bool {
	for i := 0; i < 16; i++ {
		if w[i] != 0 {
			return false
		}
	}
	return true
}

// Uint256ToWords splits a 256 bit integer into its (low, high) limb pair.
func Uint256ToWords(v *uint256.Int) (Word, Word) {
	raw := v.Bytes32()
	var low, high Word
	copy(low[16:], raw[16:])
	copy(high[16:], raw[:16])
	return low, high
}

// WordsToDecimalString renders a raw token amount as a fixed-point decimal
// string, shifted down by the given number of decimals.
func WordsToDecimalString(raw *uint256.Int, decimals int32) string {
	return decimal.NewFromBigInt(raw.ToBig(), -decimals).String()
}

// WordToUtf8 decodes a short inline string: the used bytes are right-aligned
// in the word, leading zero bytes are padding.
func WordToUtf8(w Word) string {
	start := 0
	for start < 32 && w[start] == 0 {
		start++
	}
	return string(w[start:])
}
