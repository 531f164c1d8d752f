package tag

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Endian selects the byte order used for every scalar in a record.
type Endian uint8

const (
	LittleEndian Endian = iota
	BigEndian
)

// ByteOrder returns the encoding/binary order for e.
func (e Endian) ByteOrder() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (e Endian) String() string {
	if e == BigEndian {
		return "big"
	}
	return "little"
}

// ParseEndian accepts "little", "big", "le" or "be".
func ParseEndian(s string) (Endian, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "little", "le":
		return LittleEndian, nil
	case "big", "be":
		return BigEndian, nil
	}
	return LittleEndian, fmt.Errorf("unknown endianness %q", s)
}
