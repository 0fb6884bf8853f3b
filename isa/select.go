package isa

import (
	"fmt"
	"strings"
)

// variants maps each generic ".U" mnemonic to its concrete instruction per
// storage class. The set is small and closed.
var variants = map[string][2]string{
	"INC.U":    {Global: "INC.G", Local: "INC.L"},
	"DEC.U":    {Global: "DEC.G", Local: "DEC.L"},
	"LOAD.U.P": {Global: "LOAD.P", Local: "LOAD.L.P"},
	"LOAD.U.S": {Global: "LOAD.S", Local: "LOAD.L.S"},
	"STOR.U.P": {Global: "STOR.P", Local: "STOR.L.P"},
	"STOR.U.S": {Global: "STOR.S", Local: "STOR.L.S"},
	"ADDR.U.P": {Global: "CONST.P", Local: "ADDR.L.P"},
}

// IsGeneric reports whether mnemonic names an auto-selected variant.
func IsGeneric(mnemonic string) bool {
	_, ok := variants[strings.ToUpper(mnemonic)]
	return ok
}

// Select maps a generic mnemonic to the concrete mnemonic for a symbol of
// the given storage class.
func Select(generic string, class StorageClass) (string, error) {
	v, ok := variants[strings.ToUpper(generic)]
	if !ok {
		return "", fmt.Errorf("%w: %q is not a generic mnemonic", ErrUnknownMnemonicOrShape, generic)
	}
	if class != Global && class != Local {
		return "", fmt.Errorf("%w: %s", ErrInvalidOperandKind, class)
	}
	return v[class], nil
}

// Generics returns the generic mnemonics known to Select.
func Generics() []string {
	out := make([]string, 0, len(variants))
	for g := range variants {
		out = append(out, g)
	}
	return out
}
