package fat32

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sdfat/sdfat"
)

const (
	freeMarker      = 0xE5
	endMarker       = 0x00
	escapedE5Marker = 0x05
)

var dotName = [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
var dotDotName = [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}

// validShortChar reports whether a character may appear in an 8.3 name once
// it has been converted to uppercase.
func validShortChar(char rune) bool {
	if char >= 'A' && char <= 'Z' {
		return true
	}
	if char >= '0' && char <= '9' {
		return true
	}
	return strings.ContainsRune("_^$~!#%&-{}()@'`", char)
}

// EncodeShortName converts a name like "readme.txt" into its 11-byte on-disk
// form, "README  TXT". Lowercase letters are folded to uppercase.
//
// Names that can't be stored as 8.3 fail with [sdfat.ErrInvalidArgument], or
// [sdfat.ErrNameTooLong] if one of the two parts is too long.
func EncodeShortName(name string) ([11]byte, error) {
	var raw [11]byte

	if name == "" || name == "." || name == ".." {
		return raw, sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q can't be used as a file name", name))
	}

	// Some non-ASCII letters uppercase to ASCII ones, e.g. U+0131 to 'I'.
	for i := 0; i < len(name); i++ {
		if name[i] >= utf8.RuneSelf {
			return raw, sdfat.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("%q contains non-ASCII characters", name))
		}
	}

	upper := strings.ToUpper(name)
	stem, extension, hasDot := strings.Cut(upper, ".")
	if hasDot && strings.Contains(extension, ".") {
		return raw, sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q has more than one dot", name))
	}
	if stem == "" {
		return raw, sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q has no name before the extension", name))
	}
	if hasDot && extension == "" {
		return raw, sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q has an empty extension", name))
	}
	if len(stem) > 8 || len(extension) > 3 {
		return raw, sdfat.ErrNameTooLong.WithMessage(
			fmt.Sprintf("%q doesn't fit in 8.3 format", name))
	}

	for _, char := range stem + extension {
		if !validShortChar(char) {
			return raw, sdfat.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("%q contains invalid character %q", name, char))
		}
	}

	copy(raw[:], bytes.Repeat([]byte{' '}, 11))
	copy(raw[0:8], stem)
	copy(raw[8:11], extension)
	return raw, nil
}

// encodeLookupName is like EncodeShortName, except that it also accepts "."
// and "..". The second return value is false if `name` can't exist on disk.
func encodeLookupName(name string) ([11]byte, bool) {
	switch name {
	case ".":
		return dotName, true
	case "..":
		return dotDotName, true
	}
	raw, err := EncodeShortName(name)
	return raw, err == nil
}

// DecodeShortName converts an 11-byte on-disk name into its display form.
func DecodeShortName(raw [11]byte) string {
	stemBytes := make([]byte, 8)
	copy(stemBytes, raw[0:8])
	if stemBytes[0] == escapedE5Marker {
		stemBytes[0] = freeMarker
	}

	stem := strings.TrimRight(string(stemBytes), " ")
	extension := strings.TrimRight(string(raw[8:11]), " ")
	if extension == "" {
		return stem
	}
	return stem + "." + extension
}
