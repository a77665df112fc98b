package fat32

import (
	"testing"

	"github.com/sdfat/sdfat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawName(s string) [11]byte {
	var name [11]byte
	copy(name[:], s)
	return name
}

func TestEncodeShortName__Valid(t *testing.T) {
	cases := map[string]string{
		"readme.txt":   "README  TXT",
		"README.TXT":   "README  TXT",
		"a":            "A          ",
		"kernel8.img":  "KERNEL8 IMG",
		"12345678.123": "12345678123",
		"~tmp_1.$$$":   "~TMP_1  $$$",
		"dir":          "DIR        ",
	}

	for input, expected := range cases {
		encoded, err := EncodeShortName(input)
		require.NoErrorf(t, err, "failed to encode %q", input)
		assert.Equalf(t, rawName(expected), encoded, "wrong encoding for %q", input)
	}
}

func TestEncodeShortName__TooLong(t *testing.T) {
	for _, input := range []string{"toolongname.txt", "file.text", "123456789"} {
		_, err := EncodeShortName(input)
		assert.ErrorIsf(t, err, sdfat.ErrNameTooLong, "%q was accepted", input)
	}
}

func TestEncodeShortName__Invalid(t *testing.T) {
	inputs := []string{
		"", ".", "..", "a.b.c", ".hidden", "trailing.", "a b", "star*", "q?", "a/b", "ümlaut",
	}
	for _, input := range inputs {
		_, err := EncodeShortName(input)
		assert.ErrorIsf(t, err, sdfat.ErrInvalidArgument, "%q was accepted", input)
	}
}

func TestEncodeShortName__NonASCIIFoldingToASCII(t *testing.T) {
	// Both uppercase to ASCII letters, which must not make them valid.
	for _, input := range []string{"\u0131d.txt", "\u017Fys", "f\u0131le.b\u0131n", "\u0131\u0131\u0131\u0131\u0131\u0131"} {
		_, err := EncodeShortName(input)
		assert.ErrorIsf(t, err, sdfat.ErrInvalidArgument, "%q was accepted", input)
		assert.NotErrorIsf(t, err, sdfat.ErrNameTooLong, "%q", input)

		_, ok := encodeLookupName(input)
		assert.Falsef(t, ok, "%q can be looked up", input)
	}
}

func TestEncodeLookupName__DotEntries(t *testing.T) {
	name, ok := encodeLookupName(".")
	assert.True(t, ok)
	assert.Equal(t, dotName, name)

	name, ok = encodeLookupName("..")
	assert.True(t, ok)
	assert.Equal(t, dotDotName, name)

	_, ok = encodeLookupName("not valid")
	assert.False(t, ok)
}

func TestDecodeShortName(t *testing.T) {
	assert.Equal(t, "README.TXT", DecodeShortName(rawName("README  TXT")))
	assert.Equal(t, "DIR", DecodeShortName(rawName("DIR        ")))
	assert.Equal(t, ".", DecodeShortName(dotName))
	assert.Equal(t, "..", DecodeShortName(dotDotName))
	assert.Equal(t, "12345678.123", DecodeShortName(rawName("12345678123")))
}

func TestDecodeShortName__EscapedE5(t *testing.T) {
	raw := rawName("\x05ABC    TXT")
	assert.Equal(t, "\xe5ABC.TXT", DecodeShortName(raw))
	assert.EqualValues(t, escapedE5Marker, raw[0], "decoding must not change the input")
}
