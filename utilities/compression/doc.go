// Package compression packs FAT32 volume images for storage as test fixtures.
//
// A freshly formatted volume is almost entirely zeros: the FATs are mostly
// free entries and the data region is untouched. Images are first run-length
// encoded with RLE8 and the result is then gzipped.
//
// RLE8 is the scheme used by BMP files. A byte that occurs N >= 2 times in a
// row is written twice, followed by a count byte holding N - 2:
//
//	WXXXXXXXXXXXXXXXYZZ
//	W XX 13 Y ZZ 0
//
// One group covers at most 257 bytes, so longer runs are split into several
// groups. A 300-byte run of X becomes `XX 255 XX 41`.
package compression
