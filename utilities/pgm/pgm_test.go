package pgm_test

import (
	"testing"

	"github.com/sdfat/sdfat"
	"github.com/sdfat/sdfat/driver"
	"github.com/sdfat/sdfat/drivers/fat32"
	sdfattest "github.com/sdfat/sdfat/testing"
	"github.com/sdfat/sdfat/utilities/pgm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	image, err := pgm.Encode(3, 2, []byte{0, 1, 2, 253, 254, 255})
	require.NoError(t, err)
	assert.Equal(t, "P5\n3 2\n255\n\x00\x01\x02\xfd\xfe\xff", string(image))
}

func TestEncode__BadArguments(t *testing.T) {
	_, err := pgm.Encode(0, 5, nil)
	assert.ErrorIs(t, err, sdfat.ErrInvalidArgument)

	_, err = pgm.Encode(2, 2, []byte{1, 2, 3})
	assert.ErrorIs(t, err, sdfat.ErrInvalidArgument)
}

func TestMandelbrot(t *testing.T) {
	pixels, err := pgm.Mandelbrot(64, 50)
	require.NoError(t, err)
	require.Len(t, pixels, 64*64)

	// Near (0, 0) is in the set; (-2, -1.5) escapes after one iteration.
	assert.EqualValues(t, pgm.MaxGray, pixels[32*64+42])
	assert.EqualValues(t, 1*(pgm.MaxGray-1)/50, pixels[0])
}

func TestMandelbrot__BadArguments(t *testing.T) {
	for _, size := range []int{0, -1, -100000} {
		pixels, err := pgm.Mandelbrot(size, 10)
		assert.ErrorIsf(t, err, sdfat.ErrInvalidArgument, "size %d", size)
		assert.Nil(t, pixels)
	}

	_, err := pgm.Mandelbrot(16, 0)
	assert.ErrorIs(t, err, sdfat.ErrInvalidArgument)

	_, err = pgm.Mandelbrot(pgm.MaxMandelbrotSize+1, 10)
	assert.ErrorIs(t, err, sdfat.ErrArgumentOutOfRange)
}

func TestMandelbrot__WrittenToVolume(t *testing.T) {
	volume, _ := sdfattest.MountNewVolume(t, 2048, fat32.FormatOptions{})
	fs := driver.New(volume)

	const size = 128
	pixels, err := pgm.Mandelbrot(size, 32)
	require.NoError(t, err)
	image, err := pgm.Encode(size, size, pixels)
	require.NoError(t, err)
	require.NoError(t, fs.WriteFile("/OUTPUT.PGM", image))

	readBack, err := fs.ReadFile("/output.pgm")
	require.NoError(t, err)
	assert.Equal(t, image, readBack)
}
