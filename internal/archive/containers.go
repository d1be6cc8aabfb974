package archive

import (
	"fmt"

	"github.com/hannahherbig/2dxrender/internal/binfmt"
)

const (
	magicS3P      = "S3P0"
	magicS3V      = "S3V0"
	magic2DX      = "2DX9"
	s3pTableStart = 8
	twoDXCountAt  = 0x14
	twoDXTableAt  = 0x48
)

type rawEntry struct {
	name  string
	data  []byte
	codec Codec
}

// readEntryPayload reads a "<magic> dataOffset dataSize" entry header at
// offset and returns the payload it points to.
func readEntryPayload(c *binfmt.Cursor, offset int64, magic string) ([]byte, error) {
	if err := c.Seek(offset); err != nil {
		return nil, err
	}
	if err := c.Magic(magic); err != nil {
		return nil, err
	}
	dataOffset, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	dataSize, err := c.Int32()
	if err != nil {
		return nil, err
	}
	if dataSize < 0 {
		return nil, binfmt.Errorf(c.Path(), offset+8, "negative data size %d", dataSize)
	}
	if err := c.Seek(offset + int64(dataOffset)); err != nil {
		return nil, err
	}
	return c.Bytes(int64(dataSize))
}

// readS3P parses an S3P0 container: entry count at 4, (offset, size) pairs
// from byte 8, each entry an S3V0 header in front of WMA data.
func readS3P(c *binfmt.Cursor) ([]rawEntry, error) {
	if err := c.Magic(magicS3P); err != nil {
		return nil, err
	}
	count, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	entries := make([]rawEntry, 0, min(int64(count), c.Len()/8))
	for i := int64(0); i < int64(count); i++ {
		if err := c.Seek(s3pTableStart + i*8); err != nil {
			return nil, err
		}
		offset, err := c.Uint32()
		if err != nil {
			return nil, err
		}
		if _, err := c.Int32(); err != nil {
			return nil, err
		}
		data, err := readEntryPayload(c, int64(offset), magicS3V)
		if err != nil {
			return nil, err
		}
		entries = append(entries, rawEntry{
			name:  fmt.Sprintf("%04d.wma", i+1),
			data:  data,
			codec: CodecWMA,
		})
	}
	return entries, nil
}

// read2DX parses a .2dx container: entry count at 0x14, absolute entry
// offsets from 0x48, each entry a 2DX9 header in front of RIFF data.
func read2DX(c *binfmt.Cursor) ([]rawEntry, error) {
	if err := c.Seek(twoDXCountAt); err != nil {
		return nil, err
	}
	count, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	entries := make([]rawEntry, 0, min(int64(count), c.Len()/4))
	for i := int64(0); i < int64(count); i++ {
		if err := c.Seek(twoDXTableAt + i*4); err != nil {
			return nil, err
		}
		offset, err := c.Uint32()
		if err != nil {
			return nil, err
		}
		data, err := readEntryPayload(c, int64(offset), magic2DX)
		if err != nil {
			return nil, err
		}
		entries = append(entries, rawEntry{
			name:  fmt.Sprintf("%04d.wav", i+1),
			data:  data,
			codec: CodecWAV,
		})
	}
	return entries, nil
}
