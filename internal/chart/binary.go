package chart

import (
	"github.com/hannahherbig/2dxrender/internal/binfmt"
)

// Binary chart commands.
const (
	cmdKeyP1        = 0
	cmdKeyP2        = 1
	cmdLoadSampleP1 = 2
	cmdLoadSampleP2 = 3
	cmdEnd          = 6
	cmdBgmNote      = 7

	endOfChart = 0x7FFFFFFF
	recordSize = 8
)

// DecodeBinary decodes chart chartID of a .1 file. The file starts with a
// directory of (offset, size) pairs; the chart is a list of 8-byte records
// ending at the first record whose offset is 0x7FFFFFFF.
func (d *Decoder) DecodeBinary(path string, data []byte, chartID int) (*Timeline, error) {
	if err := ValidateChartID(chartID); err != nil {
		return nil, err
	}
	c := binfmt.NewCursor(path, data)
	if err := c.Seek(int64(chartID) * 8); err != nil {
		return nil, &ChartNotFoundError{Path: path, ID: chartID}
	}
	start, err1 := c.Uint32()
	size, err2 := c.Int32()
	if err1 != nil || err2 != nil || start == 0 || size <= 0 || int64(start) >= c.Len() {
		return nil, &ChartNotFoundError{Path: path, ID: chartID}
	}
	if err := c.Seek(int64(start)); err != nil {
		return nil, err
	}

	ctx := d.newContext(path)
	for {
		at := c.Pos()
		if c.Len()-at < recordSize {
			return nil, binfmt.Errorf(path, at, "chart %d has no end-of-chart record", chartID)
		}
		offset, _ := c.Int32()
		command, _ := c.Uint8()
		param, _ := c.Uint8()
		value, _ := c.Int16()

		if offset == endOfChart {
			break
		}

		var err error
		switch command {
		case cmdKeyP1, cmdKeyP2:
			err = ctx.note(int(offset), int(command-cmdKeyP1), int(param), int(value))
		case cmdLoadSampleP1, cmdLoadSampleP2:
			err = ctx.rebind(int(offset), int(command-cmdLoadSampleP1), int(param), int(value))
		case cmdBgmNote:
			err = ctx.ambient(int(offset), int(value))
		case cmdEnd:
			err = ctx.end(int(offset), int(param))
		}
		if err != nil {
			return nil, err
		}
	}
	return ctx.finish(d.log), nil
}
