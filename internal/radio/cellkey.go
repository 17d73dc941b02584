package radio

import (
	"errors"
	"math"
)

var ErrInvalidCell = errors.New("invalid cell identity")

// nrTACMax bounds the 5G tracking area code, documented as 24-bit.
const nrTACMax = 1<<24 - 1

func clampPLMN(v int64) int16 {
	if v < 1 {
		return 1
	}
	if v > 999 {
		return 999
	}
	return int16(v)
}

func makeCellKey(radio CellRadio, mcc, mnc, area, cell int64, unit *int64) (CellKey, error) {
	if area < 0 || area > math.MaxInt32 {
		return CellKey{}, ErrInvalidCell
	}
	if radio == RadioNR && area > nrTACMax {
		return CellKey{}, ErrInvalidCell
	}
	if cell < 0 {
		return CellKey{}, ErrInvalidCell
	}
	var u int16
	if unit != nil && *unit >= 0 && *unit <= math.MaxInt16 {
		u = int16(*unit)
	}
	return CellKey{
		Radio:   radio,
		Country: clampPLMN(mcc),
		Network: clampPLMN(mnc),
		Area:    int32(area),
		Cell:    cell,
		Unit:    u,
	}, nil
}

func (c *GSMCell) Key() (CellKey, error) {
	return makeCellKey(RadioGSM, c.MCC, c.MNC, c.LAC, c.CI, nil)
}

func (c *WCDMACell) Key() (CellKey, error) {
	return makeCellKey(RadioWCDMA, c.MCC, c.MNC, c.LAC, c.CI, c.PSC)
}

func (c *LTECell) Key() (CellKey, error) {
	return makeCellKey(RadioLTE, c.MCC, c.MNC, c.TAC, c.ECI, c.PCI)
}

func (c *NRCell) Key() (CellKey, error) {
	return makeCellKey(RadioNR, c.MCC, c.MNC, c.TAC, c.NCI, c.SSBI)
}
