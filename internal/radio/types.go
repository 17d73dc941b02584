// Package radio defines the emitter data model shared by the ingestion,
// aggregation and inference paths: emitter kinds, cell identity tuples, MAC
// normalization and the report wire shapes.
package radio

import "fmt"

// Kind discriminates the three emitter families. Each kind maps to its own
// aggregate table.
type Kind string

const (
	KindWifi      Kind = "wifi"
	KindBluetooth Kind = "bluetooth"
	KindCell      Kind = "cell"
)

// CellRadio is the fixed per-family radio code stored in the cell key.
type CellRadio int16

const (
	RadioGSM   CellRadio = 2
	RadioWCDMA CellRadio = 3
	RadioLTE   CellRadio = 4
	RadioNR    CellRadio = 5
)

func (r CellRadio) String() string {
	switch r {
	case RadioGSM:
		return "gsm"
	case RadioWCDMA:
		return "wcdma"
	case RadioLTE:
		return "lte"
	case RadioNR:
		return "nr"
	}
	return fmt.Sprintf("radio(%d)", int16(r))
}

// CellKey identifies a single cell across all families.
//
// Integer widths match the storage columns: country/network/unit are int2,
// area int4, cell int8.
type CellKey struct {
	Radio   CellRadio
	Country int16 // MCC, clamped to [1, 999]
	Network int16 // MNC, clamped to [1, 999]
	Area    int32 // LAC or TAC
	Cell    int64 // CI, ECI or NCI
	Unit    int16 // PSC, PCI, SSBI or 0
}

func (k CellKey) String() string {
	return fmt.Sprintf("%s:%d_%d_%d_%d_%d", k.Radio, k.Country, k.Network, k.Area, k.Cell, k.Unit)
}

// Observation is one (emitter, measurement) pair derived from a report,
// carrying the report's GNSS truth. Never persisted.
type Observation struct {
	Kind     Kind
	MAC      string  // normalized, wifi/bluetooth only
	Cell     CellKey // cell only
	Strength float64 // dBm
	Lat      float64 // GNSS truth
	Lon      float64
}
