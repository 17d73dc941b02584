package radio

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Only the bare minimum is enforced at decode time: device vendors ship all
// sorts of almost-right payloads, so unknown fields are ignored and optional
// fields stay pointers.

var (
	ErrMalformedReport = errors.New("malformed report")
	ErrNoPosition      = errors.New("report has no position")
)

// GNSS is a satellite fix paired with a report or carried in a locate query.
type GNSS struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Bearing   *float64 `json:"bearing,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

// WifiAP is one observed access point.
type WifiAP struct {
	MAC       string   `json:"mac"`
	RSSI      *float64 `json:"rssi,omitempty"`
	SSID      string   `json:"ssid,omitempty"`
	Channel   *int64   `json:"channel,omitempty"`
	Frequency *float64 `json:"frequency,omitempty"`
	SNR       *float64 `json:"snr,omitempty"`
	Bandwidth *float64 `json:"bandwidth,omitempty"`
	Age       *int64   `json:"age,omitempty"`
}

// BluetoothBeacon is one observed bluetooth emitter.
type BluetoothBeacon struct {
	MAC  string   `json:"mac"`
	RSSI *float64 `json:"rssi,omitempty"`
	Name string   `json:"name,omitempty"`
	Age  *int64   `json:"age,omitempty"`
}

// CellBlock partitions cell observations by radio family.
type CellBlock struct {
	GSM   []GSMCell   `json:"gsm,omitempty"`
	WCDMA []WCDMACell `json:"wcdma,omitempty"`
	LTE   []LTECell   `json:"lte,omitempty"`
	NR    []NRCell    `json:"nr,omitempty"`
}

type GSMCell struct {
	MCC   int64    `json:"mcc"`
	MNC   int64    `json:"mnc"`
	LAC   int64    `json:"lac"`
	CI    int64    `json:"ci"`
	RXLEV *float64 `json:"rxlev,omitempty"`
	Age   *int64   `json:"age,omitempty"`
	BSIC  *int64   `json:"bsic,omitempty"`
	ARFCN *int64   `json:"arfcn,omitempty"`
	TA    *float64 `json:"ta,omitempty"`
}

type WCDMACell struct {
	MCC    int64    `json:"mcc"`
	MNC    int64    `json:"mnc"`
	LAC    int64    `json:"lac"`
	CI     int64    `json:"ci"`
	RSCP   *float64 `json:"rscp,omitempty"`
	Age    *int64   `json:"age,omitempty"`
	PSC    *int64   `json:"psc,omitempty"`
	UARFCN *int64   `json:"uarfcn,omitempty"`
}

type LTECell struct {
	MCC    int64    `json:"mcc"`
	MNC    int64    `json:"mnc"`
	TAC    int64    `json:"tac"`
	ECI    int64    `json:"eci"`
	RSRP   *float64 `json:"rsrp,omitempty"`
	Age    *int64   `json:"age,omitempty"`
	RSRQ   *float64 `json:"rsrq,omitempty"`
	PCI    *int64   `json:"pci,omitempty"`
	EARFCN *int64   `json:"earfcn,omitempty"`
	TA     *float64 `json:"ta,omitempty"`
}

type NRCell struct {
	MCC    int64    `json:"mcc"`
	MNC    int64    `json:"mnc"`
	TAC    int64    `json:"tac"`
	NCI    int64    `json:"nci"`
	SSRSRP *float64 `json:"ss_rsrp,omitempty"`
	Age    *int64   `json:"age,omitempty"`
	RSRQ   *float64 `json:"rsrq,omitempty"`
	PCI    *int64   `json:"pci,omitempty"`
	SSBI   *int64   `json:"ssbi,omitempty"`
	ARFCN  *int64   `json:"arfcn,omitempty"`
	// Some clients ship the transposed spelling. Accepted on input, the
	// canonical name is arfcn.
	ARCFN *int64 `json:"arcfn,omitempty"`
}

// Arfcn resolves the transposed arcfn spelling in favor of arfcn.
func (c *NRCell) Arfcn() *int64 {
	if c.ARFCN != nil {
		return c.ARFCN
	}
	return c.ARCFN
}

// Report is one submitted observation item in canonical form. ParseReport
// also accepts the legacy /v2/geosubmit shape and maps it onto these fields.
type Report struct {
	Timestamp int64             `json:"timestamp,omitempty"` // ms since epoch, 0 = server receive time
	DeviceID  string            `json:"device_id,omitempty"`
	GNSS      *GNSS             `json:"gnss,omitempty"`
	Wifi      []WifiAP          `json:"wifi,omitempty"`
	Bluetooth []BluetoothBeacon `json:"bluetooth,omitempty"`
	Cell      *CellBlock        `json:"cell,omitempty"`
}

// legacy /v2/geosubmit item shape (camelCase, flat cell list).
type legacyReport struct {
	Timestamp int64           `json:"timestamp"`
	DeviceID  string          `json:"deviceId"`
	Position  *legacyPosition `json:"position"`
	Wifi      []legacyWifi    `json:"wifiAccessPoints"`
	Bluetooth []legacyBT      `json:"bluetoothBeacons"`
	Cells     []legacyCell    `json:"cellTowers"`
}

type legacyPosition struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
	Altitude  *float64 `json:"altitude"`
	Speed     *float64 `json:"speed"`
	Heading   *float64 `json:"heading"`
}

type legacyWifi struct {
	MAC       string   `json:"macAddress"`
	RSSI      *float64 `json:"signalStrength"`
	SSID      string   `json:"ssid"`
	Channel   *int64   `json:"channel"`
	Frequency *float64 `json:"frequency"`
	SNR       *float64 `json:"signalToNoiseRatio"`
	Age       *int64   `json:"age"`
}

type legacyBT struct {
	MAC  string   `json:"macAddress"`
	RSSI *float64 `json:"signalStrength"`
	Name string   `json:"name"`
	Age  *int64   `json:"age"`
}

type legacyCell struct {
	RadioType string   `json:"radioType"`
	MCC       int64    `json:"mobileCountryCode"`
	MNC       int64    `json:"mobileNetworkCode"`
	Area      int64    `json:"locationAreaCode"`
	CellID    int64    `json:"cellId"`
	PSC       *int64   `json:"primaryScramblingCode"`
	RSSI      *float64 `json:"signalStrength"`
	Age       *int64   `json:"age"`
}

// ParseReport decodes a single report item. Canonical items are recognized by
// their gnss block, legacy geosubmit items by their position block.
func ParseReport(raw []byte) (*Report, error) {
	var probe struct {
		GNSS     json.RawMessage `json:"gnss"`
		Position json.RawMessage `json:"position"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}

	if probe.Position != nil && probe.GNSS == nil {
		var lr legacyReport
		if err := json.Unmarshal(raw, &lr); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
		}
		return lr.canonical(), nil
	}

	// A missing gnss block is legal here: locate queries carry only
	// emitters. Submission paths enforce a position separately.
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	return &r, nil
}

func (lr *legacyReport) canonical() *Report {
	r := &Report{
		Timestamp: lr.Timestamp,
		DeviceID:  lr.DeviceID,
	}
	if lr.Position != nil {
		r.GNSS = &GNSS{
			Latitude:  lr.Position.Latitude,
			Longitude: lr.Position.Longitude,
			Accuracy:  lr.Position.Accuracy,
			Altitude:  lr.Position.Altitude,
			Speed:     lr.Position.Speed,
			Bearing:   lr.Position.Heading,
		}
	}
	for _, w := range lr.Wifi {
		r.Wifi = append(r.Wifi, WifiAP{
			MAC:       w.MAC,
			RSSI:      w.RSSI,
			SSID:      w.SSID,
			Channel:   w.Channel,
			Frequency: w.Frequency,
			SNR:       w.SNR,
			Age:       w.Age,
		})
	}
	for _, b := range lr.Bluetooth {
		r.Bluetooth = append(r.Bluetooth, BluetoothBeacon{MAC: b.MAC, RSSI: b.RSSI, Name: b.Name, Age: b.Age})
	}
	for _, c := range lr.Cells {
		if r.Cell == nil {
			r.Cell = &CellBlock{}
		}
		switch c.RadioType {
		case "gsm":
			r.Cell.GSM = append(r.Cell.GSM, GSMCell{MCC: c.MCC, MNC: c.MNC, LAC: c.Area, CI: c.CellID, RXLEV: c.RSSI, Age: c.Age})
		case "wcdma", "umts":
			r.Cell.WCDMA = append(r.Cell.WCDMA, WCDMACell{MCC: c.MCC, MNC: c.MNC, LAC: c.Area, CI: c.CellID, RSCP: c.RSSI, PSC: c.PSC, Age: c.Age})
		case "lte":
			r.Cell.LTE = append(r.Cell.LTE, LTECell{MCC: c.MCC, MNC: c.MNC, TAC: c.Area, ECI: c.CellID, RSRP: c.RSSI, PCI: c.PSC, Age: c.Age})
		case "nr":
			r.Cell.NR = append(r.Cell.NR, NRCell{MCC: c.MCC, MNC: c.MNC, TAC: c.Area, NCI: c.CellID, SSRSRP: c.RSSI, PCI: c.PSC, Age: c.Age})
		}
		// unknown radio types are skipped, the rest of the report survives
	}
	return r
}

// EmitterCount is the number of emitters listed on the report, before any
// per-emitter validation.
func (r *Report) EmitterCount() int {
	n := len(r.Wifi) + len(r.Bluetooth)
	if r.Cell != nil {
		n += len(r.Cell.GSM) + len(r.Cell.WCDMA) + len(r.Cell.LTE) + len(r.Cell.NR)
	}
	return n
}
