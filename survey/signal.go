package survey

import "fmt"

// Validate rejects platform reads that cannot back a measurement.
// A zero RSSI is treated as absent; real readings are always negative dBm.
func (w *WifiInfo) Validate() error {
	if w.Error != "" {
		return &SignalError{Reason: w.Error}
	}
	if w.RSSI == nil || *w.RSSI == 0 {
		return &SignalError{Reason: "No RSSI value found in WiFi information"}
	}
	if *w.RSSI > 0 {
		return &SignalError{Reason: fmt.Sprintf("invalid RSSI value %d dBm", *w.RSSI)}
	}
	return nil
}
