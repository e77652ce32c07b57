// Package usb discovers hot-pluggable USB devices: serial
// microcontrollers (Arduino, ESP32 family) and V4L2 cameras.
//
// Discovery is metadata-only. Classification uses a VID/PID table with
// a keyword fallback on the USB product string, so unrecognised serial
// adapters still surface as generic_serial rather than disappearing.
package usb
