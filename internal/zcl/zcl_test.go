package zcl

import (
	"bytes"
	"testing"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Frame
		wantErr bool
	}{
		{
			name: "global",
			data: []byte{0x18, 0x2A, 0x0A, 0x01, 0x02},
			want: Frame{Control: 0x18, TransactionID: 0x2A, CommandID: 0x0A, Payload: []byte{0x01, 0x02}},
		},
		{
			name: "manufacturer specific",
			data: []byte{0x1C, 0x5F, 0x11, 0x33, 0x0A, 0xF7},
			want: Frame{Control: 0x1C, ManufacturerCode: 0x115F, TransactionID: 0x33, CommandID: 0x0A, Payload: []byte{0xF7}},
		},
		{
			name: "cluster specific empty payload",
			data: []byte{0x11, 0x01, 0x00},
			want: Frame{Control: 0x11, TransactionID: 0x01, CommandID: 0x00, Payload: []byte{}},
		},
		{name: "too short", data: []byte{0x00, 0x01}, wantErr: true},
		{name: "manufacturer too short", data: []byte{0x04, 0x5F, 0x11, 0x33}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ParseFrame(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got frame %+v", frame)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if frame.Control != tt.want.Control ||
				frame.ManufacturerCode != tt.want.ManufacturerCode ||
				frame.TransactionID != tt.want.TransactionID ||
				frame.CommandID != tt.want.CommandID ||
				!bytes.Equal(frame.Payload, tt.want.Payload) {
				t.Errorf("got %+v, want %+v", frame, tt.want)
			}
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	frames := []Frame{
		{Control: 0x11, TransactionID: 0x01, CommandID: 0x06, Payload: []byte{0x42}},
		{Control: 0x04, ManufacturerCode: 0x1037, TransactionID: 0xFF, CommandID: 0x00, Payload: []byte{0x01, 0x00}},
		{Control: 0x18, TransactionID: 0x00, CommandID: 0x0B, Payload: nil},
	}

	for _, f := range frames {
		parsed, err := ParseFrame(f.Marshal())
		if err != nil {
			t.Fatalf("ParseFrame(%v.Marshal()): %v", f, err)
		}
		if parsed.Control&^FrameControlManufacturerSpecific != f.Control&^FrameControlManufacturerSpecific {
			t.Errorf("control changed: got 0x%02X, want 0x%02X", parsed.Control, f.Control)
		}
		if parsed.ManufacturerCode != f.ManufacturerCode {
			t.Errorf("manufacturer code changed: got 0x%04X, want 0x%04X", parsed.ManufacturerCode, f.ManufacturerCode)
		}
		if parsed.TransactionID != f.TransactionID || parsed.CommandID != f.CommandID {
			t.Errorf("ids changed: got %d/%d, want %d/%d", parsed.TransactionID, parsed.CommandID, f.TransactionID, f.CommandID)
		}
		if !bytes.Equal(parsed.Payload, f.Payload) && len(f.Payload) > 0 {
			t.Errorf("payload changed: got % X, want % X", parsed.Payload, f.Payload)
		}
	}
}

func TestHeaderManufacturer(t *testing.T) {
	got := HeaderManufacturer(0x00, 0x10, CmdReadAttributes, 0x115F)
	want := []byte{0x04, 0x5F, 0x11, 0x10, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}

	got = Header(0x11, 0x20, 0x02)
	want = []byte{0x11, 0x20, 0x02}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestReadAttributesRequest(t *testing.T) {
	got := ReadAttributesRequest(0x05, []uint16{0x0001, 0x0005}, 0)
	want := []byte{0x00, 0x05, 0x00, 0x01, 0x00, 0x05, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}
