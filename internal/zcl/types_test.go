package zcl

import "testing"

func TestDataSize(t *testing.T) {
	tests := []struct {
		name    string
		typeID  uint8
		buf     []byte
		want    int
		wantErr bool
	}{
		{name: "bool", typeID: TypeBool, buf: []byte{0x01}, want: 1},
		{name: "uint16", typeID: TypeUint16, buf: []byte{0x34, 0x12, 0xFF}, want: 2},
		{name: "uint48", typeID: TypeUint48, buf: make([]byte, 6), want: 6},
		{name: "eui64", typeID: TypeEUI64, buf: make([]byte, 8), want: 8},
		{name: "utc", typeID: TypeUTC, buf: make([]byte, 4), want: 4},
		{name: "uint32 truncated", typeID: TypeUint32, buf: []byte{0x01, 0x02}, wantErr: true},
		{name: "string", typeID: TypeCharStr, buf: []byte{0x03, 'a', 'b', 'c', 0xFF}, want: 4},
		{name: "string empty", typeID: TypeOctetStr, buf: []byte{0x00}, want: 1},
		{name: "string truncated", typeID: TypeCharStr, buf: []byte{0x05, 'a', 'b'}, wantErr: true},
		{name: "string no length byte", typeID: TypeOctetStr, buf: nil, wantErr: true},
		{
			name:   "structure",
			typeID: TypeStruct,
			// two items: uint8 and a 2-byte octet string
			buf:  []byte{0x02, 0x00, TypeUint8, 0x2A, TypeOctetStr, 0x02, 0xAA, 0xBB},
			want: 8,
		},
		{name: "structure truncated", typeID: TypeStruct, buf: []byte{0x02, 0x00, TypeUint8, 0x2A}, wantErr: true},
		{name: "array unsupported", typeID: TypeArray, buf: []byte{0x00}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DataSize(tt.typeID, tt.buf)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got size %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUint24(t *testing.T) {
	if got := Uint24([]byte{0x10, 0x20, 0x30}); got != 0x302010 {
		t.Errorf("got 0x%06X, want 0x302010", got)
	}
}

func TestUint48(t *testing.T) {
	if got := Uint48([]byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x80}); got != 0x800000000001 {
		t.Errorf("got 0x%012X, want 0x800000000001", got)
	}
}
