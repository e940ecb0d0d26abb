package zcl

import (
	"encoding/binary"
	"fmt"
)

// ZCL data type IDs.
const (
	TypeNoData   uint8 = 0x00
	TypeData8    uint8 = 0x08
	TypeBool     uint8 = 0x10
	TypeBitmap8  uint8 = 0x18
	TypeBitmap16 uint8 = 0x19
	TypeBitmap24 uint8 = 0x1A
	TypeBitmap32 uint8 = 0x1B
	TypeUint8    uint8 = 0x20
	TypeUint16   uint8 = 0x21
	TypeUint24   uint8 = 0x22
	TypeUint32   uint8 = 0x23
	TypeUint40   uint8 = 0x24
	TypeUint48   uint8 = 0x25
	TypeInt8     uint8 = 0x28
	TypeInt16    uint8 = 0x29
	TypeInt24    uint8 = 0x2A
	TypeInt32    uint8 = 0x2B
	TypeEnum8    uint8 = 0x30
	TypeEnum16   uint8 = 0x31
	TypeFloat16  uint8 = 0x38
	TypeFloat32  uint8 = 0x39
	TypeFloat64  uint8 = 0x3A
	TypeOctetStr uint8 = 0x41
	TypeCharStr  uint8 = 0x42
	TypeArray    uint8 = 0x48
	TypeStruct   uint8 = 0x4C
	TypeToD      uint8 = 0xE0
	TypeDate     uint8 = 0xE1
	TypeUTC      uint8 = 0xE2
	TypeEUI64    uint8 = 0xF0
)

// TypeSize returns the fixed wire size of a ZCL data type in bytes, or -1
// for variable-length types (strings, arrays, structures).
func TypeSize(typeID uint8) int {
	switch typeID {
	case TypeNoData:
		return 0
	case TypeData8, TypeBool, TypeBitmap8, TypeUint8, TypeInt8, TypeEnum8:
		return 1
	case TypeBitmap16, TypeUint16, TypeInt16, TypeEnum16, TypeFloat16:
		return 2
	case TypeBitmap24, TypeUint24, TypeInt24:
		return 3
	case TypeBitmap32, TypeUint32, TypeInt32, TypeFloat32, TypeToD, TypeDate, TypeUTC:
		return 4
	case TypeUint40:
		return 5
	case TypeUint48:
		return 6
	case TypeFloat64, TypeEUI64:
		return 8
	default:
		return -1
	}
}

// DataSize returns the number of bytes a value of the given type occupies at
// the start of buf, including the length prefix of variable-length types.
// It fails when the value would run past the end of the buffer, so callers
// iterating an attribute list never read out of bounds.
func DataSize(typeID uint8, buf []byte) (int, error) {
	if size := TypeSize(typeID); size >= 0 {
		if size > len(buf) {
			return 0, fmt.Errorf("zcl: type %s truncated: need %d bytes, have %d", TypeName(typeID), size, len(buf))
		}
		return size, nil
	}

	switch typeID {
	case TypeOctetStr, TypeCharStr:
		if len(buf) < 1 {
			return 0, fmt.Errorf("zcl: missing length byte for type %s", TypeName(typeID))
		}
		length := int(buf[0])
		if 1+length > len(buf) {
			return 0, fmt.Errorf("zcl: string truncated: need %d bytes, have %d", length, len(buf)-1)
		}
		return 1 + length, nil

	case TypeStruct:
		if len(buf) < 2 {
			return 0, fmt.Errorf("zcl: missing item count for structure")
		}
		count := int(binary.LittleEndian.Uint16(buf[:2]))
		offset := 2
		for i := 0; i < count; i++ {
			if offset >= len(buf) {
				return 0, fmt.Errorf("zcl: structure truncated at item %d", i)
			}
			size, err := DataSize(buf[offset], buf[offset+1:])
			if err != nil {
				return 0, fmt.Errorf("zcl: structure item %d: %w", i, err)
			}
			offset += 1 + size
		}
		return offset, nil
	}

	return 0, fmt.Errorf("zcl: size of type 0x%02X is unknown", typeID)
}

// TypeName returns a short name for a ZCL data type, for logging.
func TypeName(typeID uint8) string {
	switch typeID {
	case TypeNoData:
		return "nodata"
	case TypeData8:
		return "data8"
	case TypeBool:
		return "bool"
	case TypeBitmap8:
		return "map8"
	case TypeBitmap16:
		return "map16"
	case TypeBitmap24:
		return "map24"
	case TypeBitmap32:
		return "map32"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint24:
		return "uint24"
	case TypeUint32:
		return "uint32"
	case TypeUint40:
		return "uint40"
	case TypeUint48:
		return "uint48"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt24:
		return "int24"
	case TypeInt32:
		return "int32"
	case TypeEnum8:
		return "enum8"
	case TypeEnum16:
		return "enum16"
	case TypeFloat16:
		return "float16"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeOctetStr:
		return "octstr"
	case TypeCharStr:
		return "string"
	case TypeArray:
		return "array"
	case TypeStruct:
		return "struct"
	case TypeToD:
		return "ToD"
	case TypeDate:
		return "date"
	case TypeUTC:
		return "UTC"
	default:
		return fmt.Sprintf("0x%02X", typeID)
	}
}
