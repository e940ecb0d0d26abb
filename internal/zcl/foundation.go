package zcl

// Foundation (profile-wide) command IDs.
const (
	CmdReadAttributes             uint8 = 0x00
	CmdReadAttributesResponse     uint8 = 0x01
	CmdWriteAttributes            uint8 = 0x02
	CmdWriteAttributesResponse    uint8 = 0x04
	CmdConfigureReporting         uint8 = 0x06
	CmdConfigureReportingResponse uint8 = 0x07
	CmdReportAttributes           uint8 = 0x0A
	CmdDefaultResponse            uint8 = 0x0B
)

// ZCL status codes.
const (
	StatusSuccess              uint8 = 0x00
	StatusFailure              uint8 = 0x01
	StatusUnsupportedAttribute uint8 = 0x86
	StatusInvalidValue         uint8 = 0x87
	StatusReadOnly             uint8 = 0x88
	StatusInsufficientSpace    uint8 = 0x89
	StatusDuplicateExists      uint8 = 0x8A
	StatusNotFound             uint8 = 0x8B
	StatusNoImageAvailable     uint8 = 0x98
)
