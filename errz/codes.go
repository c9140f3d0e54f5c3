package errz

// ErrorCode is a stable identifier for an error kind, suitable for scripts
// that parse CLI output. Codes are organized by category:
//   - CW1xx: Structural errors
//   - CW2xx: Transformation errors
//   - CW3xx: Encoding-limit errors
type ErrorCode string

const (
	CW101 ErrorCode = "CW101" // Truncated input
	CW102 ErrorCode = "CW102" // Unsupported version
	CW103 ErrorCode = "CW103" // Malformed constant
	CW104 ErrorCode = "CW104" // Malformed pool
	CW105 ErrorCode = "CW105" // Malformed reference
	CW106 ErrorCode = "CW106" // Malformed code

	CW201 ErrorCode = "CW201" // Target not found
	CW202 ErrorCode = "CW202" // Non-inlinable target
	CW203 ErrorCode = "CW203" // Incompatible receiver

	CW301 ErrorCode = "CW301" // Offset overflow
	CW302 ErrorCode = "CW302" // Pool overflow
)

var kindCodes = map[ErrorKind]ErrorCode{
	TruncatedInput:       CW101,
	UnsupportedVersion:   CW102,
	MalformedConstant:    CW103,
	MalformedPool:        CW104,
	MalformedReference:   CW105,
	MalformedCode:        CW106,
	TargetNotFound:       CW201,
	NonInlinableTarget:   CW202,
	IncompatibleReceiver: CW203,
	OffsetOverflow:       CW301,
	PoolOverflow:         CW302,
}

// CodeFor returns the error code for the given kind.
func CodeFor(kind ErrorKind) ErrorCode {
	return kindCodes[kind]
}
