package protocol

import "fmt"

// Code is the 4-byte ASCII code that opens every non-greeting message.
type Code string

const (
	CodeNoop          Code = "CNOP"
	CodeClose         Code = "CBYE"
	CodeEnter         Code = "CINN"
	CodeLeave         Code = "COUT"
	CodeClipboardGrab Code = "CCLP"
	CodeScreenSaver   Code = "CSEC"
	CodeResetOptions  Code = "CROP"
	CodeInfoAck       Code = "CIAK"
	CodeKeepAlive     Code = "CALV"

	CodeKeyDownLang  Code = "DKDL"
	CodeKeyDown      Code = "DKDN"
	CodeKeyRepeat    Code = "DKRP"
	CodeKeyUp        Code = "DKUP"
	CodeMouseDown    Code = "DMDN"
	CodeMouseUp      Code = "DMUP"
	CodeMouseMove    Code = "DMMV"
	CodeMouseRelMove Code = "DMRM"
	CodeMouseWheel   Code = "DMWM"
	CodeClipboard    Code = "DCLP"
	CodeInfo         Code = "DINF"
	CodeSetOptions   Code = "DSOP"
	CodeFileTransfer Code = "DFTR"
	CodeDragInfo     Code = "DDRG"
	CodeSecureInput  Code = "SECN"
	CodeLanguageSync Code = "LSYN"

	CodeQueryInfo Code = "QINF"

	CodeIncompatible Code = "EICV"
	CodeBusy         Code = "EBSY"
	CodeUnknown      Code = "EUNK"
	CodeBad          Code = "EBAD"
)

// Message is a decoded protocol message.
type Message interface {
	Code() Code
}

// --- Commands ---

// Noop is sent by a Secondary and carries nothing.
type Noop struct{}

// Close asks the Secondary to disconnect gracefully.
type Close struct{}

// Enter tells the Secondary the cursor has entered its screen at (X, Y).
// Seq is echoed in later clipboard messages from the Secondary.
type Enter struct {
	X    int16
	Y    int16
	Seq  uint32
	Mask uint16
}

type Leave struct{}

// ClipboardGrab announces that the sender now owns clipboard ID.
type ClipboardGrab struct {
	ID  uint8
	Seq uint32
}

type ScreenSaver struct {
	Active bool
}

type ResetOptions struct{}

type InfoAck struct{}

type KeepAlive struct{}

// --- Data ---

// KeyDownLang is a key press carrying the keyboard language (v1.8+).
type KeyDownLang struct {
	ID     uint16
	Mask   uint16
	Button uint16
	Lang   string
}

// KeyDown is a key press. Button is absent before v1.1 and decodes as 0.
type KeyDown struct {
	ID     uint16
	Mask   uint16
	Button uint16
}

// KeyRepeat is an auto-repeat. Button and Lang are absent before v1.1.
type KeyRepeat struct {
	ID     uint16
	Mask   uint16
	Count  uint16
	Button uint16
	Lang   string
}

type KeyUp struct {
	ID     uint16
	Mask   uint16
	Button uint16
}

type MouseDown struct {
	Button uint8
}

type MouseUp struct {
	Button uint8
}

// MouseMove is an absolute cursor position.
type MouseMove struct {
	X int16
	Y int16
}

// MouseRelMove is a relative cursor motion (v1.2+).
type MouseRelMove struct {
	DX int16
	DY int16
}

// MouseWheel carries scroll deltas. Before v1.3 only YDelta is on the wire.
type MouseWheel struct {
	XDelta int16
	YDelta int16
}

// ClipboardData is one chunk of a clipboard transfer; Mark is one of the
// Mark* constants.
type ClipboardData struct {
	ID   uint8
	Seq  uint32
	Mark uint8
	Data []byte
}

// Info describes a Secondary's screen. Obsolete is the retired warp zone
// size and is always sent as 0.
type Info struct {
	X        int16
	Y        int16
	W        uint16
	H        uint16
	Obsolete uint16
	MX       int16
	MY       int16
}

// SetOptions carries a flat list of option id/value pairs.
// Use NewSetOptions and Options to convert from and to pairs.
type SetOptions struct {
	Values []uint32
}

// FileTransfer is defined for compatibility only; drag-and-drop is not
// implemented.
type FileTransfer struct {
	Mark uint8
	Data []byte
}

// DragInfo is defined for compatibility only.
type DragInfo struct {
	Count uint16
	Paths string
}

// SecureInput reports the application holding secure input on the Primary.
type SecureInput struct {
	App string
}

// LanguageSync lists the Primary's keyboard languages.
type LanguageSync struct {
	Languages string
}

// --- Queries ---

type QueryInfo struct{}

// --- Errors ---

// Incompatible carries the Primary's version after a major version mismatch.
type Incompatible struct {
	Major int16
	Minor int16
}

type Busy struct{}

type Unknown struct{}

type Bad struct{}

func (*Noop) Code() Code          { return CodeNoop }
func (*Close) Code() Code         { return CodeClose }
func (*Enter) Code() Code         { return CodeEnter }
func (*Leave) Code() Code         { return CodeLeave }
func (*ClipboardGrab) Code() Code { return CodeClipboardGrab }
func (*ScreenSaver) Code() Code   { return CodeScreenSaver }
func (*ResetOptions) Code() Code  { return CodeResetOptions }
func (*InfoAck) Code() Code       { return CodeInfoAck }
func (*KeepAlive) Code() Code     { return CodeKeepAlive }
func (*KeyDownLang) Code() Code   { return CodeKeyDownLang }
func (*KeyDown) Code() Code       { return CodeKeyDown }
func (*KeyRepeat) Code() Code     { return CodeKeyRepeat }
func (*KeyUp) Code() Code         { return CodeKeyUp }
func (*MouseDown) Code() Code     { return CodeMouseDown }
func (*MouseUp) Code() Code       { return CodeMouseUp }
func (*MouseMove) Code() Code     { return CodeMouseMove }
func (*MouseRelMove) Code() Code  { return CodeMouseRelMove }
func (*MouseWheel) Code() Code    { return CodeMouseWheel }
func (*ClipboardData) Code() Code { return CodeClipboard }
func (*Info) Code() Code          { return CodeInfo }
func (*SetOptions) Code() Code    { return CodeSetOptions }
func (*FileTransfer) Code() Code  { return CodeFileTransfer }
func (*DragInfo) Code() Code      { return CodeDragInfo }
func (*SecureInput) Code() Code   { return CodeSecureInput }
func (*LanguageSync) Code() Code  { return CodeLanguageSync }
func (*QueryInfo) Code() Code     { return CodeQueryInfo }
func (*Incompatible) Code() Code  { return CodeIncompatible }
func (*Busy) Code() Code          { return CodeBusy }
func (*Unknown) Code() Code       { return CodeUnknown }
func (*Bad) Code() Code           { return CodeBad }

// Option is one entry of the option table.
type Option struct {
	ID    uint32
	Value uint32
}

// NewSetOptions flattens opts into a DSOP message.
func NewSetOptions(opts []Option) *SetOptions {
	vals := make([]uint32, 0, 2*len(opts))
	for _, o := range opts {
		vals = append(vals, o.ID, o.Value)
	}
	return &SetOptions{Values: vals}
}

// Options pairs up the flat value list. An odd-length list is malformed.
func (m *SetOptions) Options() ([]Option, error) {
	if len(m.Values)%2 != 0 {
		return nil, fmt.Errorf("option list has odd length %d", len(m.Values))
	}
	opts := make([]Option, 0, len(m.Values)/2)
	for i := 0; i < len(m.Values); i += 2 {
		opts = append(opts, Option{ID: m.Values[i], Value: m.Values[i+1]})
	}
	return opts, nil
}
