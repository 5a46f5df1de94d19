package protocol

import "fmt"

// OptionID packs a four-character option name into its wire id.
func OptionID(name string) (uint32, error) {
	if len(name) != 4 {
		return 0, fmt.Errorf("option name %q must be 4 characters", name)
	}
	return uint32(name[0])<<24 | uint32(name[1])<<16 | uint32(name[2])<<8 | uint32(name[3]), nil
}

func mustOptionID(name string) uint32 {
	id, err := OptionID(name)
	if err != nil {
		panic(err)
	}
	return id
}

// OptionName unpacks a wire id into its four-character name.
func OptionName(id uint32) string {
	return string([]byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)})
}

// Known option ids.
var (
	OptionHalfDuplexCapsLock   = mustOptionID("HDCL")
	OptionHalfDuplexNumLock    = mustOptionID("HDNL")
	OptionHalfDuplexScrollLock = mustOptionID("HDSL")
	OptionHeartbeat            = mustOptionID("HART") // keep-alive rate, milliseconds
	OptionScreenSaverSync      = mustOptionID("SSVR")
	OptionRelativeMouseMoves   = mustOptionID("MDLT")
	OptionWin32KeepForeground  = mustOptionID("_KFW")
	OptionClipboardSharing     = mustOptionID("CLPS") // 0 disables clipboard sending
	OptionClipboardSharingSize = mustOptionID("CLSZ") // clipboard size limit, KiB
)

// Options is an ordered option table. Duplicates are allowed; the last
// entry for an id wins.
type Options []Option

// Get returns the value of the last entry for id.
func (o Options) Get(id uint32) (uint32, bool) {
	for i := len(o) - 1; i >= 0; i-- {
		if o[i].ID == id {
			return o[i].Value, true
		}
	}
	return 0, false
}
