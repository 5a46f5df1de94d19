package protocol

import (
	"fmt"
	"sort"
)

// Direction says which peer may send a message.
type Direction uint8

const (
	PrimaryToSecondary Direction = 1 << iota
	SecondaryToPrimary

	BothDirections = PrimaryToSecondary | SecondaryToPrimary
)

// Schema describes the argument layout of one message code over a range
// of protocol versions.
type Schema struct {
	Code       Code
	Format     string
	Since      Version
	Until      Version // exclusive; zero means still current
	Direction  Direction
	Deprecated bool

	fields []fieldKind
	newMsg func() Message
	args   func(Message) []any
}

// Covers reports whether the schema applies at version v.
func (s *Schema) Covers(v Version) bool {
	if v.Less(s.Since) {
		return false
	}
	return s.Until.IsZero() || v.Less(s.Until)
}

// Arity is the number of argument fields.
func (s *Schema) Arity() int {
	return len(s.fields)
}

var (
	v1_0 = V(1, 0)
	v1_1 = V(1, 1)
	v1_2 = V(1, 2)
	v1_3 = V(1, 3)
	v1_5 = V(1, 5)
	v1_7 = V(1, 7)
	v1_8 = V(1, 8)
)

func noArgs(Message) []any { return nil }

// schemas is the immutable catalog. Codes with several entries are
// version-dependent; their ranges never overlap.
var schemas = []*Schema{
	{Code: CodeNoop, Since: v1_0, Direction: SecondaryToPrimary,
		newMsg: func() Message { return &Noop{} }, args: noArgs},
	{Code: CodeClose, Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &Close{} }, args: noArgs},
	{Code: CodeEnter, Format: "%2i%2i%4i%2i", Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &Enter{} },
		args: func(m Message) []any {
			e := m.(*Enter)
			return []any{&e.X, &e.Y, &e.Seq, &e.Mask}
		}},
	{Code: CodeLeave, Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &Leave{} }, args: noArgs},
	{Code: CodeClipboardGrab, Format: "%1i%4i", Since: v1_0, Direction: BothDirections,
		newMsg: func() Message { return &ClipboardGrab{} },
		args: func(m Message) []any {
			g := m.(*ClipboardGrab)
			return []any{&g.ID, &g.Seq}
		}},
	{Code: CodeScreenSaver, Format: "%1i", Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &ScreenSaver{} },
		args: func(m Message) []any {
			return []any{&m.(*ScreenSaver).Active}
		}},
	{Code: CodeResetOptions, Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &ResetOptions{} }, args: noArgs},
	{Code: CodeInfoAck, Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &InfoAck{} }, args: noArgs},
	{Code: CodeKeepAlive, Since: v1_3, Direction: BothDirections,
		newMsg: func() Message { return &KeepAlive{} }, args: noArgs},

	{Code: CodeKeyDownLang, Format: "%2i%2i%2i%s", Since: v1_8, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &KeyDownLang{} },
		args: func(m Message) []any {
			k := m.(*KeyDownLang)
			return []any{&k.ID, &k.Mask, &k.Button, &k.Lang}
		}},
	{Code: CodeKeyDown, Format: "%2i%2i", Since: v1_0, Until: v1_1, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &KeyDown{} },
		args: func(m Message) []any {
			k := m.(*KeyDown)
			return []any{&k.ID, &k.Mask}
		}},
	{Code: CodeKeyDown, Format: "%2i%2i%2i", Since: v1_1, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &KeyDown{} },
		args: func(m Message) []any {
			k := m.(*KeyDown)
			return []any{&k.ID, &k.Mask, &k.Button}
		}},
	{Code: CodeKeyRepeat, Format: "%2i%2i%2i", Since: v1_0, Until: v1_1, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &KeyRepeat{} },
		args: func(m Message) []any {
			k := m.(*KeyRepeat)
			return []any{&k.ID, &k.Mask, &k.Count}
		}},
	{Code: CodeKeyRepeat, Format: "%2i%2i%2i%2i%s", Since: v1_1, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &KeyRepeat{} },
		args: func(m Message) []any {
			k := m.(*KeyRepeat)
			return []any{&k.ID, &k.Mask, &k.Count, &k.Button, &k.Lang}
		}},
	{Code: CodeKeyUp, Format: "%2i%2i", Since: v1_0, Until: v1_1, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &KeyUp{} },
		args: func(m Message) []any {
			k := m.(*KeyUp)
			return []any{&k.ID, &k.Mask}
		}},
	{Code: CodeKeyUp, Format: "%2i%2i%2i", Since: v1_1, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &KeyUp{} },
		args: func(m Message) []any {
			k := m.(*KeyUp)
			return []any{&k.ID, &k.Mask, &k.Button}
		}},
	{Code: CodeMouseDown, Format: "%1i", Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &MouseDown{} },
		args: func(m Message) []any {
			return []any{&m.(*MouseDown).Button}
		}},
	{Code: CodeMouseUp, Format: "%1i", Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &MouseUp{} },
		args: func(m Message) []any {
			return []any{&m.(*MouseUp).Button}
		}},
	{Code: CodeMouseMove, Format: "%2i%2i", Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &MouseMove{} },
		args: func(m Message) []any {
			mv := m.(*MouseMove)
			return []any{&mv.X, &mv.Y}
		}},
	{Code: CodeMouseRelMove, Format: "%2i%2i", Since: v1_2, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &MouseRelMove{} },
		args: func(m Message) []any {
			mv := m.(*MouseRelMove)
			return []any{&mv.DX, &mv.DY}
		}},
	{Code: CodeMouseWheel, Format: "%2i", Since: v1_0, Until: v1_3, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &MouseWheel{} },
		args: func(m Message) []any {
			return []any{&m.(*MouseWheel).YDelta}
		}},
	{Code: CodeMouseWheel, Format: "%2i%2i", Since: v1_3, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &MouseWheel{} },
		args: func(m Message) []any {
			w := m.(*MouseWheel)
			return []any{&w.XDelta, &w.YDelta}
		}},
	{Code: CodeClipboard, Format: "%1i%4i%1i%s", Since: v1_0, Direction: BothDirections,
		newMsg: func() Message { return &ClipboardData{} },
		args: func(m Message) []any {
			c := m.(*ClipboardData)
			return []any{&c.ID, &c.Seq, &c.Mark, &c.Data}
		}},
	{Code: CodeInfo, Format: "%2i%2i%2i%2i%2i%2i%2i", Since: v1_0, Direction: SecondaryToPrimary,
		newMsg: func() Message { return &Info{} },
		args: func(m Message) []any {
			i := m.(*Info)
			return []any{&i.X, &i.Y, &i.W, &i.H, &i.Obsolete, &i.MX, &i.MY}
		}},
	{Code: CodeSetOptions, Format: "%4I", Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &SetOptions{} },
		args: func(m Message) []any {
			return []any{&m.(*SetOptions).Values}
		}},
	{Code: CodeFileTransfer, Format: "%1i%s", Since: v1_5, Direction: BothDirections, Deprecated: true,
		newMsg: func() Message { return &FileTransfer{} },
		args: func(m Message) []any {
			f := m.(*FileTransfer)
			return []any{&f.Mark, &f.Data}
		}},
	{Code: CodeDragInfo, Format: "%2i%s", Since: v1_5, Direction: BothDirections, Deprecated: true,
		newMsg: func() Message { return &DragInfo{} },
		args: func(m Message) []any {
			d := m.(*DragInfo)
			return []any{&d.Count, &d.Paths}
		}},
	{Code: CodeSecureInput, Format: "%s", Since: v1_7, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &SecureInput{} },
		args: func(m Message) []any {
			return []any{&m.(*SecureInput).App}
		}},
	{Code: CodeLanguageSync, Format: "%s", Since: v1_8, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &LanguageSync{} },
		args: func(m Message) []any {
			return []any{&m.(*LanguageSync).Languages}
		}},

	{Code: CodeQueryInfo, Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &QueryInfo{} }, args: noArgs},

	{Code: CodeIncompatible, Format: "%2i%2i", Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &Incompatible{} },
		args: func(m Message) []any {
			e := m.(*Incompatible)
			return []any{&e.Major, &e.Minor}
		}},
	{Code: CodeBusy, Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &Busy{} }, args: noArgs},
	{Code: CodeUnknown, Since: v1_0, Direction: PrimaryToSecondary,
		newMsg: func() Message { return &Unknown{} }, args: noArgs},
	{Code: CodeBad, Since: v1_0, Direction: BothDirections,
		newMsg: func() Message { return &Bad{} }, args: noArgs},
}

var catalog = buildCatalog(schemas)

func buildCatalog(list []*Schema) map[Code][]*Schema {
	out := make(map[Code][]*Schema)
	for _, s := range list {
		if len(s.Code) != 4 {
			panic(fmt.Sprintf("protocol: code %q is not 4 bytes", s.Code))
		}
		s.fields = mustParseFormat(s.Format)
		for _, other := range out[s.Code] {
			if overlaps(s, other) {
				panic(fmt.Sprintf("protocol: overlapping schemas for %s", s.Code))
			}
		}
		out[s.Code] = append(out[s.Code], s)
	}
	return out
}

func overlaps(a, b *Schema) bool {
	aEndsFirst := !a.Until.IsZero() && !b.Since.Less(a.Until)
	bEndsFirst := !b.Until.IsZero() && !a.Since.Less(b.Until)
	return !aEndsFirst && !bEndsFirst
}

// Resolve returns the schema for code at version v. It reports false when
// the code is unknown or was not yet introduced at v.
func Resolve(code Code, v Version) (*Schema, bool) {
	for _, s := range catalog[code] {
		if s.Covers(v) {
			return s, true
		}
	}
	return nil, false
}

// Codes returns every code in the catalog, sorted.
func Codes() []Code {
	out := make([]Code, 0, len(catalog))
	for c := range catalog {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Schemas returns every schema variant registered for code.
func Schemas(code Code) []*Schema {
	return append([]*Schema(nil), catalog[code]...)
}
