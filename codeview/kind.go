// Package codeview decodes CodeView symbol records from PDB symbol streams.
package codeview

import "fmt"

// Kind identifies the type of a symbol record.
type Kind uint16

// Symbol record kinds (S_*)
const (
	S_END            Kind = 0x0006
	S_SKIP           Kind = 0x0007
	S_FRAMEPROC      Kind = 0x1012
	S_ANNOTATION     Kind = 0x1019
	S_OBJNAME        Kind = 0x1101
	S_THUNK32        Kind = 0x1102
	S_BLOCK32        Kind = 0x1103
	S_WITH32         Kind = 0x1104
	S_LABEL32        Kind = 0x1105
	S_REGISTER       Kind = 0x1106
	S_CONSTANT       Kind = 0x1107
	S_UDT            Kind = 0x1108
	S_BPREL32        Kind = 0x110b
	S_LDATA32        Kind = 0x110c
	S_GDATA32        Kind = 0x110d
	S_PUB32          Kind = 0x110e
	S_LPROC32        Kind = 0x110f
	S_GPROC32        Kind = 0x1110
	S_REGREL32       Kind = 0x1111
	S_LTHREAD32      Kind = 0x1112
	S_GTHREAD32      Kind = 0x1113
	S_COMPILE2       Kind = 0x1116
	S_UNAMESPACE     Kind = 0x1124
	S_PROCREF        Kind = 0x1125
	S_DATAREF        Kind = 0x1126
	S_LPROCREF       Kind = 0x1127
	S_TRAMPOLINE     Kind = 0x112c
	S_SEPCODE        Kind = 0x1132
	S_SECTION        Kind = 0x1136
	S_COFFGROUP      Kind = 0x1137
	S_EXPORT         Kind = 0x1138
	S_CALLSITEINFO   Kind = 0x1139
	S_FRAMECOOKIE    Kind = 0x113a
	S_COMPILE3       Kind = 0x113c
	S_ENVBLOCK       Kind = 0x113d
	S_LOCAL          Kind = 0x113e
	S_DEFRANGE       Kind = 0x113f

	S_DEFRANGE_REGISTER     Kind = 0x1141
	S_DEFRANGE_FRAMEPOINTER Kind = 0x1142
	S_DEFRANGE_REGISTER_REL Kind = 0x1145

	S_LPROC32_ID     Kind = 0x1146
	S_GPROC32_ID     Kind = 0x1147
	S_BUILDINFO      Kind = 0x114c
	S_INLINESITE     Kind = 0x114d
	S_INLINESITE_END Kind = 0x114e
	S_PROC_ID_END    Kind = 0x114f
	S_FILESTATIC     Kind = 0x1153
	S_CALLEES        Kind = 0x115a
	S_CALLERS        Kind = 0x115b
	S_HEAPALLOCSITE  Kind = 0x115e
)

var kindNames = map[Kind]string{
	S_END:                   "S_END",
	S_SKIP:                  "S_SKIP",
	S_FRAMEPROC:             "S_FRAMEPROC",
	S_ANNOTATION:            "S_ANNOTATION",
	S_OBJNAME:               "S_OBJNAME",
	S_THUNK32:               "S_THUNK32",
	S_BLOCK32:               "S_BLOCK32",
	S_WITH32:                "S_WITH32",
	S_LABEL32:               "S_LABEL32",
	S_REGISTER:              "S_REGISTER",
	S_CONSTANT:              "S_CONSTANT",
	S_UDT:                   "S_UDT",
	S_BPREL32:               "S_BPREL32",
	S_LDATA32:               "S_LDATA32",
	S_GDATA32:               "S_GDATA32",
	S_PUB32:                 "S_PUB32",
	S_LPROC32:               "S_LPROC32",
	S_GPROC32:               "S_GPROC32",
	S_REGREL32:              "S_REGREL32",
	S_LTHREAD32:             "S_LTHREAD32",
	S_GTHREAD32:             "S_GTHREAD32",
	S_COMPILE2:              "S_COMPILE2",
	S_UNAMESPACE:            "S_UNAMESPACE",
	S_PROCREF:               "S_PROCREF",
	S_DATAREF:               "S_DATAREF",
	S_LPROCREF:              "S_LPROCREF",
	S_TRAMPOLINE:            "S_TRAMPOLINE",
	S_SEPCODE:               "S_SEPCODE",
	S_SECTION:               "S_SECTION",
	S_COFFGROUP:             "S_COFFGROUP",
	S_EXPORT:                "S_EXPORT",
	S_CALLSITEINFO:          "S_CALLSITEINFO",
	S_FRAMECOOKIE:           "S_FRAMECOOKIE",
	S_COMPILE3:              "S_COMPILE3",
	S_ENVBLOCK:              "S_ENVBLOCK",
	S_LOCAL:                 "S_LOCAL",
	S_DEFRANGE:              "S_DEFRANGE",
	S_DEFRANGE_REGISTER:     "S_DEFRANGE_REGISTER",
	S_DEFRANGE_FRAMEPOINTER: "S_DEFRANGE_FRAMEPOINTER_REL",
	S_DEFRANGE_REGISTER_REL: "S_DEFRANGE_REGISTER_REL",
	S_LPROC32_ID:            "S_LPROC32_ID",
	S_GPROC32_ID:            "S_GPROC32_ID",
	S_BUILDINFO:             "S_BUILDINFO",
	S_INLINESITE:            "S_INLINESITE",
	S_INLINESITE_END:        "S_INLINESITE_END",
	S_PROC_ID_END:           "S_PROC_ID_END",
	S_FILESTATIC:            "S_FILESTATIC",
	S_CALLEES:               "S_CALLEES",
	S_CALLERS:               "S_CALLERS",
	S_HEAPALLOCSITE:         "S_HEAPALLOCSITE",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("S_UNKNOWN(0x%04x)", uint16(k))
}

// IsProc returns true if this symbol kind represents a procedure.
func (k Kind) IsProc() bool {
	switch k {
	case S_GPROC32, S_LPROC32, S_GPROC32_ID, S_LPROC32_ID:
		return true
	}
	return false
}

// IsProcID returns true for procedures closed by S_PROC_ID_END.
func (k Kind) IsProcID() bool {
	return k == S_GPROC32_ID || k == S_LPROC32_ID
}

// IsGlobal returns true for externally visible procedures and data.
func (k Kind) IsGlobal() bool {
	switch k {
	case S_GPROC32, S_GPROC32_ID, S_GDATA32, S_GTHREAD32:
		return true
	}
	return false
}

// IsData returns true if this symbol kind represents data.
func (k Kind) IsData() bool {
	switch k {
	case S_GDATA32, S_LDATA32, S_GTHREAD32, S_LTHREAD32:
		return true
	}
	return false
}

// IsThreadLocal returns true for thread-local storage data.
func (k Kind) IsThreadLocal() bool {
	return k == S_GTHREAD32 || k == S_LTHREAD32
}

// IsScopeEnd returns true if the kind closes a lexical scope.
func (k Kind) IsScopeEnd() bool {
	switch k {
	case S_END, S_PROC_ID_END, S_INLINESITE_END:
		return true
	}
	return false
}
