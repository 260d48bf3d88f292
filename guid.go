package blocks

import (
	"github.com/rekby/gpt"
	uuid "github.com/satori/go.uuid"
)

// GUID is a 16 byte Globally Unique ID, used for PV, VG and bcache cset
// identifiers as well as partition GUIDs.
type GUID [16]byte

// GenGUID generates a random v4 UUID.
func GenGUID() GUID {
	return GUID(uuid.NewV4())
}

func (g GUID) String() string {
	return GUIDToString(g)
}

// StringToGUID converts a string to a GUID.
func StringToGUID(sguid string) (GUID, error) {
	g, err := gpt.StringToGuid(sguid)
	if err != nil {
		return GUID{}, err
	}

	return GUID(g), nil
}

// GUIDToString turns a GUID into its canonical string form.
func GUIDToString(bguid GUID) string {
	return gpt.Guid(bguid).String()
}
