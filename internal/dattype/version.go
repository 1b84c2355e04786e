package dattype

// Version identifies the on-disk layout of an archive.
type Version uint8

const (
	VersionUnknown Version = iota
	VersionDat1
	VersionDat2
)

// String returns the human-readable name of the layout.
func (v Version) String() string {
	switch v {
	case VersionDat1:
		return "dat1"
	case VersionDat2:
		return "dat2"
	default:
		return "unknown"
	}
}
