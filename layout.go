package zms

import "math"

// revLayout carries the on-disk constants of one ZMS revision. The four
// revisions share the header but diverge in count width, per-element
// prefixes, position scaling, bone table encoding and trailing blocks.
type revLayout struct {
	version    uint32
	identifier string

	// countLimit is the largest value a count field can hold.
	countLimit uint32

	// wideCounts selects the legacy layout: 32-bit counts, a uint32 running
	// id before every array element, a (dummy index, id) bone lookup table
	// and 32-bit vertex bone references.
	wideCounts bool

	// positionScale is the factor applied to positions in the file. Decode
	// divides by it, encode multiplies.
	positionScale float32

	hasMaterials bool
	hasStrips    bool
	hasPool      bool
}

var revLayouts = []revLayout{
	{version: V5, identifier: ZMS_SIGNATURE_V5, countLimit: math.MaxUint32, wideCounts: true, positionScale: 100},
	{version: V6, identifier: ZMS_SIGNATURE_V6, countLimit: math.MaxUint32, wideCounts: true, positionScale: 100, hasMaterials: true},
	{version: V7, identifier: ZMS_SIGNATURE_V7, countLimit: math.MaxUint16, positionScale: 1, hasMaterials: true, hasStrips: true},
	{version: V8, identifier: ZMS_SIGNATURE_V8, countLimit: math.MaxUint16, positionScale: 1, hasMaterials: true, hasStrips: true, hasPool: true},
}

func layoutByIdentifier(id string) *revLayout {
	for i := range revLayouts {
		if revLayouts[i].identifier == id {
			return &revLayouts[i]
		}
	}
	return nil
}

func layoutByVersion(v uint32) *revLayout {
	for i := range revLayouts {
		if revLayouts[i].version == v {
			return &revLayouts[i]
		}
	}
	return nil
}
