package zms

const ZMS_SIGNATURE_V5 string = "ZMS0005"
const ZMS_SIGNATURE_V6 string = "ZMS0006"
const ZMS_SIGNATURE_V7 string = "ZMS0007"
const ZMS_SIGNATURE_V8 string = "ZMS0008"
const ZMSEXT string = ".zms"

const V5 uint32 = 5
const V6 uint32 = 6
const V7 uint32 = 7
const V8 uint32 = 8

// Vertex format flags. A set bit means the attribute is present on every
// vertex of the document; presence is never per-vertex.
const (
	VERTEX_FLAG_POSITION    uint32 = 1 << 1
	VERTEX_FLAG_NORMAL      uint32 = 1 << 2
	VERTEX_FLAG_COLOR       uint32 = 1 << 3
	VERTEX_FLAG_BONE_WEIGHT uint32 = 1 << 4
	VERTEX_FLAG_BONE_INDEX  uint32 = 1 << 5
	VERTEX_FLAG_TANGENT     uint32 = 1 << 6
	VERTEX_FLAG_UV1         uint32 = 1 << 7
	VERTEX_FLAG_UV2         uint32 = 1 << 8
	VERTEX_FLAG_UV3         uint32 = 1 << 9
	VERTEX_FLAG_UV4         uint32 = 1 << 10
)

var uvFlags = [4]uint32{VERTEX_FLAG_UV1, VERTEX_FLAG_UV2, VERTEX_FLAG_UV3, VERTEX_FLAG_UV4}
