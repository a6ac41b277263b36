package zms

import (
	"math"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"github.com/flywave/go3d/vec4"
)

// Vertex is one record of the indexed vertex buffer. Positions are always
// unscaled world units in memory; the revision 5/6 file-side scale is undone
// on decode and reapplied on encode. BoneIndices hold resolved bone ids, not
// table positions.
type Vertex struct {
	Position    vec3.T    `json:"position"`
	Normal      vec3.T    `json:"normal"`
	Color       vec4.T    `json:"color"`
	BoneWeights vec4.T    `json:"boneWeights"`
	BoneIndices [4]uint16 `json:"boneIndices"`
	Tangent     vec3.T    `json:"tangent"`
	UV          [4]vec2.T `json:"uv"`
}

// MeshDocument is the canonical in-memory mesh, identical regardless of the
// source revision.
type MeshDocument struct {
	Identifier     string      `json:"identifier"`
	Version        uint32      `json:"version"`
	Flags          uint32      `json:"flags"`
	BoundingBoxMin vec3.T      `json:"boundingBoxMin"`
	BoundingBoxMax vec3.T      `json:"boundingBoxMax"`
	Bones          []uint16    `json:"bones,omitempty"`
	Vertices       []Vertex    `json:"vertices,omitempty"`
	Faces          [][3]uint32 `json:"faces,omitempty"`
	Materials      []uint16    `json:"materials,omitempty"`
	Strips         []uint16    `json:"strips,omitempty"`
	Pool           uint16      `json:"pool"`

	// Warnings collects non-fatal decode conditions, currently dangling
	// bone references resolved to id 0.
	Warnings []string `json:"-"`
}

func NewMeshDocument(version uint32) *MeshDocument {
	ms := &MeshDocument{Version: version, Flags: VERTEX_FLAG_POSITION}
	if lay := layoutByVersion(version); lay != nil {
		ms.Identifier = lay.identifier
	}
	return ms
}

func (m *MeshDocument) PositionsEnabled() bool {
	return m.Flags&VERTEX_FLAG_POSITION != 0
}

func (m *MeshDocument) NormalsEnabled() bool {
	return m.Flags&VERTEX_FLAG_NORMAL != 0
}

func (m *MeshDocument) ColorsEnabled() bool {
	return m.Flags&VERTEX_FLAG_COLOR != 0
}

// BonesEnabled requires both the weight and the index bit; the format never
// stores one without the other.
func (m *MeshDocument) BonesEnabled() bool {
	return m.Flags&VERTEX_FLAG_BONE_WEIGHT != 0 && m.Flags&VERTEX_FLAG_BONE_INDEX != 0
}

func (m *MeshDocument) TangentsEnabled() bool {
	return m.Flags&VERTEX_FLAG_TANGENT != 0
}

// UVEnabled reports whether UV channel ch (0..3) is present.
func (m *MeshDocument) UVEnabled(ch int) bool {
	return m.Flags&uvFlags[ch] != 0
}

func (m *MeshDocument) VertexCount() int {
	return len(m.Vertices)
}

func (m *MeshDocument) FaceCount() int {
	return len(m.Faces)
}

// ComputeBoundingBox recomputes the bounding box as the component-wise
// min/max over all vertex positions. An empty document yields zero boxes.
func (m *MeshDocument) ComputeBoundingBox() {
	if len(m.Vertices) == 0 {
		m.BoundingBoxMin = vec3.T{}
		m.BoundingBoxMax = vec3.T{}
		return
	}
	min := vec3.T{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	max := vec3.T{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	for i := range m.Vertices {
		p := &m.Vertices[i].Position
		for c := 0; c < 3; c++ {
			if p[c] < min[c] {
				min[c] = p[c]
			}
			if p[c] > max[c] {
				max[c] = p[c]
			}
		}
	}
	m.BoundingBoxMin = min
	m.BoundingBoxMax = max
}

// bonePositions builds the id -> first-table-position index used by the
// encoder's inverse bone resolution. Built once per encode call.
func (m *MeshDocument) bonePositions() map[uint16]int {
	pos := make(map[uint16]int, len(m.Bones))
	for i, id := range m.Bones {
		if _, ok := pos[id]; !ok {
			pos[id] = i
		}
	}
	return pos
}
