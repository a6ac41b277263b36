package zms

import (
	"math"
	"sort"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"github.com/flywave/go3d/vec4"
)

// Influence is one (deform group, weight) pair on an underlying point.
type Influence struct {
	Group  int
	Weight float32
}

// Point is one underlying mesh point of the external attribute source.
// Several triangle corners may reference the same point.
type Point struct {
	Position   vec3.T
	Normal     vec3.T
	Influences []Influence
}

// Corner is one triangle corner: a point reference plus the per-corner
// attributes that may differ between triangles sharing the point.
type Corner struct {
	Point    int
	UV       [4]vec2.T
	HasUV    [4]bool
	Color    vec4.T
	HasColor bool
}

type Triangle [3]Corner

// weldDigits is the fixed decimal precision of the dedup key. Attribute
// values closer than this are treated as equal on purpose, so hairline
// float differences do not split vertices.
const weldDigits = 1e6

const missingAttr = math.MinInt64

// weldKey identifies one distinct output vertex: the underlying point plus
// the rounded per-corner attributes. Equal keys collapse to one vertex.
type weldKey struct {
	point int
	uv    [8]int64
	color [4]int64
}

func roundAttr(v float32) int64 {
	return int64(math.Round(float64(v) * weldDigits))
}

// Weld consumes per-corner attribute streams and fills the document's
// vertex buffer and face list. The file format stores one UV/color per
// vertex, not per corner, so any seam forces a point split; welding
// collapses corners whose keys match and emits a fresh vertex on first
// sight of a key. Emission order follows first-occurrence order of the
// input corners.
//
// The document's Flags select which attributes are sampled, its Bones table
// (when set) maps influence groups to bone ids, and its Version bounds the
// vertex and face counts. The bounding box is recomputed from the emitted
// positions.
func Weld(ms *MeshDocument, points []Point, tris []Triangle) error {
	lay := layoutByVersion(ms.Version)
	if lay == nil {
		return &UnsupportedVersionError{Identifier: ms.Identifier}
	}

	vertexMap := make(map[weldKey]uint32)
	for _, tri := range tris {
		if uint64(len(ms.Faces)) >= uint64(lay.countLimit) {
			return &CapacityExceededError{Field: "face", Count: len(ms.Faces) + 1, Limit: lay.countLimit}
		}
		var face [3]uint32
		for c := range tri {
			key := cornerKey(ms, &tri[c])
			idx, ok := vertexMap[key]
			if !ok {
				if uint64(len(ms.Vertices)) >= uint64(lay.countLimit) {
					return &CapacityExceededError{Field: "vertex", Count: len(ms.Vertices) + 1, Limit: lay.countLimit}
				}
				idx = uint32(len(ms.Vertices))
				ms.Vertices = append(ms.Vertices, emitVertex(ms, points, &tri[c]))
				vertexMap[key] = idx
			}
			face[c] = idx
		}
		ms.Faces = append(ms.Faces, face)
	}
	ms.ComputeBoundingBox()
	return nil
}

func cornerKey(ms *MeshDocument, c *Corner) weldKey {
	key := weldKey{point: c.Point}
	for ch := 0; ch < 4; ch++ {
		if ms.UVEnabled(ch) && c.HasUV[ch] {
			key.uv[ch*2] = roundAttr(c.UV[ch][0])
			key.uv[ch*2+1] = roundAttr(c.UV[ch][1])
		} else {
			key.uv[ch*2] = missingAttr
			key.uv[ch*2+1] = missingAttr
		}
	}
	if ms.ColorsEnabled() && c.HasColor {
		for i := 0; i < 4; i++ {
			key.color[i] = roundAttr(c.Color[i])
		}
	} else {
		for i := 0; i < 4; i++ {
			key.color[i] = missingAttr
		}
	}
	return key
}

func emitVertex(ms *MeshDocument, points []Point, c *Corner) Vertex {
	pt := &points[c.Point]
	v := Vertex{Position: pt.Position}
	if ms.NormalsEnabled() {
		v.Normal = pt.Normal
	}
	if ms.ColorsEnabled() {
		if c.HasColor {
			v.Color = c.Color
		} else {
			v.Color = vec4.T{1, 1, 1, 1}
		}
	}
	for ch := 0; ch < 4; ch++ {
		if ms.UVEnabled(ch) && c.HasUV[ch] {
			// The file stores V with a flipped axis.
			v.UV[ch] = vec2.T{c.UV[ch][0], 1 - c.UV[ch][1]}
		}
	}
	if ms.BonesEnabled() {
		v.BoneWeights, v.BoneIndices = topInfluences(pt.Influences, ms.Bones)
	}
	return v
}

// topInfluences keeps the four highest-weight influences, re-normalized to
// sum to 1.0 and zero-padded. A zero weight total falls back to a divisor
// of 1.0, leaving four zero weights on index 0 as the original tooling did.
// Group ids map through the bone table when one is supplied.
func topInfluences(infs []Influence, bones []uint16) (weights vec4.T, ids [4]uint16) {
	sorted := append([]Influence(nil), infs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight > sorted[j].Weight
	})
	if len(sorted) > 4 {
		sorted = sorted[:4]
	}
	var total float32
	for _, inf := range sorted {
		total += inf.Weight
	}
	if total == 0 {
		total = 1
	}
	for i, inf := range sorted {
		weights[i] = inf.Weight / total
		if len(bones) > 0 && inf.Group >= 0 && inf.Group < len(bones) {
			ids[i] = bones[inf.Group]
		} else {
			ids[i] = uint16(inf.Group)
		}
	}
	// Padding slots hold the id at table position 0, which is what the
	// encoded raw position 0 resolves back to.
	for i := len(sorted); i < 4; i++ {
		if len(bones) > 0 {
			ids[i] = bones[0]
		}
	}
	return weights, ids
}
