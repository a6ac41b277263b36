package zms

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"github.com/flywave/go3d/vec4"

	"github.com/qmuntal/gltf"
)

// GltfToZms converts a glTF document into a ZMS mesh document. The glTF
// primitives act as the welder's external attribute source: per-vertex
// attribute streams are re-expressed as triangle corners and welded into
// the indexed buffer the file format wants.
type GltfToZms struct {
}

func (g *GltfToZms) Convert(path string, version uint32) (*MeshDocument, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, err
	}
	return g.ConvertDocument(doc, version)
}

func (g *GltfToZms) ConvertDocument(doc *gltf.Document, version uint32) (*MeshDocument, error) {
	ms := NewMeshDocument(version)
	if layoutByVersion(version) == nil {
		return nil, &UnsupportedVersionError{Identifier: ms.Identifier}
	}

	var points []Point
	var tris []Triangle
	for _, mh := range doc.Meshes {
		for _, ps := range mh.Primitives {
			base := len(points)
			idx, ok := ps.Attributes["POSITION"]
			if !ok {
				continue
			}
			positions, err := readVec3Accessor(doc, idx)
			if err != nil {
				return nil, err
			}
			for _, p := range positions {
				points = append(points, Point{Position: p})
			}

			var normals []vec3.T
			if idx, ok := ps.Attributes["NORMAL"]; ok {
				if normals, err = readVec3Accessor(doc, idx); err != nil {
					return nil, err
				}
				ms.Flags |= VERTEX_FLAG_NORMAL
				for i := range normals {
					points[base+i].Normal = normals[i]
				}
			}

			var texCoords []vec2.T
			if idx, ok := ps.Attributes["TEXCOORD_0"]; ok {
				if texCoords, err = readVec2Accessor(doc, idx); err != nil {
					return nil, err
				}
				ms.Flags |= VERTEX_FLAG_UV1
			}

			skinned, err := readSkinAccessors(doc, ps, points[base:])
			if err != nil {
				return nil, err
			}
			if skinned {
				ms.Flags |= VERTEX_FLAG_BONE_WEIGHT | VERTEX_FLAG_BONE_INDEX
			}

			if ps.Indices == nil {
				continue
			}
			indices, err := readIndexAccessor(doc, *ps.Indices)
			if err != nil {
				return nil, err
			}
			for i := 0; i+2 < len(indices); i += 3 {
				var tri Triangle
				for c := 0; c < 3; c++ {
					pt := base + int(indices[i+c])
					tri[c].Point = pt
					if texCoords != nil {
						tri[c].UV[0] = texCoords[indices[i+c]]
						tri[c].HasUV[0] = true
					}
				}
				tris = append(tris, tri)
			}
		}
	}

	if err := Weld(ms, points, tris); err != nil {
		return nil, err
	}
	return ms, nil
}

func accessorBytes(doc *gltf.Document, acc *gltf.Accessor) ([]byte, error) {
	if acc.BufferView == nil {
		return nil, fmt.Errorf("zms: accessor without buffer view")
	}
	view := doc.BufferViews[int(*acc.BufferView)]
	buff := doc.Buffers[int(view.Buffer)]
	start := int(view.ByteOffset) + int(acc.ByteOffset)
	end := int(view.ByteOffset) + int(view.ByteLength)
	if start > len(buff.Data) || end > len(buff.Data) {
		return nil, fmt.Errorf("zms: accessor range outside buffer")
	}
	return buff.Data[start:end], nil
}

func readVec3Accessor(doc *gltf.Document, idx uint32) ([]vec3.T, error) {
	acc := doc.Accessors[int(idx)]
	bt, err := accessorBytes(doc, acc)
	if err != nil {
		return nil, err
	}
	out := make([]vec3.T, acc.Count)
	bf := bytes.NewBuffer(bt)
	for i := range out {
		if err := binary.Read(bf, binary.LittleEndian, out[i][:]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readVec2Accessor(doc *gltf.Document, idx uint32) ([]vec2.T, error) {
	acc := doc.Accessors[int(idx)]
	bt, err := accessorBytes(doc, acc)
	if err != nil {
		return nil, err
	}
	out := make([]vec2.T, acc.Count)
	bf := bytes.NewBuffer(bt)
	for i := range out {
		if err := binary.Read(bf, binary.LittleEndian, out[i][:]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readIndexAccessor(doc *gltf.Document, idx uint32) ([]uint32, error) {
	acc := doc.Accessors[int(idx)]
	bt, err := accessorBytes(doc, acc)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, acc.Count)
	bf := bytes.NewBuffer(bt)
	for i := range out {
		switch acc.ComponentType {
		case gltf.ComponentUbyte:
			var v uint8
			if err := binary.Read(bf, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			out[i] = uint32(v)
		case gltf.ComponentUshort:
			var v uint16
			if err := binary.Read(bf, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			out[i] = uint32(v)
		default:
			var v uint32
			if err := binary.Read(bf, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			out[i] = v
		}
	}
	return out, nil
}

// readSkinAccessors folds JOINTS_0/WEIGHTS_0 into per-point influence
// lists. Zero-weight pairs are dropped; the welder re-normalizes the rest.
func readSkinAccessors(doc *gltf.Document, ps *gltf.Primitive, points []Point) (bool, error) {
	jidx, ok := ps.Attributes["JOINTS_0"]
	if !ok {
		return false, nil
	}
	widx, ok := ps.Attributes["WEIGHTS_0"]
	if !ok {
		return false, nil
	}

	jacc := doc.Accessors[int(jidx)]
	jbt, err := accessorBytes(doc, jacc)
	if err != nil {
		return false, err
	}
	joints := make([][4]uint16, jacc.Count)
	jbf := bytes.NewBuffer(jbt)
	for i := range joints {
		if jacc.ComponentType == gltf.ComponentUbyte {
			var v [4]uint8
			if err := binary.Read(jbf, binary.LittleEndian, v[:]); err != nil {
				return false, err
			}
			joints[i] = [4]uint16{uint16(v[0]), uint16(v[1]), uint16(v[2]), uint16(v[3])}
		} else {
			if err := binary.Read(jbf, binary.LittleEndian, joints[i][:]); err != nil {
				return false, err
			}
		}
	}

	wacc := doc.Accessors[int(widx)]
	wbt, err := accessorBytes(doc, wacc)
	if err != nil {
		return false, err
	}
	weights := make([]vec4.T, wacc.Count)
	wbf := bytes.NewBuffer(wbt)
	for i := range weights {
		if err := binary.Read(wbf, binary.LittleEndian, weights[i][:]); err != nil {
			return false, err
		}
	}

	for i := range points {
		if i >= len(joints) || i >= len(weights) {
			break
		}
		for k := 0; k < 4; k++ {
			if weights[i][k] > 0 {
				points[i].Influences = append(points[i].Influences,
					Influence{Group: int(joints[i][k]), Weight: weights[i][k]})
			}
		}
	}
	return true, nil
}
