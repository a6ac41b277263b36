package zms

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/flywave/go3d/vec2"

	"github.com/qmuntal/gltf"
)

const GLTF_VERSION = "2.0"

// ZmsToGltf converts decoded mesh documents into one glTF document. This is
// the scene-consumer side of the codec: how the document becomes renderable
// objects is up to the glTF consumer.
func ZmsToGltf(msts []*MeshDocument) (*gltf.Document, error) {
	doc := CreateDoc()
	for _, ms := range msts {
		if err := BuildGltf(doc, ms); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func CreateDoc() *gltf.Document {
	doc := &gltf.Document{}
	doc.Asset.Version = GLTF_VERSION
	srcIndex := uint32(0)
	doc.Scene = &srcIndex
	doc.Scenes = append(doc.Scenes, &gltf.Scene{})
	doc.Buffers = append(doc.Buffers, &gltf.Buffer{})
	return doc
}

type calcSizeWriter struct {
	writer io.Writer
	Size   int
}

func (w *calcSizeWriter) Write(p []byte) (n int, err error) {
	si := len(p)
	w.writer.Write(p)
	w.Size += int(si)
	return si, nil
}

func (w *calcSizeWriter) Bytes() []byte {
	return w.writer.(*bytes.Buffer).Bytes()
}

func newSizeWriter() calcSizeWriter {
	wt := bytes.NewBuffer([]byte{})
	return calcSizeWriter{Size: int(0), writer: wt}
}

func calcPadding(offset, paddingUnit int) int {
	padding := offset % paddingUnit
	if padding != 0 {
		padding = paddingUnit - padding
	}
	return padding
}

func GetGltfBinary(doc *gltf.Document, paddingUnit int) ([]byte, error) {
	w := newSizeWriter()
	enc := gltf.NewEncoder(w.writer)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	padding := calcPadding(w.Size, paddingUnit)
	if padding == 0 {
		return w.Bytes(), nil
	}
	pad := make([]byte, padding)
	for i := range pad {
		pad[i] = 0x20
	}
	w.Write(pad)
	return w.Bytes(), nil
}

// BuildGltf appends one mesh document to the glTF document as a single
// primitive mesh with position, optional normal and optional first UV
// channel. The file-side V flip is undone so textures keep their
// orientation.
func BuildGltf(doc *gltf.Document, ms *MeshDocument) error {
	if err := validateFaces(ms); err != nil {
		return err
	}
	buffer := doc.Buffers[0]
	bvIndex := uint32(len(doc.BufferViews))
	startLen := buffer.ByteLength

	var bt []byte
	buf := bytes.NewBuffer(bt)

	indices := &gltf.BufferView{}
	indices.Buffer = 0
	indices.ByteOffset = startLen
	for _, f := range ms.Faces {
		binary.Write(buf, binary.LittleEndian, f)
	}
	indices.ByteLength = uint32(buf.Len())
	doc.BufferViews = append(doc.BufferViews, indices)

	positions := &gltf.BufferView{}
	positions.Buffer = 0
	positions.ByteOffset = uint32(buf.Len()) + startLen
	for i := range ms.Vertices {
		binary.Write(buf, binary.LittleEndian, ms.Vertices[i].Position[:])
	}
	positions.ByteLength = uint32(buf.Len()) + startLen - positions.ByteOffset
	bvPos := uint32(len(doc.BufferViews))
	doc.BufferViews = append(doc.BufferViews, positions)

	normalView := &gltf.BufferView{}
	bvNl := uint32(len(doc.BufferViews))
	if ms.NormalsEnabled() {
		normalView.Buffer = 0
		normalView.ByteOffset = uint32(buf.Len()) + startLen
		for i := range ms.Vertices {
			binary.Write(buf, binary.LittleEndian, ms.Vertices[i].Normal[:])
		}
		normalView.ByteLength = uint32(buf.Len()) + startLen - normalView.ByteOffset
		doc.BufferViews = append(doc.BufferViews, normalView)
	}

	texView := &gltf.BufferView{}
	bvTex := uint32(len(doc.BufferViews))
	if ms.UVEnabled(0) {
		texView.Buffer = 0
		texView.ByteOffset = uint32(buf.Len()) + startLen
		for i := range ms.Vertices {
			uv := vec2.T{ms.Vertices[i].UV[0][0], 1 - ms.Vertices[i].UV[0][1]}
			binary.Write(buf, binary.LittleEndian, uv[:])
		}
		texView.ByteLength = uint32(buf.Len()) + startLen - texView.ByteOffset
		doc.BufferViews = append(doc.BufferViews, texView)
	}

	buffer.ByteLength += uint32(buf.Len())
	buffer.Data = append(buffer.Data, buf.Bytes()...)

	ps := &gltf.Primitive{Mode: gltf.PrimitiveTriangles}
	ps.Attributes = make(gltf.Attribute)

	accIndex := uint32(len(doc.Accessors))
	indexacc := &gltf.Accessor{}
	indexacc.ComponentType = gltf.ComponentUint
	indexacc.Type = gltf.AccessorScalar
	indexacc.Count = uint32(len(ms.Faces)) * 3
	indexacc.BufferView = &bvIndex
	doc.Accessors = append(doc.Accessors, indexacc)
	ps.Indices = &accIndex

	posacc := &gltf.Accessor{}
	posacc.ComponentType = gltf.ComponentFloat
	posacc.Type = gltf.AccessorVec3
	posacc.Count = uint32(len(ms.Vertices))
	posacc.BufferView = &bvPos
	posacc.Min = []float32{ms.BoundingBoxMin[0], ms.BoundingBoxMin[1], ms.BoundingBoxMin[2]}
	posacc.Max = []float32{ms.BoundingBoxMax[0], ms.BoundingBoxMax[1], ms.BoundingBoxMax[2]}
	ps.Attributes["POSITION"] = uint32(len(doc.Accessors))
	doc.Accessors = append(doc.Accessors, posacc)

	if ms.NormalsEnabled() {
		nlacc := &gltf.Accessor{}
		nlacc.ComponentType = gltf.ComponentFloat
		nlacc.Type = gltf.AccessorVec3
		nlacc.Count = uint32(len(ms.Vertices))
		nlacc.BufferView = &bvNl
		ps.Attributes["NORMAL"] = uint32(len(doc.Accessors))
		doc.Accessors = append(doc.Accessors, nlacc)
	}

	if ms.UVEnabled(0) {
		texacc := &gltf.Accessor{}
		texacc.ComponentType = gltf.ComponentFloat
		texacc.Type = gltf.AccessorVec2
		texacc.Count = uint32(len(ms.Vertices))
		texacc.BufferView = &bvTex
		ps.Attributes["TEXCOORD_0"] = uint32(len(doc.Accessors))
		doc.Accessors = append(doc.Accessors, texacc)
	}

	mesh := &gltf.Mesh{}
	mesh.Primitives = append(mesh.Primitives, ps)

	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)))
	meshId := uint32(len(doc.Meshes))
	doc.Nodes = append(doc.Nodes, &gltf.Node{Mesh: &meshId})
	doc.Meshes = append(doc.Meshes, mesh)
	return nil
}
