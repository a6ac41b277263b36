package zms

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func readLittleByte(rd io.Reader, v interface{}) error {
	return binary.Read(rd, binary.LittleEndian, v)
}

func writeLittleByte(wt io.Writer, v interface{}) error {
	return binary.Write(wt, binary.LittleEndian, v)
}

// readField wraps a starved read into a TruncatedInputError naming the field
// the cursor was on. The format carries no redundant lengths, so this is the
// only corruption signal a truncated file can produce.
func readField(rd io.Reader, field string, v interface{}) error {
	if err := binary.Read(rd, binary.LittleEndian, v); err != nil {
		return &TruncatedInputError{Field: field, Err: err}
	}
	return nil
}

func readIdentifier(rd io.Reader) (string, error) {
	var b [1]byte
	var tag []byte
	for {
		if _, err := io.ReadFull(rd, b[:]); err != nil {
			return "", &TruncatedInputError{Field: "identifier", Err: err}
		}
		if b[0] == 0 {
			return string(tag), nil
		}
		tag = append(tag, b[0])
		if len(tag) > len(ZMS_SIGNATURE_V5) {
			// Longer than any known tag, not a ZMS stream.
			return string(tag), nil
		}
	}
}

// MeshUnMarshal decodes one ZMS stream into a MeshDocument. The identifier
// selects the layout; parsing is strictly sequential over a forward cursor.
func MeshUnMarshal(rd io.Reader) (*MeshDocument, error) {
	id, err := readIdentifier(rd)
	if err != nil {
		return nil, err
	}
	lay := layoutByIdentifier(id)
	if lay == nil {
		return nil, &UnsupportedVersionError{Identifier: id}
	}
	ms := &MeshDocument{Identifier: id, Version: lay.version}
	if err := readField(rd, "flags", &ms.Flags); err != nil {
		return nil, err
	}
	if err := readField(rd, "bounding box min", ms.BoundingBoxMin[:]); err != nil {
		return nil, err
	}
	if err := readField(rd, "bounding box max", ms.BoundingBoxMax[:]); err != nil {
		return nil, err
	}
	if lay.wideCounts {
		err = meshBodyUnMarshalLegacy(rd, ms, lay)
	} else {
		err = meshBodyUnMarshalModern(rd, ms, lay)
	}
	if err != nil {
		return nil, err
	}
	if err := validateFaces(ms); err != nil {
		return nil, err
	}
	return ms, nil
}

// meshBodyUnMarshalLegacy reads the revision 5/6 body: 32-bit counts, a
// (dummy index, id) bone lookup table, a uint32 running id before every
// array element and positions scaled by 100 in the file.
func meshBodyUnMarshalLegacy(rd io.Reader, ms *MeshDocument, lay *revLayout) error {
	var boneCount uint32
	if err := readField(rd, "bone count", &boneCount); err != nil {
		return err
	}
	ms.Bones = make([]uint16, boneCount)
	for i := range ms.Bones {
		var entry [2]uint32 // dummy running index, bone id
		if err := readField(rd, "bone table entry", entry[:]); err != nil {
			return err
		}
		ms.Bones[i] = uint16(entry[1])
	}

	var vertCount uint32
	if err := readField(rd, "vertex count", &vertCount); err != nil {
		return err
	}
	ms.Vertices = make([]Vertex, vertCount)

	var id uint32
	if ms.PositionsEnabled() {
		for i := range ms.Vertices {
			if err := readField(rd, "vertex id", &id); err != nil {
				return err
			}
			if err := readField(rd, "position", ms.Vertices[i].Position[:]); err != nil {
				return err
			}
			for c := 0; c < 3; c++ {
				ms.Vertices[i].Position[c] /= lay.positionScale
			}
		}
	}
	if ms.NormalsEnabled() {
		for i := range ms.Vertices {
			if err := readField(rd, "vertex id", &id); err != nil {
				return err
			}
			if err := readField(rd, "normal", ms.Vertices[i].Normal[:]); err != nil {
				return err
			}
		}
	}
	if ms.ColorsEnabled() {
		for i := range ms.Vertices {
			if err := readField(rd, "vertex id", &id); err != nil {
				return err
			}
			if err := readField(rd, "color", ms.Vertices[i].Color[:]); err != nil {
				return err
			}
		}
	}
	if ms.BonesEnabled() {
		for i := range ms.Vertices {
			if err := readField(rd, "vertex id", &id); err != nil {
				return err
			}
			if err := readField(rd, "bone weights", ms.Vertices[i].BoneWeights[:]); err != nil {
				return err
			}
			var raw [4]uint32
			if err := readField(rd, "bone indices", raw[:]); err != nil {
				return err
			}
			for k, r := range raw {
				ms.Vertices[i].BoneIndices[k] = ms.resolveBoneRef(i, r)
			}
		}
	}
	if ms.TangentsEnabled() {
		for i := range ms.Vertices {
			if err := readField(rd, "vertex id", &id); err != nil {
				return err
			}
			if err := readField(rd, "tangent", ms.Vertices[i].Tangent[:]); err != nil {
				return err
			}
		}
	}
	for ch := 0; ch < 4; ch++ {
		if !ms.UVEnabled(ch) {
			continue
		}
		for i := range ms.Vertices {
			if err := readField(rd, "vertex id", &id); err != nil {
				return err
			}
			if err := readField(rd, "uv", ms.Vertices[i].UV[ch][:]); err != nil {
				return err
			}
		}
	}

	var faceCount uint32
	if err := readField(rd, "face count", &faceCount); err != nil {
		return err
	}
	ms.Faces = make([][3]uint32, faceCount)
	for i := range ms.Faces {
		if err := readField(rd, "face id", &id); err != nil {
			return err
		}
		if err := readField(rd, "face", ms.Faces[i][:]); err != nil {
			return err
		}
	}

	if lay.hasMaterials {
		var matCount uint32
		if err := readField(rd, "material count", &matCount); err != nil {
			return err
		}
		ms.Materials = make([]uint16, matCount)
		for i := range ms.Materials {
			var entry [2]uint32 // running index, material id
			if err := readField(rd, "material", entry[:]); err != nil {
				return err
			}
			ms.Materials[i] = uint16(entry[1])
		}
	}
	return nil
}

// meshBodyUnMarshalModern reads the revision 7/8 body: 16-bit counts, a
// direct bone id list, unprefixed attribute arrays and unscaled positions.
func meshBodyUnMarshalModern(rd io.Reader, ms *MeshDocument, lay *revLayout) error {
	var boneCount uint16
	if err := readField(rd, "bone count", &boneCount); err != nil {
		return err
	}
	ms.Bones = make([]uint16, boneCount)
	if err := readField(rd, "bone list", ms.Bones); err != nil {
		return err
	}

	var vertCount uint16
	if err := readField(rd, "vertex count", &vertCount); err != nil {
		return err
	}
	ms.Vertices = make([]Vertex, vertCount)

	if ms.PositionsEnabled() {
		for i := range ms.Vertices {
			if err := readField(rd, "position", ms.Vertices[i].Position[:]); err != nil {
				return err
			}
		}
	}
	if ms.NormalsEnabled() {
		for i := range ms.Vertices {
			if err := readField(rd, "normal", ms.Vertices[i].Normal[:]); err != nil {
				return err
			}
		}
	}
	if ms.ColorsEnabled() {
		for i := range ms.Vertices {
			if err := readField(rd, "color", ms.Vertices[i].Color[:]); err != nil {
				return err
			}
		}
	}
	if ms.BonesEnabled() {
		for i := range ms.Vertices {
			if err := readField(rd, "bone weights", ms.Vertices[i].BoneWeights[:]); err != nil {
				return err
			}
			var raw [4]uint16
			if err := readField(rd, "bone indices", raw[:]); err != nil {
				return err
			}
			for k, r := range raw {
				ms.Vertices[i].BoneIndices[k] = ms.resolveBoneRef(i, uint32(r))
			}
		}
	}
	if ms.TangentsEnabled() {
		for i := range ms.Vertices {
			if err := readField(rd, "tangent", ms.Vertices[i].Tangent[:]); err != nil {
				return err
			}
		}
	}
	for ch := 0; ch < 4; ch++ {
		if !ms.UVEnabled(ch) {
			continue
		}
		for i := range ms.Vertices {
			if err := readField(rd, "uv", ms.Vertices[i].UV[ch][:]); err != nil {
				return err
			}
		}
	}

	var faceCount uint16
	if err := readField(rd, "face count", &faceCount); err != nil {
		return err
	}
	ms.Faces = make([][3]uint32, faceCount)
	for i := range ms.Faces {
		var face [3]uint16
		if err := readField(rd, "face", face[:]); err != nil {
			return err
		}
		ms.Faces[i] = [3]uint32{uint32(face[0]), uint32(face[1]), uint32(face[2])}
	}

	var matCount uint16
	if err := readField(rd, "material count", &matCount); err != nil {
		return err
	}
	ms.Materials = make([]uint16, matCount)
	if err := readField(rd, "materials", ms.Materials); err != nil {
		return err
	}

	var stripCount uint16
	if err := readField(rd, "strip count", &stripCount); err != nil {
		return err
	}
	ms.Strips = make([]uint16, stripCount)
	if err := readField(rd, "strips", ms.Strips); err != nil {
		return err
	}

	if lay.hasPool {
		if err := readField(rd, "pool", &ms.Pool); err != nil {
			return err
		}
	}
	return nil
}

// resolveBoneRef maps a raw table position to a bone id. Out-of-range
// positions resolve to id 0; the format tolerates a zeroed reference, so
// this is a warning rather than an abort.
func (ms *MeshDocument) resolveBoneRef(vert int, raw uint32) uint16 {
	if int(raw) < len(ms.Bones) {
		return ms.Bones[raw]
	}
	if raw != 0 {
		ms.Warnings = append(ms.Warnings,
			fmt.Sprintf("vertex %d references bone table position %d of %d", vert, raw, len(ms.Bones)))
	}
	return 0
}

func validateFaces(ms *MeshDocument) error {
	n := uint32(len(ms.Vertices))
	for i, f := range ms.Faces {
		for _, idx := range f {
			if idx >= n {
				return &DanglingFaceIndexError{Face: i, Index: idx, VertexCount: len(ms.Vertices)}
			}
		}
	}
	return nil
}

// validateCapacity checks every count against the count-field width of the
// target revision. Runs before any byte is written so a failed encode leaves
// no partial output.
func validateCapacity(ms *MeshDocument, lay *revLayout) error {
	counts := []struct {
		field string
		n     int
	}{
		{"bone", len(ms.Bones)},
		{"vertex", len(ms.Vertices)},
		{"face", len(ms.Faces)},
		{"material", len(ms.Materials)},
		{"strip", len(ms.Strips)},
	}
	for _, c := range counts {
		if uint64(c.n) > uint64(lay.countLimit) {
			return &CapacityExceededError{Field: c.field, Count: c.n, Limit: lay.countLimit}
		}
	}
	return nil
}

// MeshMarshal encodes a MeshDocument per the layout of its Version field.
// All validation happens up front; nothing is written on a fatal error.
func MeshMarshal(wt io.Writer, ms *MeshDocument) error {
	lay := layoutByVersion(ms.Version)
	if lay == nil {
		return &UnsupportedVersionError{Identifier: ms.Identifier}
	}
	if err := validateCapacity(ms, lay); err != nil {
		return err
	}
	if err := validateFaces(ms); err != nil {
		return err
	}

	if _, err := wt.Write(append([]byte(lay.identifier), 0)); err != nil {
		return fmt.Errorf("zms: write identifier failed: %w", err)
	}
	if err := writeLittleByte(wt, ms.Flags); err != nil {
		return err
	}
	if err := writeLittleByte(wt, ms.BoundingBoxMin[:]); err != nil {
		return err
	}
	if err := writeLittleByte(wt, ms.BoundingBoxMax[:]); err != nil {
		return err
	}
	if lay.wideCounts {
		return meshBodyMarshalLegacy(wt, ms, lay)
	}
	return meshBodyMarshalModern(wt, ms, lay)
}

func meshBodyMarshalLegacy(wt io.Writer, ms *MeshDocument, lay *revLayout) error {
	if err := writeLittleByte(wt, uint32(len(ms.Bones))); err != nil {
		return err
	}
	for i, id := range ms.Bones {
		if err := writeLittleByte(wt, [2]uint32{uint32(i), uint32(id)}); err != nil {
			return err
		}
	}

	if err := writeLittleByte(wt, uint32(len(ms.Vertices))); err != nil {
		return err
	}
	bonePos := ms.bonePositions()

	if ms.PositionsEnabled() {
		for i := range ms.Vertices {
			if err := writeLittleByte(wt, uint32(i)); err != nil {
				return err
			}
			p := ms.Vertices[i].Position
			for c := 0; c < 3; c++ {
				p[c] *= lay.positionScale
			}
			if err := writeLittleByte(wt, p[:]); err != nil {
				return err
			}
		}
	}
	if ms.NormalsEnabled() {
		for i := range ms.Vertices {
			if err := writeLittleByte(wt, uint32(i)); err != nil {
				return err
			}
			if err := writeLittleByte(wt, ms.Vertices[i].Normal[:]); err != nil {
				return err
			}
		}
	}
	if ms.ColorsEnabled() {
		for i := range ms.Vertices {
			if err := writeLittleByte(wt, uint32(i)); err != nil {
				return err
			}
			if err := writeLittleByte(wt, ms.Vertices[i].Color[:]); err != nil {
				return err
			}
		}
	}
	if ms.BonesEnabled() {
		for i := range ms.Vertices {
			if err := writeLittleByte(wt, uint32(i)); err != nil {
				return err
			}
			if err := writeLittleByte(wt, ms.Vertices[i].BoneWeights[:]); err != nil {
				return err
			}
			var raw [4]uint32
			for k, id := range ms.Vertices[i].BoneIndices {
				raw[k] = uint32(bonePos[id])
			}
			if err := writeLittleByte(wt, raw[:]); err != nil {
				return err
			}
		}
	}
	if ms.TangentsEnabled() {
		for i := range ms.Vertices {
			if err := writeLittleByte(wt, uint32(i)); err != nil {
				return err
			}
			if err := writeLittleByte(wt, ms.Vertices[i].Tangent[:]); err != nil {
				return err
			}
		}
	}
	for ch := 0; ch < 4; ch++ {
		if !ms.UVEnabled(ch) {
			continue
		}
		for i := range ms.Vertices {
			if err := writeLittleByte(wt, uint32(i)); err != nil {
				return err
			}
			if err := writeLittleByte(wt, ms.Vertices[i].UV[ch][:]); err != nil {
				return err
			}
		}
	}

	if err := writeLittleByte(wt, uint32(len(ms.Faces))); err != nil {
		return err
	}
	for i := range ms.Faces {
		if err := writeLittleByte(wt, uint32(i)); err != nil {
			return err
		}
		if err := writeLittleByte(wt, ms.Faces[i][:]); err != nil {
			return err
		}
	}

	if lay.hasMaterials {
		if err := writeLittleByte(wt, uint32(len(ms.Materials))); err != nil {
			return err
		}
		for i, mat := range ms.Materials {
			if err := writeLittleByte(wt, [2]uint32{uint32(i), uint32(mat)}); err != nil {
				return err
			}
		}
	}
	return nil
}

func meshBodyMarshalModern(wt io.Writer, ms *MeshDocument, lay *revLayout) error {
	if err := writeLittleByte(wt, uint16(len(ms.Bones))); err != nil {
		return err
	}
	if err := writeLittleByte(wt, ms.Bones); err != nil {
		return err
	}

	if err := writeLittleByte(wt, uint16(len(ms.Vertices))); err != nil {
		return err
	}
	bonePos := ms.bonePositions()

	if ms.PositionsEnabled() {
		for i := range ms.Vertices {
			if err := writeLittleByte(wt, ms.Vertices[i].Position[:]); err != nil {
				return err
			}
		}
	}
	if ms.NormalsEnabled() {
		for i := range ms.Vertices {
			if err := writeLittleByte(wt, ms.Vertices[i].Normal[:]); err != nil {
				return err
			}
		}
	}
	if ms.ColorsEnabled() {
		for i := range ms.Vertices {
			if err := writeLittleByte(wt, ms.Vertices[i].Color[:]); err != nil {
				return err
			}
		}
	}
	if ms.BonesEnabled() {
		for i := range ms.Vertices {
			if err := writeLittleByte(wt, ms.Vertices[i].BoneWeights[:]); err != nil {
				return err
			}
			var raw [4]uint16
			for k, id := range ms.Vertices[i].BoneIndices {
				raw[k] = uint16(bonePos[id])
			}
			if err := writeLittleByte(wt, raw[:]); err != nil {
				return err
			}
		}
	}
	if ms.TangentsEnabled() {
		for i := range ms.Vertices {
			if err := writeLittleByte(wt, ms.Vertices[i].Tangent[:]); err != nil {
				return err
			}
		}
	}
	for ch := 0; ch < 4; ch++ {
		if !ms.UVEnabled(ch) {
			continue
		}
		for i := range ms.Vertices {
			if err := writeLittleByte(wt, ms.Vertices[i].UV[ch][:]); err != nil {
				return err
			}
		}
	}

	if err := writeLittleByte(wt, uint16(len(ms.Faces))); err != nil {
		return err
	}
	for i := range ms.Faces {
		face := [3]uint16{uint16(ms.Faces[i][0]), uint16(ms.Faces[i][1]), uint16(ms.Faces[i][2])}
		if err := writeLittleByte(wt, face[:]); err != nil {
			return err
		}
	}

	if err := writeLittleByte(wt, uint16(len(ms.Materials))); err != nil {
		return err
	}
	if err := writeLittleByte(wt, ms.Materials); err != nil {
		return err
	}
	if err := writeLittleByte(wt, uint16(len(ms.Strips))); err != nil {
		return err
	}
	if err := writeLittleByte(wt, ms.Strips); err != nil {
		return err
	}
	if lay.hasPool {
		if err := writeLittleByte(wt, ms.Pool); err != nil {
			return err
		}
	}
	return nil
}

func MeshReadFrom(path string) (*MeshDocument, error) {
	f, e := os.Open(path)
	if e != nil {
		return nil, e
	}
	defer f.Close()
	return MeshUnMarshal(f)
}

// MeshWriteTo serializes into memory first so a failed encode never leaves a
// partial file behind.
func MeshWriteTo(path string, ms *MeshDocument) error {
	var buf bytes.Buffer
	if err := MeshMarshal(&buf, ms); err != nil {
		return err
	}
	os.MkdirAll(filepath.Dir(path), os.ModePerm)
	f, e := os.Create(path)
	if e != nil {
		return e
	}
	defer f.Close()
	_, e = f.Write(buf.Bytes())
	return e
}
