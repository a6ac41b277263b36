package zms

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/flywave/go3d/vec2"
	"github.com/flywave/go3d/vec3"
	"github.com/flywave/go3d/vec4"
)

func quadPoints() []Point {
	return []Point{
		{Position: vec3.T{0, 0, 0}, Normal: vec3.T{0, 0, 1}},
		{Position: vec3.T{1, 0, 0}, Normal: vec3.T{0, 0, 1}},
		{Position: vec3.T{0, 1, 0}, Normal: vec3.T{0, 0, 1}},
		{Position: vec3.T{1, 1, 0}, Normal: vec3.T{0, 0, 1}},
	}
}

func uvCorner(point int, u, v float32) Corner {
	c := Corner{Point: point}
	c.UV[0] = vec2.T{u, v}
	c.HasUV[0] = true
	return c
}

func TestWeldDeterminism(t *testing.T) {
	ms := NewMeshDocument(V8)
	ms.Flags = VERTEX_FLAG_POSITION | VERTEX_FLAG_NORMAL | VERTEX_FLAG_UV1

	// Two triangles sharing the edge 1-2 with identical attributes on the
	// shared corners.
	tris := []Triangle{
		{uvCorner(0, 0, 0), uvCorner(1, 1, 0), uvCorner(2, 0, 1)},
		{uvCorner(2, 0, 1), uvCorner(1, 1, 0), uvCorner(3, 1, 1)},
	}
	if err := Weld(ms, quadPoints(), tris); err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if len(ms.Vertices) != 4 {
		t.Fatalf("vertex count = %d, want 4", len(ms.Vertices))
	}
	wantFaces := [][3]uint32{{0, 1, 2}, {2, 1, 3}}
	if !reflect.DeepEqual(ms.Faces, wantFaces) {
		t.Errorf("faces = %v, want %v", ms.Faces, wantFaces)
	}
}

func TestWeldSeamSplitting(t *testing.T) {
	ms := NewMeshDocument(V8)
	ms.Flags = VERTEX_FLAG_POSITION | VERTEX_FLAG_UV1

	// Same shared edge, but point 1 carries UV (0,0) in the first triangle
	// and (0.5,0) in the second. The discontinuity is beyond the rounding
	// precision, so the point must split.
	tris := []Triangle{
		{uvCorner(0, 0, 0), uvCorner(1, 0, 0), uvCorner(2, 0, 1)},
		{uvCorner(2, 0, 1), uvCorner(1, 0.5, 0), uvCorner(3, 1, 1)},
	}
	if err := Weld(ms, quadPoints(), tris); err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if len(ms.Vertices) != 5 {
		t.Fatalf("vertex count = %d, want 5", len(ms.Vertices))
	}
}

func TestWeldRoundingCollapse(t *testing.T) {
	ms := NewMeshDocument(V8)
	ms.Flags = VERTEX_FLAG_POSITION | VERTEX_FLAG_UV1

	// UVs differing by less than the 6-digit precision are the same key.
	tris := []Triangle{
		{uvCorner(0, 0, 0), uvCorner(1, 0.25, 0), uvCorner(2, 0, 1)},
		{uvCorner(2, 0, 1), uvCorner(1, 0.25+2e-8, 0), uvCorner(3, 1, 1)},
	}
	if err := Weld(ms, quadPoints(), tris); err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if len(ms.Vertices) != 4 {
		t.Fatalf("vertex count = %d, want 4", len(ms.Vertices))
	}
}

func TestWeldVFlip(t *testing.T) {
	ms := NewMeshDocument(V8)
	ms.Flags = VERTEX_FLAG_POSITION | VERTEX_FLAG_UV1

	tris := []Triangle{
		{uvCorner(0, 0.25, 0.25), uvCorner(1, 1, 0), uvCorner(2, 0, 1)},
	}
	if err := Weld(ms, quadPoints(), tris); err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if !vecsNear(ms.Vertices[0].UV[0][:], []float32{0.25, 0.75}) {
		t.Errorf("uv = %v, want [0.25 0.75]", ms.Vertices[0].UV[0])
	}
}

func TestWeldDefaultColor(t *testing.T) {
	ms := NewMeshDocument(V8)
	ms.Flags = VERTEX_FLAG_POSITION | VERTEX_FLAG_COLOR

	tris := []Triangle{
		{Corner{Point: 0}, Corner{Point: 1}, Corner{Point: 2}},
	}
	if err := Weld(ms, quadPoints(), tris); err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if ms.Vertices[0].Color != (vec4.T{1, 1, 1, 1}) {
		t.Errorf("color = %v, want opaque white", ms.Vertices[0].Color)
	}
}

func TestWeightNormalization(t *testing.T) {
	points := quadPoints()
	points[0].Influences = []Influence{{Group: 0, Weight: 0.3}, {Group: 1, Weight: 0.1}}
	points[1].Influences = []Influence{{Group: 1, Weight: 1}}
	points[2].Influences = []Influence{{Group: 1, Weight: 1}}

	ms := NewMeshDocument(V8)
	ms.Flags = VERTEX_FLAG_POSITION | VERTEX_FLAG_BONE_WEIGHT | VERTEX_FLAG_BONE_INDEX
	tris := []Triangle{
		{Corner{Point: 0}, Corner{Point: 1}, Corner{Point: 2}},
	}
	if err := Weld(ms, points, tris); err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if !vecsNear(ms.Vertices[0].BoneWeights[:], []float32{0.75, 0.25, 0, 0}) {
		t.Errorf("weights = %v, want [0.75 0.25 0 0]", ms.Vertices[0].BoneWeights)
	}
	if ms.Vertices[0].BoneIndices != [4]uint16{0, 1, 0, 0} {
		t.Errorf("indices = %v, want [0 1 0 0]", ms.Vertices[0].BoneIndices)
	}
}

func TestWeightTopFourSelection(t *testing.T) {
	points := quadPoints()
	points[0].Influences = []Influence{
		{Group: 0, Weight: 0.1},
		{Group: 1, Weight: 0.4},
		{Group: 2, Weight: 0.05},
		{Group: 3, Weight: 0.3},
		{Group: 4, Weight: 0.15},
	}

	ms := NewMeshDocument(V8)
	ms.Flags = VERTEX_FLAG_POSITION | VERTEX_FLAG_BONE_WEIGHT | VERTEX_FLAG_BONE_INDEX
	ms.Bones = []uint16{100, 101, 102, 103, 104}
	tris := []Triangle{
		{Corner{Point: 0}, Corner{Point: 1}, Corner{Point: 2}},
	}
	if err := Weld(ms, points, tris); err != nil {
		t.Fatalf("Weld: %v", err)
	}
	// Groups 1, 3, 4, 0 by descending weight, renormalized over 0.95 and
	// mapped through the bone table.
	if ms.Vertices[0].BoneIndices != [4]uint16{101, 103, 104, 100} {
		t.Errorf("indices = %v, want [101 103 104 100]", ms.Vertices[0].BoneIndices)
	}
	want := []float32{0.4 / 0.95, 0.3 / 0.95, 0.15 / 0.95, 0.1 / 0.95}
	if !vecsNear(ms.Vertices[0].BoneWeights[:], want) {
		t.Errorf("weights = %v, want %v", ms.Vertices[0].BoneWeights, want)
	}
}

func TestZeroWeightFallback(t *testing.T) {
	points := quadPoints()
	points[0].Influences = []Influence{{Group: 2, Weight: 0}}

	ms := NewMeshDocument(V8)
	ms.Flags = VERTEX_FLAG_POSITION | VERTEX_FLAG_BONE_WEIGHT | VERTEX_FLAG_BONE_INDEX
	tris := []Triangle{
		{Corner{Point: 0}, Corner{Point: 1}, Corner{Point: 2}},
	}
	if err := Weld(ms, points, tris); err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if ms.Vertices[0].BoneWeights != (vec4.T{}) {
		t.Errorf("weights = %v, want all zero", ms.Vertices[0].BoneWeights)
	}
	if ms.Vertices[0].BoneIndices != [4]uint16{2, 0, 0, 0} {
		t.Errorf("indices = %v, want [2 0 0 0]", ms.Vertices[0].BoneIndices)
	}
}

func TestWeldIdempotent(t *testing.T) {
	tris := []Triangle{
		{uvCorner(0, 0, 0), uvCorner(1, 1, 0), uvCorner(2, 0, 1)},
		{uvCorner(2, 0, 1), uvCorner(1, 1, 0), uvCorner(3, 1, 1)},
	}
	a := NewMeshDocument(V8)
	a.Flags = VERTEX_FLAG_POSITION | VERTEX_FLAG_UV1
	b := NewMeshDocument(V8)
	b.Flags = VERTEX_FLAG_POSITION | VERTEX_FLAG_UV1

	if err := Weld(a, quadPoints(), tris); err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if err := Weld(b, quadPoints(), tris); err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if !reflect.DeepEqual(a.Vertices, b.Vertices) || !reflect.DeepEqual(a.Faces, b.Faces) {
		t.Error("welding the same corners twice produced different buffers")
	}
}

func TestWeldCapacity(t *testing.T) {
	n := 65538
	points := make([]Point, n)
	for i := range points {
		points[i].Position = vec3.T{float32(i), 0, 0}
	}
	tris := make([]Triangle, 0, n/3)
	for i := 0; i+2 < n; i += 3 {
		tris = append(tris, Triangle{
			Corner{Point: i}, Corner{Point: i + 1}, Corner{Point: i + 2},
		})
	}

	ms := NewMeshDocument(V8)
	err := Weld(ms, points, tris)
	var capErr *CapacityExceededError
	if !errors.As(err, &capErr) {
		t.Fatalf("Weld error = %v, want CapacityExceededError", err)
	}
	if capErr.Field != "vertex" {
		t.Errorf("field = %q, want vertex", capErr.Field)
	}
}

func TestWeldBoundingBox(t *testing.T) {
	ms := NewMeshDocument(V8)
	tris := []Triangle{
		{Corner{Point: 0}, Corner{Point: 1}, Corner{Point: 3}},
	}
	if err := Weld(ms, quadPoints(), tris); err != nil {
		t.Fatalf("Weld: %v", err)
	}
	if ms.BoundingBoxMin != (vec3.T{0, 0, 0}) || ms.BoundingBoxMax != (vec3.T{1, 1, 0}) {
		t.Errorf("bounding box = %v %v, want [0 0 0] [1 1 0]", ms.BoundingBoxMin, ms.BoundingBoxMax)
	}
}

func TestWeldedDocumentRoundTrip(t *testing.T) {
	points := quadPoints()
	for i := range points {
		points[i].Influences = []Influence{{Group: 0, Weight: 1}}
	}
	tris := []Triangle{
		{uvCorner(0, 0, 0), uvCorner(1, 1, 0), uvCorner(2, 0, 1)},
		{uvCorner(2, 0, 1), uvCorner(1, 1, 0), uvCorner(3, 1, 1)},
	}
	ms := NewMeshDocument(V8)
	ms.Flags = VERTEX_FLAG_POSITION | VERTEX_FLAG_NORMAL | VERTEX_FLAG_UV1 |
		VERTEX_FLAG_BONE_WEIGHT | VERTEX_FLAG_BONE_INDEX
	ms.Bones = []uint16{42}
	if err := Weld(ms, points, tris); err != nil {
		t.Fatalf("Weld: %v", err)
	}

	var buf bytes.Buffer
	if err := MeshMarshal(&buf, ms); err != nil {
		t.Fatalf("MeshMarshal: %v", err)
	}
	got, err := MeshUnMarshal(&buf)
	if err != nil {
		t.Fatalf("MeshUnMarshal: %v", err)
	}
	equalDocuments(t, ms, got)
}
