package pcd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/zhuyie/golzf"
)

const asciiFixture = `# .PCD v0.7 - Point Cloud Data file format
VERSION 0.7
FIELDS x y z intensity
SIZE 4 4 4 4
TYPE F F F F
COUNT 1 1 1 1
WIDTH 3
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 3
DATA ascii
1.5 -2.25 3 10
0 0.5 -1 20
100 200.5 300 30
`

func TestParse_Ascii(t *testing.T) {
	pc, err := Parse(bytes.NewReader([]byte(asciiFixture)))
	if err != nil {
		t.Fatal(err)
	}
	if pc.Points != 3 || pc.Format != Ascii || pc.Stride() != 16 {
		t.Fatalf("unexpected header: points=%d format=%d stride=%d", pc.Points, pc.Format, pc.Stride())
	}

	got, err := pc.XYZ()
	if err != nil {
		t.Fatal(err)
	}
	want := []r3.Vector{
		{X: 1.5, Y: -2.25, Z: 3},
		{X: 0, Y: 0.5, Z: -1},
		{X: 100, Y: 200.5, Z: 300},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func binaryFixture(points []r3.Vector) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "VERSION 0.7\nFIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nCOUNT 1 1 1\n")
	fmt.Fprintf(&buf, "WIDTH %d\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS %d\nDATA binary\n", len(points), len(points))
	for _, p := range points {
		for _, v := range [3]float64{p.X, p.Y, p.Z} {
			binary.Write(&buf, binary.LittleEndian, float32(v))
		}
	}
	return buf.Bytes()
}

func TestParse_Binary(t *testing.T) {
	want := []r3.Vector{
		{X: 1, Y: 2, Z: 3},
		{X: -4.5, Y: 5.25, Z: -6},
	}
	pc, err := Parse(bytes.NewReader(binaryFixture(want)))
	if err != nil {
		t.Fatal(err)
	}
	if pc.Format != Binary || pc.Points != 2 {
		t.Fatalf("unexpected header: format=%d points=%d", pc.Format, pc.Points)
	}
	got, err := pc.XYZ()
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestParse_TruncatedBinary(t *testing.T) {
	data := binaryFixture([]r3.Vector{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}})
	if _, err := Parse(bytes.NewReader(data[:len(data)-4])); err == nil {
		t.Fatal("expected an error for truncated point data")
	}
}

func TestParse_BinaryCompressed(t *testing.T) {
	want := []r3.Vector{
		{X: 1, Y: 2, Z: 3},
		{X: 4, Y: 5, Z: 6},
		{X: 7, Y: 8, Z: 9},
		{X: 10, Y: 11, Z: 12},
	}

	// Whole-field columns: all xs, then ys, then zs.
	var cols bytes.Buffer
	for _, get := range [3]func(r3.Vector) float64{
		func(p r3.Vector) float64 { return p.X },
		func(p r3.Vector) float64 { return p.Y },
		func(p r3.Vector) float64 { return p.Z },
	} {
		for _, p := range want {
			binary.Write(&cols, binary.LittleEndian, float32(get(p)))
		}
	}
	compressed := make([]byte, 2*cols.Len()+64)
	n, err := lzf.Compress(cols.Bytes(), compressed)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "VERSION 0.7\nFIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nCOUNT 1 1 1\n")
	fmt.Fprintf(&buf, "WIDTH 4\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS 4\nDATA binary_compressed\n")
	binary.Write(&buf, binary.LittleEndian, int32(n))
	binary.Write(&buf, binary.LittleEndian, int32(cols.Len()))
	buf.Write(compressed[:n])

	pc, err := Parse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := pc.XYZ()
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestParse_HeaderErrors(t *testing.T) {
	cases := []struct {
		name   string
		header string
	}{
		{"missing value", "VERSION\n"},
		{"size mismatch", "FIELDS x y z\nSIZE 4 4\nTYPE F F F\nCOUNT 1 1 1\nPOINTS 0\nDATA binary\n"},
		{"unknown format", "FIELDS x\nSIZE 4\nTYPE F\nCOUNT 1\nPOINTS 0\nDATA sparse\n"},
	}
	for _, c := range cases {
		if _, err := Parse(bytes.NewReader([]byte(c.header))); err == nil {
			t.Errorf("%s: expected an error", c.name)
		}
	}
}

func TestXYZ_MissingField(t *testing.T) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "VERSION 0.7\nFIELDS x y\nSIZE 4 4\nTYPE F F\nCOUNT 1 1\n")
	fmt.Fprintf(&buf, "WIDTH 1\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS 1\nDATA binary\n")
	buf.Write(make([]byte, 8))

	pc, err := Parse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pc.XYZ(); err == nil {
		t.Fatal("expected an error for a cloud without z")
	}
}

func TestMarshal_BinaryRoundTrip(t *testing.T) {
	want := []r3.Vector{
		{X: 12.5, Y: -7.25, Z: 44},
		{X: 0, Y: 0, Z: 0},
		{X: -100.5, Y: 3, Z: 18.75},
	}

	var buf bytes.Buffer
	if err := FromVectors(want).Marshal(&buf, Binary); err != nil {
		t.Fatal(err)
	}
	pc, err := Parse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if pc.Points != len(want) || pc.Width != len(want) || pc.Height != 1 {
		t.Fatalf("unexpected header: %+v", pc)
	}
	got, err := pc.XYZ()
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestMarshal_AsciiRoundTrip(t *testing.T) {
	want := []r3.Vector{
		{X: 1.5, Y: 2.5, Z: -3.5},
		{X: 1000, Y: -2000, Z: 0.25},
	}

	var buf bytes.Buffer
	if err := FromVectors(want).Marshal(&buf, Ascii); err != nil {
		t.Fatal(err)
	}
	pc, err := Parse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if pc.Format != Ascii {
		t.Fatalf("expected ascii format back, got %d", pc.Format)
	}
	got, err := pc.XYZ()
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestMarshal_CompressedUnsupported(t *testing.T) {
	var buf bytes.Buffer
	if err := FromVectors(nil).Marshal(&buf, BinaryCompressed); err == nil {
		t.Fatal("expected an error for compressed output")
	}
}
