package pcd

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
)

var defaultViewpoint = []float32{0, 0, 0, 1, 0, 0, 0}

// FromVectors builds an unorganized float32 x/y/z cloud in binary layout.
func FromVectors(points []r3.Vector) *PointCloud {
	pc := &PointCloud{
		Version:   0.7,
		Fields:    []string{"x", "y", "z"},
		Size:      []int{4, 4, 4},
		Type:      []string{"F", "F", "F"},
		Count:     []int{1, 1, 1},
		Width:     len(points),
		Height:    1,
		Viewpoint: append([]float32{}, defaultViewpoint...),
		Points:    len(points),
		Format:    Binary,
		Data:      make([]byte, 12*len(points)),
	}
	for i, p := range points {
		binary.LittleEndian.PutUint32(pc.Data[12*i:], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(pc.Data[12*i+4:], math.Float32bits(float32(p.Y)))
		binary.LittleEndian.PutUint32(pc.Data[12*i+8:], math.Float32bits(float32(p.Z)))
	}
	return pc
}

// Marshal writes pc to w in the given format. Compressed output is not
// supported.
func (pc *PointCloud) Marshal(w io.Writer, format Format) error {
	if len(pc.Data) < pc.Points*pc.Stride() {
		return errors.New("point data truncated")
	}
	version := pc.Version
	if version == 0 {
		version = 0.7
	}
	viewpoint := pc.Viewpoint
	if len(viewpoint) == 0 {
		viewpoint = defaultViewpoint
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# .PCD v0.7 - Point Cloud Data file format")
	fmt.Fprintf(bw, "VERSION %s\n", strconv.FormatFloat(float64(version), 'f', -1, 32))
	fmt.Fprintf(bw, "FIELDS %s\n", strings.Join(pc.Fields, " "))
	fmt.Fprintf(bw, "SIZE %s\n", joinInts(pc.Size))
	fmt.Fprintf(bw, "TYPE %s\n", strings.Join(pc.Type, " "))
	fmt.Fprintf(bw, "COUNT %s\n", joinInts(pc.Count))
	fmt.Fprintf(bw, "WIDTH %d\n", pc.Width)
	fmt.Fprintf(bw, "HEIGHT %d\n", pc.Height)
	fmt.Fprintf(bw, "VIEWPOINT %s\n", joinFloats(viewpoint))
	fmt.Fprintf(bw, "POINTS %d\n", pc.Points)

	switch format {
	case Ascii:
		fmt.Fprintln(bw, "DATA ascii")
		if err := pc.writeASCIIData(bw); err != nil {
			return err
		}
	case Binary:
		fmt.Fprintln(bw, "DATA binary")
		if _, err := bw.Write(pc.Data[:pc.Points*pc.Stride()]); err != nil {
			return err
		}
	default:
		return errors.New("unsupported output format")
	}
	return bw.Flush()
}

func (pc *PointCloud) writeASCIIData(bw *bufio.Writer) error {
	stride := pc.Stride()
	for p := 0; p < pc.Points; p++ {
		row := pc.Data[p*stride : (p+1)*stride]
		off := 0
		for i := range pc.Fields {
			size := pc.Size[i]
			for c := 0; c < pc.Count[i]; c++ {
				if off > 0 {
					bw.WriteByte(' ')
				}
				s, err := formatValue(row[off:off+size], pc.Type[i])
				if err != nil {
					return err
				}
				if _, err := bw.WriteString(s); err != nil {
					return err
				}
				off += size
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

func formatValue(src []byte, typ string) (string, error) {
	switch typ {
	case "F":
		switch len(src) {
		case 4:
			f := math.Float32frombits(binary.LittleEndian.Uint32(src))
			return strconv.FormatFloat(float64(f), 'g', -1, 32), nil
		case 8:
			f := math.Float64frombits(binary.LittleEndian.Uint64(src))
			return strconv.FormatFloat(f, 'g', -1, 64), nil
		}
		return "", fmt.Errorf("unsupported float size %d", len(src))
	case "I":
		var v int64
		switch len(src) {
		case 1:
			v = int64(int8(src[0]))
		case 2:
			v = int64(int16(binary.LittleEndian.Uint16(src)))
		case 4:
			v = int64(int32(binary.LittleEndian.Uint32(src)))
		case 8:
			v = int64(binary.LittleEndian.Uint64(src))
		default:
			return "", fmt.Errorf("unsupported integer size %d", len(src))
		}
		return strconv.FormatInt(v, 10), nil
	case "U":
		var v uint64
		switch len(src) {
		case 1:
			v = uint64(src[0])
		case 2:
			v = uint64(binary.LittleEndian.Uint16(src))
		case 4:
			v = uint64(binary.LittleEndian.Uint32(src))
		case 8:
			v = binary.LittleEndian.Uint64(src)
		default:
			return "", fmt.Errorf("unsupported integer size %d", len(src))
		}
		return strconv.FormatUint(v, 10), nil
	}
	return "", fmt.Errorf("unsupported field type %q", typ)
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}

func joinFloats(vs []float32) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return strings.Join(parts, " ")
}
