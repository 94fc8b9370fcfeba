// Package pcd reads and writes PCD point-cloud files, the on-disk format
// for corridor survey scans and per-tower sub-cloud exports. Coordinates
// are float32 on disk and float64 in memory.
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
	"github.com/zhuyie/golzf"
)

// Format is the DATA layout of a PCD file.
type Format int

const (
	Ascii Format = iota
	Binary
	BinaryCompressed
)

// PointCloud is a parsed PCD file: the header fields plus the point
// payload in row-interleaved binary layout regardless of the source
// format.
type PointCloud struct {
	Version   float32
	Fields    []string
	Size      []int
	Type      []string
	Count     []int
	Width     int
	Height    int
	Viewpoint []float32
	Points    int
	Format    Format
	Data      []byte
}

// Stride is the byte width of one point record.
func (pc *PointCloud) Stride() int {
	var stride int
	for i := range pc.Fields {
		stride += pc.Count[i] * pc.Size[i]
	}
	return stride
}

// Parse reads a PCD stream: the text header followed by point data in
// ascii, binary, or binary_compressed layout.
func Parse(r io.Reader) (*PointCloud, error) {
	rb := bufio.NewReader(r)
	pc := &PointCloud{}

L_HEADER:
	for {
		line, _, err := rb.ReadLine()
		if err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
		args := strings.Fields(string(line))
		if len(args) == 0 || strings.HasPrefix(args[0], "#") {
			continue
		}
		if len(args) < 2 {
			return nil, fmt.Errorf("header field %q has no value", args[0])
		}
		switch args[0] {
		case "VERSION":
			f, err := strconv.ParseFloat(args[1], 32)
			if err != nil {
				return nil, err
			}
			pc.Version = float32(f)
		case "FIELDS":
			pc.Fields = args[1:]
		case "SIZE":
			pc.Size = make([]int, len(args)-1)
			for i, s := range args[1:] {
				pc.Size[i], err = strconv.Atoi(s)
				if err != nil {
					return nil, err
				}
			}
		case "TYPE":
			pc.Type = args[1:]
		case "COUNT":
			pc.Count = make([]int, len(args)-1)
			for i, s := range args[1:] {
				pc.Count[i], err = strconv.Atoi(s)
				if err != nil {
					return nil, err
				}
			}
		case "WIDTH":
			pc.Width, err = strconv.Atoi(args[1])
			if err != nil {
				return nil, err
			}
		case "HEIGHT":
			pc.Height, err = strconv.Atoi(args[1])
			if err != nil {
				return nil, err
			}
		case "VIEWPOINT":
			pc.Viewpoint = make([]float32, len(args)-1)
			for i, s := range args[1:] {
				f, err := strconv.ParseFloat(s, 32)
				if err != nil {
					return nil, err
				}
				pc.Viewpoint[i] = float32(f)
			}
		case "POINTS":
			pc.Points, err = strconv.Atoi(args[1])
			if err != nil {
				return nil, err
			}
		case "DATA":
			switch args[1] {
			case "ascii":
				pc.Format = Ascii
			case "binary":
				pc.Format = Binary
			case "binary_compressed":
				pc.Format = BinaryCompressed
			default:
				return nil, fmt.Errorf("unknown data format %q", args[1])
			}
			break L_HEADER
		}
	}
	if len(pc.Fields) != len(pc.Size) {
		return nil, errors.New("SIZE entry count does not match FIELDS")
	}
	if len(pc.Fields) != len(pc.Type) {
		return nil, errors.New("TYPE entry count does not match FIELDS")
	}
	if len(pc.Fields) != len(pc.Count) {
		return nil, errors.New("COUNT entry count does not match FIELDS")
	}

	switch pc.Format {
	case Ascii:
		if err := pc.parseASCIIData(rb); err != nil {
			return nil, err
		}
	case Binary:
		b, err := io.ReadAll(rb)
		if err != nil {
			return nil, err
		}
		if len(b) < pc.Points*pc.Stride() {
			return nil, errors.New("point data truncated")
		}
		pc.Data = b[:pc.Points*pc.Stride()]
	case BinaryCompressed:
		if err := pc.parseCompressedData(rb); err != nil {
			return nil, err
		}
	}

	return pc, nil
}

func (pc *PointCloud) parseASCIIData(rb *bufio.Reader) error {
	stride := pc.Stride()
	pc.Data = make([]byte, 0, pc.Points*stride)
	row := make([]byte, stride)

	sc := bufio.NewScanner(rb)
	n := 0
	for n < pc.Points && sc.Scan() {
		tokens := strings.Fields(sc.Text())
		if len(tokens) == 0 {
			continue
		}
		if err := pc.encodeRow(row, tokens); err != nil {
			return fmt.Errorf("point %d: %w", n, err)
		}
		pc.Data = append(pc.Data, row...)
		n++
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if n < pc.Points {
		return fmt.Errorf("expected %d points, got %d", pc.Points, n)
	}
	return nil
}

func (pc *PointCloud) encodeRow(row []byte, tokens []string) error {
	want := 0
	for i := range pc.Fields {
		want += pc.Count[i]
	}
	if len(tokens) < want {
		return fmt.Errorf("expected %d values, got %d", want, len(tokens))
	}
	t, off := 0, 0
	for i := range pc.Fields {
		for c := 0; c < pc.Count[i]; c++ {
			if err := encodeValue(row[off:off+pc.Size[i]], pc.Type[i], tokens[t]); err != nil {
				return fmt.Errorf("field %s: %w", pc.Fields[i], err)
			}
			off += pc.Size[i]
			t++
		}
	}
	return nil
}

func encodeValue(dst []byte, typ, token string) error {
	switch typ {
	case "F":
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return err
		}
		switch len(dst) {
		case 4:
			binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(f)))
		case 8:
			binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
		default:
			return fmt.Errorf("unsupported float size %d", len(dst))
		}
		return nil
	case "I":
		v, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return err
		}
		return putUint(dst, uint64(v))
	case "U":
		v, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return err
		}
		return putUint(dst, v)
	}
	return fmt.Errorf("unsupported field type %q", typ)
}

func putUint(dst []byte, v uint64) error {
	switch len(dst) {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(dst, v)
	default:
		return fmt.Errorf("unsupported integer size %d", len(dst))
	}
	return nil
}

// binary_compressed stores an LZF block of whole-field columns; the
// columns are interleaved back into row layout after decompression.
func (pc *PointCloud) parseCompressedData(rb *bufio.Reader) error {
	var nCompressed, nUncompressed int32
	if err := binary.Read(rb, binary.LittleEndian, &nCompressed); err != nil {
		return err
	}
	if err := binary.Read(rb, binary.LittleEndian, &nUncompressed); err != nil {
		return err
	}

	b, err := io.ReadAll(rb)
	if err != nil {
		return err
	}
	if int(nCompressed) > len(b) {
		return errors.New("compressed data truncated")
	}

	dec := make([]byte, nUncompressed)
	n, err := lzf.Decompress(b[:nCompressed], dec)
	if err != nil {
		return err
	}
	if int(nUncompressed) != n {
		return errors.New("wrong uncompressed size")
	}
	if n < pc.Points*pc.Stride() {
		return errors.New("point data truncated")
	}

	head := make([]int, len(pc.Fields))
	offset := make([]int, len(pc.Fields))
	var pos, off int
	for i := range pc.Fields {
		head[i] = pos
		offset[i] = off
		pos += pc.Size[i] * pc.Count[i] * pc.Points
		off += pc.Size[i] * pc.Count[i]
	}

	stride := pc.Stride()
	pc.Data = make([]byte, n)
	for p := 0; p < pc.Points; p++ {
		for i := range head {
			width := pc.Size[i] * pc.Count[i]
			to := p*stride + offset[i]
			from := head[i] + p*width
			copy(pc.Data[to:to+width], dec[from:from+width])
		}
	}
	return nil
}

// XYZ converts the x, y, and z fields into memory vectors. Any other
// fields in the file are ignored.
func (pc *PointCloud) XYZ() ([]r3.Vector, error) {
	if len(pc.Data) < pc.Points*pc.Stride() {
		return nil, errors.New("point data truncated")
	}
	var read [3]func(p int) float64
	for i, name := range []string{"x", "y", "z"} {
		rd, err := pc.floatReader(name)
		if err != nil {
			return nil, err
		}
		read[i] = rd
	}
	points := make([]r3.Vector, pc.Points)
	for p := 0; p < pc.Points; p++ {
		points[p] = r3.Vector{X: read[0](p), Y: read[1](p), Z: read[2](p)}
	}
	return points, nil
}

func (pc *PointCloud) floatReader(name string) (func(p int) float64, error) {
	stride := pc.Stride()
	off := 0
	for i, fn := range pc.Fields {
		if fn != name {
			off += pc.Size[i] * pc.Count[i]
			continue
		}
		if pc.Type[i] != "F" {
			return nil, fmt.Errorf("field %s is not a float field", name)
		}
		base := off
		switch pc.Size[i] {
		case 4:
			return func(p int) float64 {
				bits := binary.LittleEndian.Uint32(pc.Data[p*stride+base:])
				return float64(math.Float32frombits(bits))
			}, nil
		case 8:
			return func(p int) float64 {
				bits := binary.LittleEndian.Uint64(pc.Data[p*stride+base:])
				return math.Float64frombits(bits)
			}, nil
		}
		return nil, fmt.Errorf("field %s has unsupported size %d", name, pc.Size[i])
	}
	return nil, fmt.Errorf("field %s not present", name)
}
