package cloud

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
)

// DefaultFileName is where the live loop writes its cloud.
const DefaultFileName = "point_cloud.ply"

var plyHeader = []string{
	"ply",
	"format ascii 1.0",
	"element vertex %d",
	"property float x",
	"property float y",
	"property float z",
	"property uchar red",
	"property uchar green",
	"property uchar blue",
	"end_header",
}

// EncodePLY writes pc as an ASCII PLY with one "x y z r g b" line per point. Non-finite
// coordinates are written as +Inf, -Inf and NaN, which DecodePLY reads back.
func EncodePLY(w io.Writer, pc *PointCloud) error {
	bw := bufio.NewWriter(w)
	for i, line := range plyHeader {
		if i == 2 {
			line = fmt.Sprintf(line, pc.Len())
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}

	buf := make([]byte, 0, 96)
	if pc != nil {
		for _, p := range pc.Points {
			buf = buf[:0]
			buf = strconv.AppendFloat(buf, p.Position.X, 'f', -1, 32)
			buf = append(buf, ' ')
			buf = strconv.AppendFloat(buf, p.Position.Y, 'f', -1, 32)
			buf = append(buf, ' ')
			buf = strconv.AppendFloat(buf, p.Position.Z, 'f', -1, 32)
			buf = append(buf, ' ')
			buf = strconv.AppendUint(buf, uint64(p.Color.R), 10)
			buf = append(buf, ' ')
			buf = strconv.AppendUint(buf, uint64(p.Color.G), 10)
			buf = append(buf, ' ')
			buf = strconv.AppendUint(buf, uint64(p.Color.B), 10)
			buf = append(buf, '\n')
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WritePLY replaces the file at path with pc. The cloud is written to a temporary file in the
// same directory and renamed into place, so readers never see a partial frame.
func WritePLY(path string, pc *PointCloud) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary point cloud file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = EncodePLY(tmp, pc); err != nil {
		return fmt.Errorf("write point cloud: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close point cloud: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// DecodePLY parses the format EncodePLY writes. The declared vertex count must match the
// number of vertex lines exactly.
func DecodePLY(r io.Reader) (*PointCloud, error) {
	sc := bufio.NewScanner(r)
	lineNo := 0
	next := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		lineNo++
		return strings.TrimRight(sc.Text(), "\r"), true
	}

	count := -1
	for i, want := range plyHeader {
		line, ok := next()
		if !ok {
			return nil, fmt.Errorf("ply header truncated at line %d", lineNo+1)
		}
		if i == 2 {
			if _, err := fmt.Sscanf(line, want, &count); err != nil || count < 0 {
				return nil, fmt.Errorf("line %d: bad vertex element %q", lineNo, line)
			}
			continue
		}
		if line != want {
			return nil, fmt.Errorf("line %d: expected %q, got %q", lineNo, want, line)
		}
	}

	pc := &PointCloud{Points: make([]Point, 0, count)}
	for {
		line, ok := next()
		if !ok {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(pc.Points) == count {
			return nil, fmt.Errorf("line %d: more vertices than the declared %d", lineNo, count)
		}
		p, err := parseVertex(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		pc.Points = append(pc.Points, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(pc.Points) != count {
		return nil, fmt.Errorf("declared %d vertices, found %d", count, len(pc.Points))
	}
	return pc, nil
}

// ReadPLY loads a cloud written by WritePLY.
func ReadPLY(path string) (*PointCloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pc, err := DecodePLY(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return pc, nil
}

func parseVertex(line string) (Point, error) {
	fields := strings.Fields(line)
	if len(fields) != 6 {
		return Point{}, fmt.Errorf("expected 6 fields, got %d", len(fields))
	}

	var pos [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return Point{}, fmt.Errorf("coordinate %d: %w", i, err)
		}
		pos[i] = v
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(fields[3+i], 10, 8)
		if err != nil {
			return Point{}, fmt.Errorf("color channel %d: %w", i, err)
		}
		rgb[i] = uint8(v)
	}

	return Point{
		Position: r3.Vector{X: pos[0], Y: pos[1], Z: pos[2]},
		Color:    color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 0xff},
	}, nil
}
