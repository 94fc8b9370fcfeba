package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"

	"github.com/gridline-data/corridor.report/internal/pcd"
	"github.com/gridline-data/corridor.report/internal/towers"
)

// pcdSink writes each accepted tower's sub-cloud under dir as
// tower_<seq>_<id prefix>.pcd.
type pcdSink struct {
	dir    string
	format pcd.Format
}

var _ towers.CloudSink = (*pcdSink)(nil)

func newPCDSink(dir, format string) (*pcdSink, error) {
	var f pcd.Format
	switch format {
	case "ascii":
		f = pcd.Ascii
	case "binary":
		f = pcd.Binary
	default:
		return nil, fmt.Errorf("unknown cloud format %q (want ascii or binary)", format)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cloud dir: %w", err)
	}
	return &pcdSink{dir: dir, format: f}, nil
}

func (s *pcdSink) ExportCloud(rec towers.TowerRecord, points []r3.Vector) (string, error) {
	name := fmt.Sprintf("tower_%03d_%s.pcd", rec.Seq, rec.ID[:8])
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := pcd.FromVectors(points).Marshal(f, s.format); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func isFinite(v r3.Vector) bool {
	finite := func(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}
