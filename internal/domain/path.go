package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedPath = errors.New("malformed path")

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Path is one freehand stroke. Its serialized form is self-delimiting,
// "color{x,y;x,y;...}", so a board's paths can be concatenated and split
// back apart.
type Path struct {
	Color  string  `json:"color" validate:"required,excludesall={}%"`
	Points []Point `json:"points" validate:"required,min=1"`
}

func (p Path) String() string {
	var b strings.Builder
	b.WriteString(p.Color)
	b.WriteByte('{')
	for i, pt := range p.Points {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.Itoa(pt.X))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(pt.Y))
	}
	b.WriteByte('}')
	return b.String()
}

func (p Path) Equal(o Path) bool {
	if p.Color != o.Color || len(p.Points) != len(o.Points) {
		return false
	}
	for i := range p.Points {
		if p.Points[i] != o.Points[i] {
			return false
		}
	}
	return true
}

// ParsePath parses exactly one serialized path.
func ParsePath(s string) (Path, error) {
	paths, err := ParsePaths(s)
	if err != nil {
		return Path{}, err
	}
	if len(paths) != 1 {
		return Path{}, fmt.Errorf("%w: expected one path, got %d", ErrMalformedPath, len(paths))
	}
	return paths[0], nil
}

// ParsePaths splits a concatenation of serialized paths.
func ParsePaths(s string) ([]Path, error) {
	paths := []Path{}
	for len(s) > 0 {
		open := strings.IndexByte(s, '{')
		end := strings.IndexByte(s, '}')
		if open <= 0 || end < open {
			return nil, fmt.Errorf("%w: %q", ErrMalformedPath, s)
		}

		points, err := parsePoints(s[open+1 : end])
		if err != nil {
			return nil, err
		}

		paths = append(paths, Path{Color: s[:open], Points: points})
		s = s[end+1:]
	}
	return paths, nil
}

func JoinPaths(paths []Path) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString(p.String())
	}
	return b.String()
}

func parsePoints(s string) ([]Point, error) {
	if s == "" {
		return []Point{}, nil
	}

	fields := strings.Split(s, ";")
	points := make([]Point, 0, len(fields))
	for _, f := range fields {
		xy := strings.Split(f, ",")
		if len(xy) != 2 {
			return nil, fmt.Errorf("%w: bad point %q", ErrMalformedPath, f)
		}
		x, err := strconv.Atoi(xy[0])
		if err != nil {
			return nil, fmt.Errorf("%w: bad x in %q", ErrMalformedPath, f)
		}
		y, err := strconv.Atoi(xy[1])
		if err != nil {
			return nil, fmt.Errorf("%w: bad y in %q", ErrMalformedPath, f)
		}
		points = append(points, Point{X: x, Y: y})
	}
	return points, nil
}
