package level

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidMap wraps every reason a level file is rejected.
var ErrInvalidMap = errors.New("level: invalid map")

//go:embed tiled.schema.json
var tiledSchema []byte

const schemaURL = "https://pyre.dev/schemas/tiled.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(tiledSchema)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Map is the part of a Tiled JSON export the loader uses.
type Map struct {
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	TileWidth  int       `json:"tilewidth"`
	TileHeight int       `json:"tileheight"`
	Tilesets   []Tileset `json:"tilesets"`
	Layers     []Layer   `json:"layers"`
}

type Tileset struct {
	Name        string `json:"name"`
	FirstGID    int    `json:"firstgid"`
	Image       string `json:"image"`
	ImageWidth  int    `json:"imagewidth"`
	ImageHeight int    `json:"imageheight"`
	TileWidth   int    `json:"tilewidth"`
	TileHeight  int    `json:"tileheight"`
}

const (
	TileLayer   = "tilelayer"
	ObjectGroup = "objectgroup"
)

type Layer struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
	Opacity float64  `json:"opacity"`
	Data    []int    `json:"data"`
	Objects []Object `json:"objects"`
}

type Object struct {
	GID      int     `json:"gid"`
	Name     string  `json:"name"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
}

// Parse validates data against the Tiled schema and decodes it.
func Parse(data []byte) (*Map, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("level schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMap, err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMap, err)
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMap, err)
	}
	if err := m.check(); err != nil {
		return nil, err
	}
	return &m, nil
}

func LoadFile(path string) (*Map, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// check covers what the schema cannot: data lengths and gid ranges.
func (m *Map) check() error {
	maxGID := 0
	for i := range m.Tilesets {
		ts := &m.Tilesets[i]
		if ts.TileWidth == 0 {
			ts.TileWidth = m.TileWidth
		}
		if ts.TileHeight == 0 {
			ts.TileHeight = m.TileHeight
		}
		cols, rows := ts.Grid()
		if cols == 0 || rows == 0 {
			return fmt.Errorf("%w: tileset %q is smaller than one tile", ErrInvalidMap, ts.Image)
		}
		if ts.FirstGID == 0 {
			ts.FirstGID = maxGID + 1
		}
		if ts.FirstGID <= maxGID {
			return fmt.Errorf("%w: tileset %q firstgid %d overlaps the previous tileset", ErrInvalidMap, ts.Image, ts.FirstGID)
		}
		maxGID = ts.FirstGID + cols*rows - 1
	}
	for _, l := range m.Layers {
		switch l.Type {
		case TileLayer:
			if len(l.Data) != l.Width*l.Height {
				return fmt.Errorf("%w: layer %q has %d tiles for %dx%d", ErrInvalidMap, l.Name, len(l.Data), l.Width, l.Height)
			}
			for _, gid := range l.Data {
				if gid > maxGID {
					return fmt.Errorf("%w: layer %q references gid %d (max %d)", ErrInvalidMap, l.Name, gid, maxGID)
				}
			}
		case ObjectGroup:
			for _, o := range l.Objects {
				if o.GID > maxGID {
					return fmt.Errorf("%w: object %q references gid %d (max %d)", ErrInvalidMap, o.Name, o.GID, maxGID)
				}
			}
		}
	}
	return nil
}

// Grid returns the tileset's columns and rows.
func (ts Tileset) Grid() (cols, rows int) {
	if ts.TileWidth <= 0 || ts.TileHeight <= 0 {
		return 0, 0
	}
	return ts.ImageWidth / ts.TileWidth, ts.ImageHeight / ts.TileHeight
}
