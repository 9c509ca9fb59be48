package main

import (
	"github.com/charmbracelet/log"
	"github.com/chazu/plantview/pkg/component"
	"github.com/chazu/plantview/pkg/config"
	"github.com/chazu/plantview/pkg/engine"
	"github.com/chazu/plantview/pkg/kernel"
	"github.com/chazu/plantview/pkg/kernel/sdfx"
	"github.com/chazu/plantview/pkg/tessellate"
)

// colorPalette is a default palette used to assign distinct colors to parts.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App runs the evaluate, validate and tessellate pipeline for one source
// text and shapes the outcome for display.
type App struct {
	cfg    *config.Config
	log    *log.Logger
	engine *engine.Engine
	kernel kernel.Kernel
}

// MeshData is the JSON-serializable mesh format.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Color    string    `json:"color"`
}

// JunctionData is a junction's derived placement.
type JunctionData struct {
	Name   string     `json:"name"`
	Center [3]float64 `json:"center"`
	Radius float64    `json:"radius"`
	Ends   int        `json:"ends"`
}

// EvalErrorData is a JSON-serializable diagnostic. Entity is the short id
// of the entity a validation finding is about.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
	Entity  string `json:"entity,omitempty"`
}

// EvalResult is the full outcome of one evaluation.
type EvalResult struct {
	Meshes    []MeshData      `json:"meshes"`
	Junctions []JunctionData  `json:"junctions"`
	Errors    []EvalErrorData `json:"errors"`
	Warnings  []EvalErrorData `json:"warnings"`

	// Scene is the evaluated scene, nil when evaluation failed.
	Scene *component.Scene `json:"-"`
}

// NewApp creates an App from cfg. A nil cfg means config.Default().
func NewApp(cfg *config.Config, logger *log.Logger) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.Default()
	}
	a := &App{
		cfg:    cfg,
		log:    logger,
		engine: engine.NewEngine(
			engine.WithLogger(logger),
			engine.WithTimeout(cfg.Engine.Timeout),
			engine.WithSceneOptions(sceneOptions(cfg, logger)...),
		),
	}
	if cfg.Kernel.Enabled {
		a.kernel = sdfx.New(sdfx.WithMeshCells(cfg.Kernel.MeshCells))
	}
	return a
}

// sceneOptions maps configuration onto scene options.
func sceneOptions(cfg *config.Config, logger *log.Logger) []component.Option {
	opts := []component.Option{
		component.WithLogger(logger),
		component.WithCapSamples(cfg.Geometry.CapSamples),
	}
	if cfg.Synchronous() {
		opts = append(opts, component.Synchronous())
	}
	return opts
}

// Evaluate takes DSL source and returns meshes, junction placements and
// diagnostics. Tessellation is skipped when validation reports errors.
func (a *App) Evaluate(source string) EvalResult {
	result := EvalResult{
		Meshes:    []MeshData{},
		Junctions: []JunctionData{},
		Errors:    []EvalErrorData{},
		Warnings:  []EvalErrorData{},
	}

	s, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		a.log.Error("evaluation failed", "err", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return result
	}
	result.Scene = s

	for _, f := range s.Validate() {
		d := EvalErrorData{Message: f.Message, Entity: f.ID.Short()}
		if f.Severity == component.SeverityError {
			result.Errors = append(result.Errors, d)
		} else {
			result.Warnings = append(result.Warnings, d)
		}
	}
	result.Junctions = junctions(s)

	if a.kernel == nil || len(result.Errors) > 0 {
		return result
	}
	meshes, err := tessellate.Tessellate(s, a.kernel, tessellate.WithLogger(a.log))
	if err != nil {
		a.log.Warn("tessellation failed", "err", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: "tessellation failed: " + err.Error()})
		return result
	}
	result.Meshes = meshData(meshes)
	return result
}

func meshData(meshes []*kernel.Mesh) []MeshData {
	out := make([]MeshData, 0, len(meshes))
	for i, m := range meshes {
		out = append(out, MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			Indices:  m.Indices,
			PartName: m.PartName,
			Color:    colorPalette[i%len(colorPalette)],
		})
	}
	return out
}

func junctions(s *component.Scene) []JunctionData {
	out := []JunctionData{}
	for _, c := range s.All() {
		if c.Kind() != component.KindJunction {
			continue
		}
		p := c.Placement()
		out = append(out, JunctionData{
			Name:   tessellate.PartName(c),
			Center: [3]float64{p.Center.X, p.Center.Y, p.Center.Z},
			Radius: p.EnvelopeRadius(),
			Ends:   p.Ends,
		})
	}
	return out
}
