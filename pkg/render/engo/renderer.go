// pkg/render/engo/renderer.go
package engo

import (
	"image/color"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/go-flight/pkg/config"
	"github.com/opd-ai/go-flight/pkg/engine"
	"github.com/opd-ai/go-flight/pkg/entity"
)

// spriteSystem is the part of common.RenderSystem the renderer drives.
type spriteSystem interface {
	Add(basic *ecs.BasicEntity, render *common.RenderComponent, space *common.SpaceComponent)
	Remove(basic ecs.BasicEntity)
}

// sprite keeps an entity's components at stable addresses for the render system.
type sprite struct {
	basic  ecs.BasicEntity
	render common.RenderComponent
	space  common.SpaceComponent
	class  entity.ShipClass
}

// placement is where and how one actor is drawn this frame.
type placement struct {
	ID       uint64
	Class    entity.ShipClass
	Center   engo.Point
	Rotation float32
	Color    color.Color
}

// EngoRenderer draws simulation snapshots as engo sprites, one per actor.
type EngoRenderer struct {
	renderSystem spriteSystem
	projection   Projection
	assets       *AssetManager

	sprites map[uint64]*sprite
	camera  *sprite
}

// NewEngoRenderer creates a renderer using projection for world placement.
func NewEngoRenderer(projection Projection) *EngoRenderer {
	return &EngoRenderer{
		projection: projection,
		assets:     NewAssetManager(),
		sprites:    make(map[uint64]*sprite),
	}
}

// Initialize adds the render system to world and builds the sprites.
func (r *EngoRenderer) Initialize(world *ecs.World) error {
	rs := &common.RenderSystem{}
	world.AddSystem(rs)
	r.renderSystem = rs
	return r.assets.LoadAssets()
}

// Render implements render.Renderer
func (r *EngoRenderer) Render(state engine.State) error {
	if r.renderSystem == nil {
		return nil
	}

	placements := r.layout(state)
	seen := make(map[uint64]bool, len(placements))
	for _, p := range placements {
		seen[p.ID] = true
		r.place(r.getOrCreateSprite(p.ID, p.Class), p)
	}
	for id, s := range r.sprites {
		if !seen[id] {
			r.renderSystem.Remove(s.basic)
			delete(r.sprites, id)
		}
	}

	r.placeCamera(state.Camera)
	return nil
}

// layout computes sprite placements for every actor with a live renderable.
func (r *EngoRenderer) layout(state engine.State) []placement {
	placements := make([]placement, 0, len(state.Actors))
	for _, a := range state.Actors {
		if !a.Renderable.Valid() {
			continue
		}
		placements = append(placements, placement{
			ID:       a.ID,
			Class:    a.Class,
			Center:   r.projection.WorldToScreen(a.State.Position),
			Rotation: Heading(a.State.Orientation),
			Color:    controllerColor(a.Controller, a.Selected),
		})
	}
	return placements
}

func (r *EngoRenderer) getOrCreateSprite(id uint64, class entity.ShipClass) *sprite {
	if s, exists := r.sprites[id]; exists {
		if s.class != class {
			s.class = class
			s.render.Drawable = r.assets.ShipSprite(class)
			s.space.Width, s.space.Height = ShipSize(class)
		}
		return s
	}

	w, h := ShipSize(class)
	s := &sprite{
		basic: ecs.NewBasic(),
		render: common.RenderComponent{
			Drawable: r.assets.ShipSprite(class),
		},
		space: common.SpaceComponent{Width: w, Height: h},
		class: class,
	}
	r.sprites[id] = s
	r.renderSystem.Add(&s.basic, &s.render, &s.space)
	return s
}

func (r *EngoRenderer) place(s *sprite, p placement) {
	s.space.Position = engo.Point{
		X: p.Center.X - s.space.Width/2,
		Y: p.Center.Y - s.space.Height/2,
	}
	s.space.Rotation = p.Rotation
	s.render.Color = p.Color
}

func (r *EngoRenderer) placeCamera(view engine.CameraState) {
	marker := r.assets.CameraMarker()
	if marker == nil {
		return
	}
	if r.camera == nil {
		r.camera = &sprite{
			basic: ecs.NewBasic(),
			render: common.RenderComponent{
				Drawable: marker,
				Color:    color.RGBA{160, 160, 160, 255},
			},
			space: common.SpaceComponent{Width: 7, Height: 7},
		}
		r.renderSystem.Add(&r.camera.basic, &r.camera.render, &r.camera.space)
	}
	center := r.projection.WorldToScreen(view.Position)
	r.camera.space.Position = engo.Point{X: center.X - 3.5, Y: center.Y - 3.5}
}

// Sprites returns the number of actor sprites currently drawn.
func (r *EngoRenderer) Sprites() int {
	return len(r.sprites)
}

// controllerColor tints an actor by who flies it.
func controllerColor(kind string, selected bool) color.Color {
	if selected {
		return color.RGBA{255, 255, 0, 255}
	}
	switch kind {
	case config.ControllerHuman:
		return color.RGBA{0, 255, 0, 255}
	case config.ControllerAI:
		return color.RGBA{255, 64, 64, 255}
	case config.ControllerNetwork:
		return color.RGBA{64, 128, 255, 255}
	}
	return color.RGBA{255, 255, 255, 255}
}
