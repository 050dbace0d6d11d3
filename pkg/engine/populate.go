// pkg/engine/populate.go
package engine

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-flight/pkg/config"
	"github.com/opd-ai/go-flight/pkg/control"
	"github.com/opd-ai/go-flight/pkg/entity"
)

// Populate spawns the configured actors and possesses each with its
// controller. Network controllers are returned keyed by actor name so a
// transport can route remote input to them.
func (s *Simulation) Populate(actors []config.ActorConfig) (map[string]*control.NetworkController, error) {
	ids := make(map[string]uint64, len(actors))
	for _, ac := range actors {
		actor, err := s.newActor(ac)
		if err != nil {
			return nil, err
		}
		if err := s.AddActor(actor); err != nil {
			return nil, fmt.Errorf("actor %q: %w", ac.Name, err)
		}
		ids[ac.Name] = actor.ID()
	}

	remotes := make(map[string]*control.NetworkController)
	for _, ac := range actors {
		id := ids[ac.Name]
		c, err := s.newController(ac)
		if err != nil {
			return nil, fmt.Errorf("actor %q: %w", ac.Name, err)
		}
		if c != nil {
			if err := s.Possess(id, c); err != nil {
				return nil, err
			}
			if err := s.configureController(c, ac, ids); err != nil {
				return nil, fmt.Errorf("actor %q: %w", ac.Name, err)
			}
		}
		if nc, ok := c.(*control.NetworkController); ok {
			remotes[ac.Name] = nc
		}
		if ac.Selected {
			if err := s.SelectActor(id); err != nil {
				return nil, err
			}
		}
	}

	if _, ok := s.Selected(); !ok && len(actors) > 0 {
		if err := s.SelectActor(ids[actors[0].Name]); err != nil {
			return nil, err
		}
	}
	return remotes, nil
}

func (s *Simulation) newActor(ac config.ActorConfig) (*entity.Actor, error) {
	class := entity.ShipClassFromString(ac.Class)
	profile := ac.Profile
	if profile == "" {
		profile = class.Profile()
	}
	params, ok := s.config.Parameters(profile)
	if !ok {
		return nil, fmt.Errorf("actor %q: unknown flight profile %q", ac.Name, profile)
	}
	spawn := mgl64.Vec3{ac.Spawn[0], ac.Spawn[1], ac.Spawn[2]}
	return entity.NewActorWithParameters(entity.NextID(), ac.Name, class, spawn, params)
}

func (s *Simulation) newController(ac config.ActorConfig) (control.Controller, error) {
	switch ac.Controller {
	case config.ControllerHuman:
		return control.NewHumanController(s.input, s.config.Control.Human), nil
	case config.ControllerAI:
		return control.NewAIController(s.config.Control.AI, pawnResolver{s: s}), nil
	case config.ControllerNetwork:
		nc := control.NewNetworkController()
		nc.SetInterpolationDelay(s.config.Control.Network.InterpolationDelay())
		nc.SetBufferSize(s.config.Control.Network.BufferSize)
		return nc, nil
	case config.ControllerNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown controller %q", ac.Controller)
	}
}

// configureController applies behavior settings that need a possessed pawn.
func (s *Simulation) configureController(c control.Controller, ac config.ActorConfig, ids map[string]uint64) error {
	ai, ok := c.(*control.AIController)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ac.Target != "" {
		target, ok := ids[ac.Target]
		if !ok {
			return fmt.Errorf("target %q: %w", ac.Target, ErrActorNotFound)
		}
		ai.SetTarget(target)
	}
	if ac.Behavior != "" {
		behavior, err := control.ParseBehavior(ac.Behavior)
		if err != nil {
			return err
		}
		ai.SetBehavior(behavior)
	}
	return nil
}
