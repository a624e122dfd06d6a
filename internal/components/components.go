// Package components holds the stock component types used by the CLI and by
// tests: a 2D transform, simple physics bodies and a display name.
package components

import (
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/registry"
)

type Vec2 struct {
	X float32 `prefab:"x"`
	Y float32 `prefab:"y"`
}

type Position struct {
	Value Vec2 `prefab:"value"`
}

type Velocity struct {
	Value Vec2 `prefab:"value"`
}

type RigidBody struct {
	Static      bool    `prefab:"static"`
	Mass        float32 `prefab:"mass"`
	Restitution float32 `prefab:"restitution"`
}

type CircleCollider struct {
	Radius float32 `prefab:"radius"`
}

type BoxCollider struct {
	HalfExtents Vec2 `prefab:"half_extents"`
}

type Name struct {
	Value string `prefab:"value"`
}

type Tags struct {
	Values []string `prefab:"values"`
}

var (
	PositionID       = models.Must[models.ComponentTypeID]("f1b9a0c2-3d4e-4f50-8a61-72b3c4d5e6f7")
	VelocityID       = models.Must[models.ComponentTypeID]("0c1d2e3f-4a5b-4c6d-8e7f-8091a2b3c4d5")
	RigidBodyID      = models.Must[models.ComponentTypeID]("5e6f7a8b-9c0d-4e1f-a2b3-c4d5e6f7a8b9")
	CircleColliderID = models.Must[models.ComponentTypeID]("9a8b7c6d-5e4f-4a3b-9c2d-1e0f9a8b7c6d")
	BoxColliderID    = models.Must[models.ComponentTypeID]("2b3c4d5e-6f7a-4b8c-9d0e-1f2a3b4c5d6e")
	NameID           = models.Must[models.ComponentTypeID]("7c8d9e0f-1a2b-4c3d-8e4f-5a6b7c8d9e0f")
	TagsID           = models.Must[models.ComponentTypeID]("3d4e5f6a-7b8c-4d9e-a0f1-b2c3d4e5f6a7")
)

// Register adds every stock component to b.
func Register(b *registry.Builder) *registry.Builder {
	registry.Register[Position](b, PositionID, "position")
	registry.Register[Velocity](b, VelocityID, "velocity")
	registry.Register[RigidBody](b, RigidBodyID, "rigid_body")
	registry.Register[CircleCollider](b, CircleColliderID, "circle_collider")
	registry.Register[BoxCollider](b, BoxColliderID, "box_collider")
	registry.Register[Name](b, NameID, "name")
	registry.Register[Tags](b, TagsID, "tags")
	return b
}
