package mbs

import (
	"fmt"
	"strings"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/kinematics"
	"github.com/foerg/mbsim-env-sub002/internal/link"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
)

// Group is a node of the model hierarchy. It owns bodies, frames, links and
// sub-groups. Every group has a frame "I"; for the root group it is the
// inertial frame, for sub-groups it is fixed relative to the parent's "I".
type Group struct {
	name   string
	parent *Group

	iframe *kinematics.Frame
	irel   *kinematics.FixedRelativeFrame

	frames []*kinematics.FixedRelativeFrame
	bodies []*kinematics.RigidBody
	links  []link.Link
	groups []*Group
}

func NewGroup(name string) *Group {
	g := &Group{name: name}
	g.SetPosition(spatial.Zero, spatial.Identity)
	return g
}

func (g *Group) Name() string { return g.name }

func (g *Group) Parent() *Group { return g.parent }

// Path is the absolute path of the group; the root group has the empty path.
func (g *Group) Path() string {
	if g.parent == nil {
		return ""
	}
	return g.parent.Path() + "/" + g.name
}

// SetPosition places the group frame "I" relative to the parent's "I". It has
// no effect on the root group.
func (g *Group) SetPosition(r spatial.Vec3, a spatial.Mat3) {
	g.irel = kinematics.NewFixedRelativeFrame("I", "../I", r, a)
	if g.parent != nil {
		g.iframe = g.irel.Frame
	}
}

func (g *Group) AddGroup(sub *Group) *Group {
	sub.parent = g
	sub.iframe = sub.irel.Frame
	g.groups = append(g.groups, sub)
	return sub
}

func (g *Group) AddBody(b *kinematics.RigidBody) *kinematics.RigidBody {
	g.bodies = append(g.bodies, b)
	return b
}

// AddFrame adds a frame fixed relative to the frame at path relativeTo,
// resolved like every other path of the group.
func (g *Group) AddFrame(name, relativeTo string, r spatial.Vec3, a spatial.Mat3) *kinematics.FixedRelativeFrame {
	f := kinematics.NewFixedRelativeFrame(name, relativeTo, r, a)
	g.frames = append(g.frames, f)
	return f
}

func (g *Group) AddLink(l link.Link) link.Link {
	g.links = append(g.links, l)
	return l
}

func (g *Group) Groups() []*Group { return g.groups }

func (g *Group) Bodies() []*kinematics.RigidBody { return g.bodies }

func (g *Group) Links() []link.Link { return g.links }

func (g *Group) SubGroup(name string) *Group {
	for _, s := range g.groups {
		if s.name == name {
			return s
		}
	}
	return nil
}

func (g *Group) Body(name string) *kinematics.RigidBody {
	for _, b := range g.bodies {
		if b.Name() == name {
			return b
		}
	}
	return nil
}

func (g *Group) Link(name string) link.Link {
	for _, l := range g.links {
		if l.Name() == name {
			return l
		}
	}
	return nil
}

// Frame returns the group frame with the given name, including "I".
func (g *Group) Frame(name string) *kinematics.Frame {
	if name == "I" {
		return g.iframe
	}
	for _, f := range g.frames {
		if f.Name() == name {
			return f.Frame
		}
	}
	return nil
}

func (g *Group) root() *Group {
	for g.parent != nil {
		g = g.parent
	}
	return g
}

// Resolve finds the frame named by path. Absolute paths start at the root
// group, relative ones at g. Segments name sub-groups, ".." the parent
// group; the last segment names a group frame, or a body frame when the
// segment before it names a body.
func (g *Group) Resolve(path string) (*kinematics.Frame, error) {
	cur := g
	rest := path
	if strings.HasPrefix(rest, "/") {
		cur = g.root()
		rest = rest[1:]
	}
	if rest == "" {
		return nil, dynamo.Modelf(path, "empty frame path")
	}
	parts := strings.Split(rest, "/")
	for i := 0; i < len(parts); i++ {
		p := parts[i]
		last := i == len(parts)-1
		switch {
		case p == "..":
			if cur.parent == nil {
				return nil, dynamo.Modelf(path, "path leaves the root group")
			}
			cur = cur.parent
		case p == "." || p == "":
		case last:
			if f := cur.Frame(p); f != nil {
				return f, nil
			}
			return nil, dynamo.Modelf(path, "no frame %q in group %s", p, cur.displayPath())
		case cur.SubGroup(p) != nil:
			cur = cur.SubGroup(p)
		case cur.Body(p) != nil:
			if i != len(parts)-2 {
				return nil, dynamo.Modelf(path, "body %q must be followed by exactly one frame name", p)
			}
			b := cur.Body(p)
			if f := b.Frame(parts[i+1]); f != nil {
				return f, nil
			}
			return nil, dynamo.Modelf(path, "body %s has no frame %q", p, parts[i+1])
		default:
			return nil, dynamo.Modelf(path, "no group or body %q in group %s", p, cur.displayPath())
		}
	}
	return nil, dynamo.Modelf(path, "path names a group, not a frame")
}

func (g *Group) displayPath() string {
	if p := g.Path(); p != "" {
		return p
	}
	return "/"
}

// walk visits g and its sub-groups depth first.
func (g *Group) walk(fn func(*Group) error) error {
	if err := fn(g); err != nil {
		return err
	}
	for _, s := range g.groups {
		if err := s.walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// checkNames rejects empty, malformed and duplicate element names. Bodies
// and sub-groups share one namespace since both appear as path segments.
func (g *Group) checkNames() error {
	seen := map[string]string{}
	add := func(kind, name string) error {
		if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
			return dynamo.Modelf(g.displayPath(), "invalid %s name %q", kind, name)
		}
		if prev, ok := seen[name]; ok {
			return dynamo.Modelf(g.elementPath(name), "%s name already used by a %s", kind, prev)
		}
		seen[name] = kind
		return nil
	}
	for _, s := range g.groups {
		if err := add("group", s.name); err != nil {
			return err
		}
	}
	for _, b := range g.bodies {
		if err := add("body", b.Name()); err != nil {
			return err
		}
	}
	frames := map[string]bool{"I": true}
	for _, f := range g.frames {
		if f.Name() == "" || strings.Contains(f.Name(), "/") {
			return dynamo.Modelf(g.displayPath(), "invalid frame name %q", f.Name())
		}
		if frames[f.Name()] {
			return dynamo.Modelf(g.elementPath(f.Name()), "duplicate frame")
		}
		frames[f.Name()] = true
	}
	links := map[string]bool{}
	for _, l := range g.links {
		if l.Name() == "" {
			return dynamo.Modelf(g.displayPath(), "link without name")
		}
		if links[l.Name()] {
			return dynamo.Modelf(g.elementPath(l.Name()), "duplicate link")
		}
		links[l.Name()] = true
	}
	return nil
}

func (g *Group) elementPath(name string) string {
	return fmt.Sprintf("%s/%s", g.Path(), name)
}
