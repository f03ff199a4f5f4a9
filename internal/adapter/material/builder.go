// Package material builds material descriptions from extracted texture sets.
package material

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vertextoedge/texture-cache/internal/domain"
	"github.com/vertextoedge/texture-cache/internal/port"
)

// Shader inputs on the principled BSDF and material output
const (
	TargetBaseColor    = "Base Color"
	TargetRoughness    = "Roughness"
	TargetNormal       = "Normal"
	TargetDisplacement = "Displacement"

	ViaNormalMap    = "normal_map"
	ViaDisplacement = "displacement"
)

type roleSpec struct {
	suffix     string
	colorspace string
	via        string
	target     string
}

var roleSpecs = map[domain.TextureRole]roleSpec{
	domain.RoleColor:        {suffix: "_Color", colorspace: domain.ColorspaceSRGB, target: TargetBaseColor},
	domain.RoleRoughness:    {suffix: "_Roughness", colorspace: domain.ColorspaceNonColor, target: TargetRoughness},
	domain.RoleNormal:       {suffix: "_NormalGL", colorspace: domain.ColorspaceNonColor, via: ViaNormalMap, target: TargetNormal},
	domain.RoleDisplacement: {suffix: "_Displacement", colorspace: domain.ColorspaceNonColor, via: ViaDisplacement, target: TargetDisplacement},
}

var imageExtensions = []string{".png", ".jpg", ".jpeg"}

// RoleForFile maps a texture filename to its role by suffix
func RoleForFile(name string) (domain.TextureRole, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if !isImageExt(ext) {
		return "", false
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, role := range domain.TextureRoles {
		if strings.HasSuffix(stem, roleSpecs[role].suffix) {
			return role, true
		}
	}
	return "", false
}

func isImageExt(ext string) bool {
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Builder describes the shading network for an extraction directory.
// It stands in for the host application's node-graph builder.
type Builder struct{}

var _ port.MaterialBuilder = (*Builder)(nil)

// NewBuilder creates a new Builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Build scans dir (non-recursively) and wires every recognized texture.
// Unrecognized files are ignored; the first file per role wins.
func (b *Builder) Build(dir, name string) (*domain.Material, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("material dir %s: %w", dir, domain.ErrNotFound)
		}
		return nil, domain.NewFilesystemError("read material dir", err)
	}
	if name == "" {
		name = filepath.Base(dir)
	}

	found := make(map[domain.TextureRole]string)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		role, ok := RoleForFile(entry.Name())
		if !ok {
			continue
		}
		if _, seen := found[role]; seen {
			continue
		}
		found[role] = filepath.Join(dir, entry.Name())
	}

	m := &domain.Material{Name: name, Dir: dir, Slots: []domain.TextureSlot{}}
	for _, role := range domain.TextureRoles {
		file, ok := found[role]
		if !ok {
			continue
		}
		spec := roleSpecs[role]
		m.Slots = append(m.Slots, domain.TextureSlot{
			Role:       role,
			File:       file,
			Colorspace: spec.colorspace,
			Via:        spec.via,
			Target:     spec.target,
		})
	}
	return m, nil
}
