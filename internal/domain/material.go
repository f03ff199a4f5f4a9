package domain

// TextureRole is the shading role of a texture file
type TextureRole string

// Recognized texture roles, in wiring order
const (
	RoleColor        TextureRole = "color"
	RoleRoughness    TextureRole = "roughness"
	RoleNormal       TextureRole = "normal"
	RoleDisplacement TextureRole = "displacement"
)

// TextureRoles lists roles in wiring order
var TextureRoles = []TextureRole{RoleColor, RoleRoughness, RoleNormal, RoleDisplacement}

// Colorspace names used by the host application
const (
	ColorspaceSRGB     = "sRGB"
	ColorspaceNonColor = "Non-Color"
)

// TextureSlot is one texture wired into the shading network
type TextureSlot struct {
	Role       TextureRole `json:"role"`
	File       string      `json:"file"`
	Colorspace string      `json:"colorspace"`
	// Via names the intermediate node, e.g. "normal_map"; empty for direct links
	Via    string `json:"via,omitempty"`
	Target string `json:"target"`
}

// Material is the description handed to the host's material builder
type Material struct {
	Name  string        `json:"name"`
	Dir   string        `json:"dir"`
	Slots []TextureSlot `json:"slots"`
}

// Slot returns the slot for a role
func (m *Material) Slot(role TextureRole) (TextureSlot, bool) {
	for _, s := range m.Slots {
		if s.Role == role {
			return s, true
		}
	}
	return TextureSlot{}, false
}

// Roles returns the wired roles in order
func (m *Material) Roles() []TextureRole {
	roles := make([]TextureRole, 0, len(m.Slots))
	for _, s := range m.Slots {
		roles = append(roles, s.Role)
	}
	return roles
}
