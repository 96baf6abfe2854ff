package registry

// BuildDefault constructs a Registry from a list of operator packages'
// own Register funcs, applying each in turn. Kept as a parameter list
// here to avoid an import cycle between registry and ops/*.
func BuildDefault(register ...func(*Registry)) *Registry {
	reg := New()
	for _, r := range register {
		r(reg)
	}
	return reg
}
