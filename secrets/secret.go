// Package secrets resolves the credentials a release run needs (platform
// tokens, registry and bucket keys) from an ordered chain of providers.
//
//	m := secrets.NewManager()
//	_ = m.RegisterProvider(env.New())
//	token, err := m.ResolveAny(ctx, "GITHUB_TOKEN", "GH_TOKEN")
//	if errors.Is(err, secrets.ErrSecretNotFound) {
//		// not configured
//	}
//
// Secret values are never logged; Secret.String is the only accessor and
// Secret.Clear zeroes the backing bytes.
package secrets

// Secret is a resolved secret value.
type Secret struct {
	// Value contains the secret data. Never log it.
	Value []byte

	// Name is the reference path the value was found under.
	Name string

	// Provider names the provider that produced the value.
	Provider string
}

// SecretRef identifies a secret without carrying its value.
type SecretRef struct {
	// Path identifies the secret, e.g. an environment variable name.
	Path string
}

// String returns the secret value as a string.
func (s *Secret) String() string {
	if s == nil || s.Value == nil {
		return ""
	}
	return string(s.Value)
}

// Clear zeroes the secret value in place.
func (s *Secret) Clear() {
	if s == nil {
		return
	}
	for i := range s.Value {
		s.Value[i] = 0
	}
	s.Value = nil
}

// GoString redacts the value so %#v never prints it.
func (s *Secret) GoString() string {
	return "secrets.Secret{Name:" + s.Name + ", Provider:" + s.Provider + ", Value:<redacted>}"
}
