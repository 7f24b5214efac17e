package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Credential is an email/password pair. It is never persisted or logged.
type Credential struct {
	Email    string
	Password string
}

// NewCredential returns a Credential with the email normalized.
func NewCredential(email, password string) Credential {
	return Credential{Email: NormalizeEmail(email), Password: password}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Empty reports whether either field is missing.
func (c Credential) Empty() bool {
	return c.Email == "" || c.Password == ""
}

// Zero clears the credential in place.
func (c *Credential) Zero() {
	c.Email = ""
	c.Password = ""
}

// Profile is the normalized user profile persisted under the "user" key.
type Profile struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Name        string         `json:"name"`
	FullName    string         `json:"full_name,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Address     string         `json:"address,omitempty"`
	Role        string         `json:"role,omitempty"`
	Active      *bool          `json:"is_active,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

// Valid reports whether the profile has a stable identifier.
func (p Profile) Valid() bool {
	return p.ID != ""
}

// Clone returns a deep copy of p.
func (p Profile) Clone() Profile {
	out := p
	if p.Active != nil {
		v := *p.Active
		out.Active = &v
	}
	if p.Preferences != nil {
		out.Preferences = make(map[string]any, len(p.Preferences))
		for k, v := range p.Preferences {
			out.Preferences[k] = v
		}
	}
	return out
}

// ProfilePatch is a partial, client-side profile update. Nil fields are left as is.
type ProfilePatch struct {
	Name        *string
	Phone       *string
	Address     *string
	Preferences map[string]any
}

// Apply returns p with patch merged in. Preferences merge key by key.
func (p Profile) Apply(patch ProfilePatch) Profile {
	out := p.Clone()
	if patch.Name != nil {
		out.Name = *patch.Name
	}
	if patch.Phone != nil {
		out.Phone = *patch.Phone
	}
	if patch.Address != nil {
		out.Address = *patch.Address
	}
	if len(patch.Preferences) > 0 {
		if out.Preferences == nil {
			out.Preferences = make(map[string]any, len(patch.Preferences))
		}
		for k, v := range patch.Preferences {
			out.Preferences[k] = v
		}
	}
	return out
}

// AccountStatus is the result of an account probe.
type AccountStatus struct {
	Exists bool
	Active bool
}

// ParseProfile normalizes a backend or persisted user object. Identifiers may be
// strings or numbers under id, _id, user_id or userId. The display name is the
// first non-empty of full_name, name, email. A missing id is not an error here;
// callers check Valid.
func ParseProfile(raw json.RawMessage) (Profile, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return Profile{}, err
	}
	if m == nil {
		return Profile{}, nil
	}

	p := Profile{
		ID:       firstString(m, "id", "_id", "user_id", "userId"),
		Email:    NormalizeEmail(firstString(m, "email")),
		FullName: firstString(m, "full_name", "fullName"),
		Phone:    firstString(m, "phone", "phone_number"),
		Address:  firstString(m, "address"),
		Role:     firstString(m, "role"),
	}
	p.Name = DisplayName(p.FullName, firstString(m, "name"), p.Email)
	for _, k := range []string{"is_active", "isActive", "active"} {
		if b, ok := m[k].(bool); ok {
			p.Active = &b
			break
		}
	}
	if prefs, ok := m["preferences"].(map[string]any); ok {
		p.Preferences = prefs
	}
	return p, nil
}

// ParseStoredProfile reads the client's own persisted form. Unlike ParseProfile
// a stored name is kept as is, so a local name edit survives a reload.
func ParseStoredProfile(raw json.RawMessage) (Profile, error) {
	p, err := ParseProfile(raw)
	if err != nil {
		return Profile{}, err
	}
	var stored struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &stored); err == nil {
		if name := strings.TrimSpace(stored.Name); name != "" {
			p.Name = name
		}
	}
	return p, nil
}

// DisplayName returns the first non-empty of fullName, name, email.
func DisplayName(fullName, name, email string) string {
	for _, s := range []string{fullName, name, email} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
