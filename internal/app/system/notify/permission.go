// internal/app/system/notify/permission.go
package notify

import "fmt"

// Permission is a browser's notification permission.
//
//	default --request--> granted | denied
//
// denied is never prompted again; granted holds until the user revokes it
// in the browser, which the app only sees on the next check.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ParsePermission accepts the three permission names. An empty string is
// treated as default.
func ParsePermission(s string) (Permission, error) {
	switch Permission(s) {
	case "", PermissionDefault:
		return PermissionDefault, nil
	case PermissionGranted:
		return PermissionGranted, nil
	case PermissionDenied:
		return PermissionDenied, nil
	}
	return "", fmt.Errorf("unknown notification permission %q", s)
}

// CanPrompt reports whether requesting permission would show a prompt.
func (p Permission) CanPrompt() bool {
	return p == PermissionDefault || p == ""
}

// Request applies the user's answer to a permission prompt. The prompt is
// only shown from default; otherwise the current value is returned
// unchanged and prompted is false. A decision of default (prompt dismissed)
// leaves the permission at default.
func (p Permission) Request(decision Permission) (next Permission, prompted bool) {
	if !p.CanPrompt() {
		return p, false
	}
	switch decision {
	case PermissionGranted, PermissionDenied:
		return decision, true
	}
	return PermissionDefault, true
}

// Granted reports whether notifications may be shown.
func (p Permission) Granted() bool {
	return p == PermissionGranted
}
