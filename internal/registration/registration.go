// Package registration implements the platform-dependent collector
// registration behind the analyzer CLI's `register`/`unregister` commands
// (spec.md §6: "register / unregister (platform-dependent collector
// registration)... exit codes: ... 2 registration failure (with platform
// HRESULT in message)"). Register and Unregister are declared separately
// in registration_unix.go and registration_windows.go: one concrete
// variant per platform, the shape spec.md §9's redesign flags call for in
// place of an inheritance hierarchy.
package registration

import "fmt"

// hresultLike formats a platform error code the way the Windows build's
// errors already look (a raw HRESULT/Win32 code), so callers on every
// platform get a consistent "registration failure (code)" message shape
// even though only the Windows build has a literal HRESULT to report.
func hresultLike(code uint32, err error) error {
	return fmt.Errorf("registration failed (code 0x%08X): %w", code, err)
}
