//go:build windows

package registration

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc/mgr"
)

const serviceName = "ProfilerCollector"

// Register installs collectorctlPath as a Windows service via the Service
// Control Manager. A failure's underlying Win32/HRESULT code is folded
// into the returned error's message, per spec.md §6's "platform HRESULT
// in message".
func Register(collectorctlPath string) error {
	m, err := mgr.Connect()
	if err != nil {
		return hresultLike(win32Code(err), fmt.Errorf("registration: connect to service manager: %w", err))
	}
	defer m.Disconnect()

	if existing, err := m.OpenService(serviceName); err == nil {
		_ = existing.Close()
		return hresultLike(0, fmt.Errorf("registration: service %q already exists", serviceName))
	}

	s, err := m.CreateService(serviceName, collectorctlPath, mgr.Config{
		DisplayName: "Call-level profiler collector",
		StartType:   mgr.StartAutomatic,
	})
	if err != nil {
		return hresultLike(win32Code(err), fmt.Errorf("registration: create service: %w", err))
	}
	defer s.Close()

	if err := s.Start(); err != nil {
		return hresultLike(win32Code(err), fmt.Errorf("registration: start service: %w", err))
	}
	return nil
}

// Unregister stops and deletes the service installed by Register.
func Unregister() error {
	m, err := mgr.Connect()
	if err != nil {
		return hresultLike(win32Code(err), fmt.Errorf("registration: connect to service manager: %w", err))
	}
	defer m.Disconnect()

	s, err := m.OpenService(serviceName)
	if err != nil {
		return hresultLike(win32Code(err), fmt.Errorf("registration: open service: %w", err))
	}
	defer s.Close()

	_, _ = s.Control(windows.SERVICE_CONTROL_STOP)

	if err := s.Delete(); err != nil {
		return hresultLike(win32Code(err), fmt.Errorf("registration: delete service: %w", err))
	}
	return nil
}

// win32Code extracts the underlying Win32 error code from err, if any, for
// inclusion in the HRESULT-shaped message.
func win32Code(err error) uint32 {
	var errno windows.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return 0
}
