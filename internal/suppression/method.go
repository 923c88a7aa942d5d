// Package suppression keeps terminated processes from being relaunched by
// their normal trigger and records every applied action in a durable ledger
// so it can be reversed.
package suppression

import "fmt"

// Kind names a suppression mechanism.
type Kind string

const (
	KindService Kind = "service"
	KindStartup Kind = "startup"
	KindTask    Kind = "task"
	KindIFEO    Kind = "ifeo"
)

// ParseKind accepts a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindService, KindStartup, KindTask, KindIFEO:
		return k, nil
	}
	return "", fmt.Errorf("unknown suppression method %q", s)
}

// Method is one of ServiceMethod, StartupMethod, TaskMethod or IFEOMethod.
type Method interface {
	Kind() Kind
	// Detail is the method-specific key: service, startup value, task or executable name.
	Detail() string
	AppliedMessage() string
	RestoredMessage() string
	method()
}

// ServiceMethod disables a service's start mode and stops it.
type ServiceMethod struct {
	Service string
}

func (ServiceMethod) Kind() Kind       { return KindService }
func (m ServiceMethod) Detail() string { return m.Service }
func (ServiceMethod) method()          {}
func (m ServiceMethod) AppliedMessage() string {
	return fmt.Sprintf("Service '%s' disabled.", m.Service)
}
func (m ServiceMethod) RestoredMessage() string {
	return fmt.Sprintf("Service '%s' re-enabled.", m.Service)
}

// StartupMethod removes an autostart registration. Value holds the captured
// registration so restore can recreate it exactly.
type StartupMethod struct {
	Name string
	// Location is where the registration lived: a registry hive or an
	// autostart directory.
	Location string
	Value    string
	// ValueType distinguishes registry string kinds; empty elsewhere.
	ValueType string
	// Restorable is false when the value could not be captured.
	Restorable bool
}

func (StartupMethod) Kind() Kind       { return KindStartup }
func (m StartupMethod) Detail() string { return m.Name }
func (StartupMethod) method()          {}
func (m StartupMethod) AppliedMessage() string {
	if !m.Restorable {
		return fmt.Sprintf("Startup entry '%s' disabled. Its value could not be saved; restore is not automatic.", m.Name)
	}
	return fmt.Sprintf("Startup entry '%s' disabled.", m.Name)
}
func (m StartupMethod) RestoredMessage() string {
	return fmt.Sprintf("Startup entry '%s' restored.", m.Name)
}

// TaskMethod toggles a scheduled task off.
type TaskMethod struct {
	Task string
}

func (TaskMethod) Kind() Kind       { return KindTask }
func (m TaskMethod) Detail() string { return m.Task }
func (TaskMethod) method()          {}
func (m TaskMethod) AppliedMessage() string {
	return fmt.Sprintf("Scheduled task '%s' disabled.", m.Task)
}
func (m TaskMethod) RestoredMessage() string {
	return fmt.Sprintf("Scheduled task '%s' re-enabled.", m.Task)
}

// IFEOMethod blocks an executable by file name, wherever it lives. It also
// blocks manual launches.
type IFEOMethod struct {
	Executable string
}

func (IFEOMethod) Kind() Kind       { return KindIFEO }
func (m IFEOMethod) Detail() string { return m.Executable }
func (IFEOMethod) method()          {}
func (m IFEOMethod) AppliedMessage() string {
	return fmt.Sprintf("Process '%s' blocked via IFEO.", m.Executable)
}
func (m IFEOMethod) RestoredMessage() string {
	return fmt.Sprintf("IFEO block removed for '%s'.", m.Executable)
}

// Describe explains what a kind does, for prompts and help text.
func Describe(k Kind) string {
	switch k {
	case KindService:
		return "Disable the service and stop it. Restore sets it back to automatic start."
	case KindStartup:
		return "Remove the autostart registration. Restore recreates it."
	case KindTask:
		return "Disable the scheduled task. Restore enables it again."
	case KindIFEO:
		return "Block the executable from launching at all, including manual launches. Most aggressive."
	}
	return ""
}
