// pkg/bindings/fake.go - scripted collaborators for tests.

package bindings

// FakeProcess is a Process whose answers are scripted by the test.
type FakeProcess struct {
	Running      map[string]bool
	TerminateErr error
	Terminated   []string
}

func (f *FakeProcess) IsRunning(name string) bool {
	return f.Running[name]
}

func (f *FakeProcess) Terminate(name string) error {
	f.Terminated = append(f.Terminated, name)
	if f.TerminateErr != nil {
		return f.TerminateErr
	}
	delete(f.Running, name)
	return nil
}

// FakeHost is a Host with fixed answers.
type FakeHost struct {
	Elevated  bool
	ArchValue string
}

func (f *FakeHost) IsElevated() bool { return f.Elevated }
func (f *FakeHost) Arch() string     { return f.ArchValue }

// FakeUI records prompts and answers with a fixed response.
type FakeUI struct {
	Answer  bool
	Prompts []string
}

func (f *FakeUI) Confirm(title, text string) bool {
	f.Prompts = append(f.Prompts, title)
	return f.Answer
}

// FailingRegistry wraps a Registry and fails DeleteValue for a chosen
// value name, for exercising reversal failures.
type FailingRegistry struct {
	Registry
	FailValue string
	Err       error
}

func (f FailingRegistry) DeleteValue(key, name string) error {
	if name == f.FailValue {
		return f.Err
	}
	return f.Registry.DeleteValue(key, name)
}

// FailingShortcuts wraps a Shortcut and fails Create for a chosen path,
// for exercising mid-install failures.
type FailingShortcuts struct {
	Shortcut
	FailPath string
	Err      error
}

func (f FailingShortcuts) Create(path, target, args, icon string) error {
	if path == f.FailPath {
		return f.Err
	}
	return f.Shortcut.Create(path, target, args, icon)
}
