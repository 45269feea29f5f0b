package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// action is one call recorded by fakeDriver.
type action struct {
	Kind     string
	Label    string
	Selector string
	Value    string
	InFrame  bool
	Tab      int
}

// fakeDriver is a scripted Driver keyed by locator label. Elements are
// present unless listed in missing; CountVisible reports counts[label].
type fakeDriver struct {
	mu sync.Mutex

	missing  map[string]bool
	counts   map[string]int
	texts    map[string]string
	textAll  map[string][]string
	attrs    map[string]string
	failOn   map[string]error
	popupOn  map[string]bool
	closeTab map[string]bool

	evalResult interface{}
	evalErr    error

	url        string
	frameDepth int
	tabs       int
	current    int
	closed     bool
	actions    []action
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		missing:  map[string]bool{},
		counts:   map[string]int{},
		texts:    map[string]string{},
		textAll:  map[string][]string{},
		attrs:    map[string]string{},
		failOn:   map[string]error{},
		popupOn:  map[string]bool{},
		closeTab: map[string]bool{},
		tabs:     1,
	}
}

func (f *fakeDriver) record(kind, label, value string) error {
	return f.recordLoc(kind, Build("", As(label)), value)
}

func (f *fakeDriver) recordLoc(kind string, loc Locator, value string) error {
	a := action{Kind: kind, Label: loc.Label(), Value: value, InFrame: f.frameDepth > 0, Tab: f.current}
	if !loc.IsZero() {
		a.Selector = loc.String()
	}
	f.actions = append(f.actions, a)
	if err, ok := f.failOn[kind+":"+a.Label]; ok {
		return err
	}
	return nil
}

func (f *fakeDriver) present(loc Locator) error {
	if f.missing[loc.Label()] {
		return notFound(loc)
	}
	return nil
}

// calls returns the labels of every recorded action of kind, in order.
func (f *fakeDriver) calls(kind string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var labels []string
	for _, a := range f.actions {
		if a.Kind == kind {
			labels = append(labels, a.Label)
		}
	}
	return labels
}

func (f *fakeDriver) recorded() []action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]action(nil), f.actions...)
}

func (f *fakeDriver) find(kind, label string) (action, bool) {
	for _, a := range f.recorded() {
		if a.Kind == kind && a.Label == label {
			return a, true
		}
	}
	return action{}, false
}

func (f *fakeDriver) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("navigate", "", url); err != nil {
		return err
	}
	f.url = url
	return nil
}

func (f *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeDriver) CountVisible(ctx context.Context, loc Locator, within time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.recordLoc("count", loc, within.String()); err != nil {
		return 0, err
	}
	return f.counts[loc.Label()], nil
}

func (f *fakeDriver) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.recordLoc("wait", loc, ""); err != nil {
		return err
	}
	return f.present(loc)
}

func (f *fakeDriver) WaitInvisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recordLoc("waitHidden", loc, "")
}

func (f *fakeDriver) Click(ctx context.Context, loc Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.recordLoc("click", loc, ""); err != nil {
		return err
	}
	if err := f.present(loc); err != nil {
		return err
	}
	if f.popupOn[loc.Label()] {
		f.tabs++
	}
	if f.closeTab[loc.Label()] && f.tabs > 1 {
		f.tabs--
		if f.current >= f.tabs {
			f.current = f.tabs - 1
		}
	}
	return nil
}

func (f *fakeDriver) Fill(ctx context.Context, loc Locator, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.recordLoc("fill", loc, value); err != nil {
		return err
	}
	return f.present(loc)
}

func (f *fakeDriver) Clear(ctx context.Context, loc Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.recordLoc("clear", loc, ""); err != nil {
		return err
	}
	return f.present(loc)
}

func (f *fakeDriver) PressKey(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("key", key, "")
}

func (f *fakeDriver) SetChecked(ctx context.Context, loc Locator, checked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.recordLoc("check", loc, fmt.Sprint(checked)); err != nil {
		return err
	}
	return f.present(loc)
}

func (f *fakeDriver) Text(ctx context.Context, loc Locator) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.recordLoc("text", loc, ""); err != nil {
		return "", err
	}
	if err := f.present(loc); err != nil {
		return "", err
	}
	return f.texts[loc.Label()], nil
}

func (f *fakeDriver) TextAll(ctx context.Context, loc Locator) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.recordLoc("textAll", loc, ""); err != nil {
		return nil, err
	}
	return f.textAll[loc.Label()], nil
}

func (f *fakeDriver) Attribute(ctx context.Context, loc Locator, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.recordLoc("attr", loc, name); err != nil {
		return "", err
	}
	if err := f.present(loc); err != nil {
		return "", err
	}
	return f.attrs[loc.Label()+"@"+name], nil
}

func (f *fakeDriver) EvaluateInPage(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("eval", "", ""); err != nil {
		return nil, err
	}
	return f.evalResult, f.evalErr
}

func (f *fakeDriver) EnterFrame(ctx context.Context, loc Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.recordLoc("enterFrame", loc, ""); err != nil {
		return err
	}
	if err := f.present(loc); err != nil {
		return err
	}
	f.frameDepth++
	return nil
}

func (f *fakeDriver) ExitToTop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frameDepth = 0
	return f.record("exitFrame", "", "")
}

func (f *fakeDriver) TabCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tabs, nil
}

func (f *fakeDriver) WaitForTabs(ctx context.Context, n int, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("waitTabs", "", fmt.Sprint(n)); err != nil {
		return err
	}
	if f.tabs < n {
		return fmt.Errorf("%w: waiting for %d tabs, have %d", ErrTimeout, n, f.tabs)
	}
	return nil
}

func (f *fakeDriver) SwitchToNextTab(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("nextTab", "", ""); err != nil {
		return err
	}
	if f.current+1 >= f.tabs {
		return fmt.Errorf("%w: no next tab", ErrContextMisuse)
	}
	f.current++
	f.frameDepth = 0
	return nil
}

func (f *fakeDriver) SwitchToPreviousTab(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("previousTab", "", ""); err != nil {
		return err
	}
	if f.current == 0 {
		return fmt.Errorf("%w: no previous tab", ErrContextMisuse)
	}
	f.current--
	f.frameDepth = 0
	return nil
}

func (f *fakeDriver) Screenshot(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("screenshot", "", path); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("png"), 0644)
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDriver) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// testConfig is DefaultConfig with every pause shortened so flows run
// instantly against fakeDriver.
func testConfig(t interface{ TempDir() string }) *Config {
	config := DefaultConfig()
	config.OutputDir = t.TempDir()
	config.Logger.LogFile = ""
	config.Timeouts = TimeoutConfig{
		Wait:         time.Second,
		Poll:         time.Millisecond,
		ModalDetect:  time.Millisecond,
		ModalDismiss: time.Millisecond,
		ModalSettle:  0,
		Interstitial: 0,
		Autocomplete: 0,
		Tabs:         time.Millisecond,
		Email:        time.Second,
	}
	return config
}
